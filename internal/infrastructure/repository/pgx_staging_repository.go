package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

var importRowColumns = []string{
	"import_job_id",
	"row_number",
	"chunk_number",
	"status",
	"raw_data",
	"normalized_data",
	"validation_errors",
	"outcome",
	"duplicate_of",
	"created_at",
	"updated_at",
}

// PgxStagingRepository stages rows on PostgreSQL with COPY. It writes the
// same tables as StagingRepository and is used when the pool is configured.
type PgxStagingRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPgxStagingRepository(pool *pgxpool.Pool) *PgxStagingRepository {
	return &PgxStagingRepository{pool: pool, now: time.Now}
}

func (r *PgxStagingRepository) Rewind(ctx context.Context, jobID string, afterRow int, progress domain.ParseProgress) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM import_rows WHERE import_job_id = $1 AND row_number > $2", jobID, afterRow); err != nil {
		return fmt.Errorf("purge staged rows: %w", err)
	}
	if err := r.saveProgress(ctx, tx, jobID, progress); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rewind: %w", err)
	}
	return nil
}

func (r *PgxStagingRepository) AppendBatch(ctx context.Context, jobID string, rows []domain.ImportRow, progress domain.ParseProgress) error {
	now := r.now().UTC()
	records := make([][]any, 0, len(rows))
	for _, row := range rows {
		record, err := toRowModel(row)
		if err != nil {
			return err
		}
		records = append(records, []any{
			record.ImportJobID,
			record.RowNumber,
			record.ChunkNumber,
			record.Status,
			[]byte(record.RawData),
			jsonbOrNil(record.NormalizedData),
			jsonbOrNil(record.ValidationErrors),
			record.Outcome,
			record.DuplicateOf,
			now,
			now,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(records) > 0 {
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"import_rows"},
			importRowColumns,
			pgx.CopyFromRows(records),
		); err != nil {
			return fmt.Errorf("copy staged rows: %w", err)
		}
	}
	if err := r.saveProgress(ctx, tx, jobID, progress); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit staged batch: %w", err)
	}
	return nil
}

func (r *PgxStagingRepository) saveProgress(ctx context.Context, tx pgx.Tx, jobID string, progress domain.ParseProgress) error {
	tag, err := tx.Exec(ctx, `
UPDATE import_jobs
   SET processed_rows = $2,
       valid_rows = $3,
       invalid_rows = $4,
       current_chunk = $5,
       last_checkpoint = $6,
       updated_at = $7
 WHERE id = $1
`, jobID, progress.ProcessedRows, progress.ValidRows, progress.InvalidRows, progress.CurrentChunk, jsonbOrNil(progress.Checkpoint), r.now().UTC())
	if err != nil {
		return fmt.Errorf("save parse progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func jsonbOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
