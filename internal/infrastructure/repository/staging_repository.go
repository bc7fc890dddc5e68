package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

const stagingInsertBatch = 200

// StagingRepository keeps staged import rows in the import_rows table.
type StagingRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStagingRepository(db *gorm.DB) *StagingRepository {
	return &StagingRepository{db: db, now: time.Now}
}

func (r *StagingRepository) Rewind(ctx context.Context, jobID string, afterRow int, progress domain.ParseProgress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("import_job_id = ? AND row_number > ?", jobID, afterRow).
			Delete(&models.ImportRow{}).Error; err != nil {
			return fmt.Errorf("purge staged rows: %w", err)
		}
		return r.saveProgress(tx, jobID, progress)
	})
}

func (r *StagingRepository) AppendBatch(ctx context.Context, jobID string, rows []domain.ImportRow, progress domain.ParseProgress) error {
	records := make([]models.ImportRow, 0, len(rows))
	for _, row := range rows {
		record, err := toRowModel(row)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(records) > 0 {
			if err := tx.CreateInBatches(&records, stagingInsertBatch).Error; err != nil {
				return fmt.Errorf("insert staged rows: %w", err)
			}
		}
		return r.saveProgress(tx, jobID, progress)
	})
}

func (r *StagingRepository) saveProgress(tx *gorm.DB, jobID string, progress domain.ParseProgress) error {
	values := map[string]any{
		"processed_rows": progress.ProcessedRows,
		"valid_rows":     progress.ValidRows,
		"invalid_rows":   progress.InvalidRows,
		"current_chunk":  progress.CurrentChunk,
		"updated_at":     r.now().UTC(),
	}
	if len(progress.Checkpoint) > 0 {
		values["last_checkpoint"] = datatypes.JSON(progress.Checkpoint)
	} else {
		values["last_checkpoint"] = nil
	}
	res := tx.Model(&models.ImportJob{}).Where("id = ?", jobID).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("save parse progress: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *StagingRepository) NextPending(ctx context.Context, jobID string, limit int) ([]domain.ImportRow, error) {
	var rows []models.ImportRow
	err := r.db.WithContext(ctx).
		Where("import_job_id = ? AND status = ? AND outcome = ?", jobID, string(domain.RowValid), string(domain.OutcomePending)).
		Order("row_number").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	return toDomainRows(rows)
}

func (r *StagingRepository) ListHandled(ctx context.Context, jobID string) ([]domain.ImportRow, error) {
	var rows []models.ImportRow
	err := r.db.WithContext(ctx).
		Select("import_job_id", "row_number", "chunk_number", "status", "normalized_data", "outcome", "lead_id", "duplicate_of").
		Where("import_job_id = ? AND status = ? AND outcome <> ?", jobID, string(domain.RowValid), string(domain.OutcomePending)).
		Order("row_number").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list handled rows: %w", err)
	}
	return toDomainRows(rows)
}

func (r *StagingRepository) ListInvalid(ctx context.Context, jobID string, afterRow int, limit int) ([]domain.ImportRow, error) {
	var rows []models.ImportRow
	err := r.db.WithContext(ctx).
		Where("import_job_id = ? AND status = ? AND row_number > ?", jobID, string(domain.RowInvalid), afterRow).
		Order("row_number").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list invalid rows: %w", err)
	}
	return toDomainRows(rows)
}
