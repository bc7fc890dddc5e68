package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/repository"
)

func TestPgxStagingRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	jobs := repository.NewImportJobRepository(gdb)
	staging := repository.NewPgxStagingRepository(pool)
	rowsRepo := repository.NewStagingRepository(gdb)

	jobID := uuid.NewString()
	if _, err := jobs.Create(ctx, newJob(jobID, domain.StatusParsing)); err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	t.Cleanup(func() {
		gdb.Where("import_job_id = ?", jobID).Delete(&models.ImportRow{})
		gdb.Where("id = ?", jobID).Delete(&models.ImportJob{})
	})

	rows := []domain.ImportRow{
		stagedRow(jobID, 1, domain.RowValid),
		stagedRow(jobID, 2, domain.RowInvalid),
		stagedRow(jobID, 3, domain.RowValid),
	}
	if err := staging.AppendBatch(ctx, jobID, rows, domain.ParseProgress{
		ProcessedRows: 3, ValidRows: 2, InvalidRows: 1, CurrentChunk: 1, Checkpoint: []byte(`{"version":1,"lastRowNumber":3}`),
	}); err != nil {
		t.Fatalf("append batch failed: %v", err)
	}

	pending, err := rowsRepo.NextPending(ctx, jobID, 10)
	if err != nil {
		t.Fatalf("next pending failed: %v", err)
	}
	if len(pending) != 2 || pending[0].Values[domain.FieldEmail] != "a@example.com" {
		t.Fatalf("unexpected pending rows: %+v", pending)
	}

	if err := staging.Rewind(ctx, jobID, 1, domain.ParseProgress{ProcessedRows: 1, ValidRows: 1}); err != nil {
		t.Fatalf("rewind failed: %v", err)
	}
	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if job.Counters.ProcessedRows != 1 || len(job.Checkpoint) != 0 {
		t.Fatalf("unexpected job after rewind: %+v", job.Counters)
	}
	invalid, err := rowsRepo.ListInvalid(ctx, jobID, 0, 10)
	if err != nil {
		t.Fatalf("list invalid failed: %v", err)
	}
	if len(invalid) != 0 {
		t.Fatalf("expected rewound invalid row to be purged, got %d", len(invalid))
	}
}
