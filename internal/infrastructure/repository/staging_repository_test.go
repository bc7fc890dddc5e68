package repository_test

import (
	"context"
	"testing"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/repository"
)

func stagedRow(jobID string, number int, status domain.RowStatus) domain.ImportRow {
	row := domain.ImportRow{
		JobID:       jobID,
		RowNumber:   number,
		ChunkNumber: 1,
		Status:      status,
		Raw:         []string{"a@example.com", "Dupont"},
	}
	if status == domain.RowValid {
		row.Values = map[domain.Field]string{domain.FieldEmail: "a@example.com"}
	} else {
		row.Errors = map[string]string{"email": "invalid email"}
	}
	return row
}

func TestStagingRepositoryAppendAndRewind(t *testing.T) {
	db := setupSQLite(t)
	jobs := repository.NewImportJobRepository(db)
	staging := repository.NewStagingRepository(db)
	ctx := context.Background()

	if _, err := jobs.Create(ctx, newJob("job-1", domain.StatusParsing)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rows := []domain.ImportRow{
		stagedRow("job-1", 1, domain.RowValid),
		stagedRow("job-1", 2, domain.RowInvalid),
		stagedRow("job-1", 3, domain.RowValid),
		stagedRow("job-1", 4, domain.RowValid),
	}
	checkpoint := []byte(`{"version":1,"lastRowNumber":4}`)
	if err := staging.AppendBatch(ctx, "job-1", rows, domain.ParseProgress{
		ProcessedRows: 4, ValidRows: 3, InvalidRows: 1, CurrentChunk: 1, Checkpoint: checkpoint,
	}); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	job, err := jobs.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Counters.ProcessedRows != 4 || job.Counters.ValidRows != 3 || job.CurrentChunk != 1 {
		t.Fatalf("unexpected counters: %+v chunk=%d", job.Counters, job.CurrentChunk)
	}
	if len(job.Checkpoint) == 0 {
		t.Fatal("expected checkpoint to be stored")
	}

	invalid, err := staging.ListInvalid(ctx, "job-1", 0, 10)
	if err != nil {
		t.Fatalf("ListInvalid() error = %v", err)
	}
	if len(invalid) != 1 || invalid[0].RowNumber != 2 || invalid[0].Errors["email"] == "" {
		t.Fatalf("unexpected invalid rows: %+v", invalid)
	}
	if invalid[0].RawValue(1) != "Dupont" {
		t.Fatalf("raw values were not kept: %v", invalid[0].Raw)
	}

	// Rewinding to row 2 drops rows 3 and 4 and the checkpoint.
	if err := staging.Rewind(ctx, "job-1", 2, domain.ParseProgress{ProcessedRows: 2, ValidRows: 1, InvalidRows: 1}); err != nil {
		t.Fatalf("Rewind() error = %v", err)
	}
	pending, err := staging.NextPending(ctx, "job-1", 10)
	if err != nil {
		t.Fatalf("NextPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].RowNumber != 1 {
		t.Fatalf("unexpected pending rows after rewind: %+v", pending)
	}
	if pending[0].Values[domain.FieldEmail] != "a@example.com" {
		t.Fatalf("values were not kept: %v", pending[0].Values)
	}
	job, err = jobs.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.Counters.ProcessedRows != 2 || len(job.Checkpoint) != 0 {
		t.Fatalf("unexpected job after rewind: %+v checkpoint=%s", job.Counters, job.Checkpoint)
	}

	// Rows already staged cannot be staged twice.
	if err := staging.AppendBatch(ctx, "job-1", rows[:1], domain.ParseProgress{}); err == nil {
		t.Fatal("expected duplicate row number to be rejected")
	}
}

func TestStagingRepositoryPendingAndHandled(t *testing.T) {
	db := setupSQLite(t)
	jobs := repository.NewImportJobRepository(db)
	staging := repository.NewStagingRepository(db)
	leads := repository.NewLeadRepository(db)
	ctx := context.Background()

	if _, err := jobs.Create(ctx, newJob("job-1", domain.StatusImporting)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rows := []domain.ImportRow{
		stagedRow("job-1", 1, domain.RowValid),
		stagedRow("job-1", 2, domain.RowValid),
		stagedRow("job-1", 3, domain.RowValid),
	}
	if err := staging.AppendBatch(ctx, "job-1", rows, domain.ParseProgress{ProcessedRows: 3, ValidRows: 3, CurrentChunk: 1}); err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	err := leads.CommitBatch(ctx, "job-1", func(tx domain.CommitTx) error {
		row := rows[0]
		row.Outcome = domain.OutcomeSkipped
		row.DuplicateOf = "lead:existing"
		return tx.MarkRow(ctx, row)
	})
	if err != nil {
		t.Fatalf("CommitBatch() error = %v", err)
	}

	pending, err := staging.NextPending(ctx, "job-1", 1)
	if err != nil {
		t.Fatalf("NextPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].RowNumber != 2 {
		t.Fatalf("unexpected pending rows: %+v", pending)
	}

	handled, err := staging.ListHandled(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListHandled() error = %v", err)
	}
	if len(handled) != 1 || handled[0].Outcome != domain.OutcomeSkipped || handled[0].DuplicateOf != "lead:existing" {
		t.Fatalf("unexpected handled rows: %+v", handled)
	}
}
