package leadimport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

// CommitWriter moves one batch of staged rows into the lead table.
type CommitWriter struct {
	store domain.CommitStore
	now   func() time.Time
	newID func() string
}

func NewCommitWriter(store domain.CommitStore, now func() time.Time, newID func() string) *CommitWriter {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &CommitWriter{store: store, now: now, newID: newID}
}

// commitPlan carries the per-invocation state a batch is written with.
type commitPlan struct {
	job        domain.ImportJob
	options    domain.CommitOptions
	duplicates *DuplicateResolver
	assignment *AssignmentResolver
}

// WriteBatch commits rows, which must be the next pending rows in row order.
// Leads, history entries, row outcomes and job counters land in one
// transaction; on error nothing from the batch persists.
func (w *CommitWriter) WriteBatch(ctx context.Context, plan commitPlan, rows []domain.ImportRow) (domain.CommitDelta, error) {
	var delta domain.CommitDelta
	err := w.store.CommitBatch(ctx, plan.job.ID, func(tx domain.CommitTx) error {
		delta = domain.CommitDelta{}

		matches, err := plan.duplicates.Resolve(ctx, tx, rows)
		if err != nil {
			return err
		}

		strategy := plan.options.Duplicates.Strategy
		for i := range rows {
			row := rows[i]
			m := matches[i]
			target := m.target()
			now := w.now().UTC()

			switch {
			case m.source != matchNone && strategy == domain.DuplicateSkip:
				row.Outcome = domain.OutcomeSkipped
				row.DuplicateOf = m.ref
				delta.Skipped++

			case m.source != matchNone && strategy == domain.DuplicateUpdate && target != "":
				if err := tx.UpdateLead(ctx, target, row.Values); err != nil {
					return fmt.Errorf("update lead %s from row %d: %w", target, row.RowNumber, err)
				}
				if err := tx.AddHistory(ctx, domain.LeadHistory{
					LeadID:      target,
					EventType:   domain.EventTypeImported,
					ImportJobID: plan.job.ID,
					Action:      domain.HistoryUpdated,
					RowNumber:   row.RowNumber,
					CreatedAt:   now,
				}); err != nil {
					return fmt.Errorf("write history for row %d: %w", row.RowNumber, err)
				}
				leadID := target
				row.Outcome = domain.OutcomeUpdated
				row.LeadID = &leadID
				row.DuplicateOf = m.ref
				delta.Imported++
				delta.Updated++

			default:
				assignee, err := plan.assignment.Assign(ctx, row, plan.job.Counters.AssignedRows+delta.Assigned)
				if err != nil {
					return err
				}
				if plan.assignment.Counts() {
					delta.Assigned++
				}

				lead := domain.NewLeadFromValues(row.Values, plan.options.DefaultStatus, plan.options.DefaultSource)
				lead.ID = w.newID()
				lead.AssignedTo = assignee
				lead.ImportJobID = plan.job.ID
				lead.CreatedAt = now
				lead.UpdatedAt = now

				created, err := tx.CreateLead(ctx, lead)
				if err != nil {
					return fmt.Errorf("create lead from row %d: %w", row.RowNumber, err)
				}
				if err := tx.AddHistory(ctx, domain.LeadHistory{
					LeadID:      created.ID,
					EventType:   domain.EventTypeImported,
					ImportJobID: plan.job.ID,
					Action:      domain.HistoryCreated,
					RowNumber:   row.RowNumber,
					CreatedAt:   now,
				}); err != nil {
					return fmt.Errorf("write history for row %d: %w", row.RowNumber, err)
				}
				leadID := created.ID
				row.Outcome = domain.OutcomeImported
				row.LeadID = &leadID
				delta.Imported++
				plan.duplicates.Bind(m, row.RowNumber, leadID)
			}

			if err := tx.MarkRow(ctx, row); err != nil {
				return fmt.Errorf("mark row %d: %w", row.RowNumber, err)
			}
			rows[i] = row
		}

		return tx.AdvanceCommit(ctx, plan.job.ID, delta, plan.job.CurrentChunk+1)
	})
	if err != nil {
		plan.duplicates.Rollback()
		return domain.CommitDelta{}, err
	}

	plan.duplicates.Commit()
	return delta, nil
}
