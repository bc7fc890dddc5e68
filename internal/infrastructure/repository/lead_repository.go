package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

// LeadRepository commits import batches: leads, history, row outcomes and
// job counters land in one transaction.
type LeadRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db, now: time.Now}
}

func (r *LeadRepository) CommitBatch(ctx context.Context, jobID string, fn func(tx domain.CommitTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&commitTx{db: tx, now: r.now})
	})
}

type commitTx struct {
	db  *gorm.DB
	now func() time.Time
}

func (t *commitTx) FindLeadsByKeys(ctx context.Context, keys []domain.DedupKey, excludeJobID string) ([]domain.Lead, error) {
	grouped := map[domain.Field][]string{}
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		value := key.Value
		if key.Field == domain.FieldEmail {
			value = strings.ToLower(value)
		}
		grouped[key.Field] = append(grouped[key.Field], value)
	}
	if len(grouped) == 0 {
		return nil, nil
	}

	match := t.db.WithContext(ctx).Where("1 = 0")
	for _, field := range domain.ContactFields {
		values := grouped[field]
		if len(values) == 0 {
			continue
		}
		switch field {
		case domain.FieldEmail:
			match = match.Or("LOWER(email) IN ?", values)
		default:
			match = match.Or(leadColumns[field]+" IN ?", values)
		}
	}

	query := t.db.WithContext(ctx).Where(match)
	if excludeJobID != "" {
		query = query.Where("(import_job_id IS NULL OR import_job_id <> ?)", excludeJobID)
	}

	var rows []models.Lead
	if err := query.Order("created_at").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find leads by keys: %w", err)
	}
	leads := make([]domain.Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, toDomainLead(row))
	}
	return leads, nil
}

func (t *commitTx) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	now := t.now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	row := toLeadModel(lead)
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	return toDomainLead(row), nil
}

func (t *commitTx) UpdateLead(ctx context.Context, leadID string, values map[domain.Field]string) error {
	columns := map[string]any{}
	for field, value := range values {
		column, ok := leadColumns[field]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		columns[column] = value
	}
	if len(columns) == 0 {
		return nil
	}
	columns["updated_at"] = t.now().UTC()
	if err := t.db.WithContext(ctx).Model(&models.Lead{}).Where("id = ?", leadID).Updates(columns).Error; err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	return nil
}

func (t *commitTx) AddHistory(ctx context.Context, entry domain.LeadHistory) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = t.now().UTC()
	}
	row := models.LeadHistory{
		LeadID:      entry.LeadID,
		EventType:   entry.EventType,
		ImportJobID: nullableText(entry.ImportJobID),
		Action:      string(entry.Action),
		RowNumber:   entry.RowNumber,
		CreatedAt:   createdAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add lead history: %w", err)
	}
	return nil
}

func (t *commitTx) MarkRow(ctx context.Context, row domain.ImportRow) error {
	res := t.db.WithContext(ctx).Model(&models.ImportRow{}).
		Where("import_job_id = ? AND row_number = ? AND outcome = ?", row.JobID, row.RowNumber, string(domain.OutcomePending)).
		Updates(map[string]any{
			"outcome":      string(row.Outcome),
			"lead_id":      row.LeadID,
			"duplicate_of": row.DuplicateOf,
			"updated_at":   t.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark row %d: %w", row.RowNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: row %d", domain.ErrRowAlreadyHandled, row.RowNumber)
	}
	return nil
}

func (t *commitTx) AdvanceCommit(ctx context.Context, jobID string, delta domain.CommitDelta, chunk int) error {
	res := t.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"imported_rows": gorm.Expr("imported_rows + ?", delta.Imported),
			"updated_rows":  gorm.Expr("updated_rows + ?", delta.Updated),
			"skipped_rows":  gorm.Expr("skipped_rows + ?", delta.Skipped),
			"assigned_rows": gorm.Expr("assigned_rows + ?", delta.Assigned),
			"current_chunk": chunk,
			"updated_at":    t.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("advance commit counters: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
