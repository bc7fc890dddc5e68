package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

type ImportJobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db, now: time.Now}
}

func (r *ImportJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	row, err := toJobModel(job)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}
	return toDomainJob(row)
}

func (r *ImportJobRepository) Get(ctx context.Context, id string) (domain.ImportJob, error) {
	return getJob(r.db.WithContext(ctx), id)
}

func getJob(db *gorm.DB, id string) (domain.ImportJob, error) {
	var row models.ImportJob
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ImportJob{}, domain.ErrJobNotFound
		}
		return domain.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}
	return toDomainJob(row)
}

// Update applies patch with a compare-and-set on the stored status, so two
// writers racing on the same transition cannot both win.
func (r *ImportJobRepository) Update(ctx context.Context, id string, from []domain.Status, patch domain.JobPatch) (domain.ImportJob, error) {
	var updated domain.ImportJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getJob(tx, id)
		if err != nil {
			return err
		}
		if !containsStatus(from, current.Status) {
			return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, current.Status)
		}
		if patch.Status != nil && *patch.Status != current.Status && !current.Status.CanTransitionTo(*patch.Status) {
			return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, current.Status, *patch.Status)
		}

		values, err := patchColumns(patch)
		if err != nil {
			return err
		}
		values["updated_at"] = r.now().UTC()

		res := tx.Model(&models.ImportJob{}).
			Where("id = ? AND status = ?", id, string(current.Status)).
			Updates(values)
		if res.Error != nil {
			return fmt.Errorf("update import job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job changed concurrently", domain.ErrInvalidTransition)
		}

		updated, err = getJob(tx, id)
		return err
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	return updated, nil
}

// Delete removes the job and its staged rows. Active jobs are refused.
func (r *ImportJobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getJob(tx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanDelete() {
			return fmt.Errorf("%w: job is %s", domain.ErrJobActive, current.Status)
		}
		if err := tx.Where("import_job_id = ?", id).Delete(&models.ImportRow{}).Error; err != nil {
			return fmt.Errorf("delete import rows: %w", err)
		}
		res := tx.Where("id = ? AND status = ?", id, string(current.Status)).Delete(&models.ImportJob{})
		if res.Error != nil {
			return fmt.Errorf("delete import job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job changed concurrently", domain.ErrJobActive)
		}
		return nil
	})
}

func patchColumns(patch domain.JobPatch) (map[string]any, error) {
	values := map[string]any{}
	if patch.Status != nil {
		values["status"] = string(*patch.Status)
	}
	if patch.Headers != nil {
		raw, err := toJSON(patch.Headers)
		if err != nil {
			return nil, fmt.Errorf("encode headers: %w", err)
		}
		values["headers"] = raw
	}
	if patch.Delimiter != nil {
		values["delimiter"] = *patch.Delimiter
	}
	if patch.SheetName != nil {
		values["sheet_name"] = *patch.SheetName
	}
	if patch.Mapping != nil {
		raw, err := toJSON(patch.Mapping)
		if err != nil {
			return nil, fmt.Errorf("encode mapping: %w", err)
		}
		values["column_mapping"] = raw
	}
	if patch.Options != nil {
		var row models.ImportJob
		if err := setOptions(&row, *patch.Options); err != nil {
			return nil, err
		}
		values["assignment_config"] = row.AssignmentConfig
		values["duplicate_config"] = row.DuplicateConfig
		values["default_status"] = row.DefaultStatus
		values["default_source"] = row.DefaultSource
	}
	if patch.ErrorMessage != nil {
		values["error_message"] = nullableText(*patch.ErrorMessage)
	}
	if patch.ErrorDetails != nil {
		if len(patch.ErrorDetails) == 0 {
			values["error_details"] = gorm.Expr("NULL")
		} else {
			raw, err := toJSON(patch.ErrorDetails)
			if err != nil {
				return nil, fmt.Errorf("encode error details: %w", err)
			}
			values["error_details"] = raw
		}
	}
	if patch.TotalRows != nil {
		values["total_rows"] = *patch.TotalRows
	}
	if patch.CurrentChunk != nil {
		values["current_chunk"] = *patch.CurrentChunk
	}
	if patch.TotalChunks != nil {
		values["total_chunks"] = *patch.TotalChunks
	}
	if patch.ParseCompleted != nil {
		values["parse_completed"] = *patch.ParseCompleted
	}
	if patch.StartedAt != nil {
		values["started_at"] = *patch.StartedAt
	}
	if patch.CompletedAt != nil {
		values["completed_at"] = *patch.CompletedAt
	}
	if patch.IncrementAttempts {
		values["attempts"] = gorm.Expr("attempts + 1")
	}
	return values, nil
}

func containsStatus(statuses []domain.Status, status domain.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
