package leadimport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type AssignmentMode string

const (
	AssignmentNone       AssignmentMode = "none"
	AssignmentRoundRobin AssignmentMode = "round_robin"
	AssignmentByColumn   AssignmentMode = "by_column"
)

type AssignmentConfig struct {
	Mode              AssignmentMode `json:"mode" validate:"required,oneof=none round_robin by_column"`
	RoundRobinUserIDs []string       `json:"roundRobinUserIds,omitempty" validate:"omitempty,dive,required"`
	AssignmentColumn  string         `json:"assignmentColumn,omitempty"`
}

type DuplicateStrategy string

const (
	DuplicateSkip   DuplicateStrategy = "skip"
	DuplicateUpdate DuplicateStrategy = "update"
	DuplicateCreate DuplicateStrategy = "create"
)

type DuplicateConfig struct {
	Strategy        DuplicateStrategy `json:"strategy" validate:"required,oneof=skip update create"`
	CheckFields     []Field           `json:"checkFields,omitempty" validate:"omitempty,dive,oneof=external_id email phone"`
	CheckDatabase   bool              `json:"checkDatabase"`
	CheckWithinFile bool              `json:"checkWithinFile"`
}

// Enabled reports whether any duplicate matching has to run.
func (c DuplicateConfig) Enabled() bool {
	return c.Strategy != DuplicateCreate && (c.CheckDatabase || c.CheckWithinFile)
}

// CommitOptions is the configuration accepted when an import is started.
type CommitOptions struct {
	Assignment    AssignmentConfig `json:"assignment"`
	Duplicates    DuplicateConfig  `json:"duplicates"`
	DefaultStatus string           `json:"defaultStatus,omitempty" validate:"max=50"`
	DefaultSource string           `json:"defaultSource,omitempty" validate:"max=100"`
}

// Normalize fills defaults: no assignment mode means none, and an empty
// check-field list means every contact field. Check fields are reordered into
// key priority order (external id, email, phone).
func (o CommitOptions) Normalize() CommitOptions {
	out := o
	if out.Assignment.Mode == "" {
		out.Assignment.Mode = AssignmentNone
	}
	out.Assignment.AssignmentColumn = strings.TrimSpace(out.Assignment.AssignmentColumn)
	out.DefaultStatus = strings.TrimSpace(out.DefaultStatus)
	out.DefaultSource = strings.TrimSpace(out.DefaultSource)

	requested := make(map[Field]bool, len(o.Duplicates.CheckFields))
	for _, field := range o.Duplicates.CheckFields {
		requested[field] = true
	}
	ordered := make([]Field, 0, len(ContactFields))
	for _, field := range ContactFields {
		if len(requested) == 0 || requested[field] {
			ordered = append(ordered, field)
		}
	}
	for field := range requested {
		if !field.IsContact() {
			// keep unknown entries so Validate can reject them
			ordered = append(ordered, field)
		}
	}
	out.Duplicates.CheckFields = ordered
	return out
}

func (o CommitOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch o.Assignment.Mode {
	case AssignmentRoundRobin:
		if len(o.Assignment.RoundRobinUserIDs) == 0 {
			return fmt.Errorf("%w: round_robin requires at least one user id", ErrInvalidConfig)
		}
	case AssignmentByColumn:
		if o.Assignment.AssignmentColumn == "" {
			return fmt.Errorf("%w: by_column requires an assignment column", ErrInvalidConfig)
		}
	}
	return nil
}
