package leadimport

import (
	"context"
	"io"
)

type JobRepository interface {
	Create(ctx context.Context, job ImportJob) (ImportJob, error)
	Get(ctx context.Context, id string) (ImportJob, error)
	// Update applies patch only while the job is in one of from. It returns
	// ErrInvalidTransition when the stored status is not in from and
	// ErrJobNotFound when the job does not exist.
	Update(ctx context.Context, id string, from []Status, patch JobPatch) (ImportJob, error)
	// Delete removes a job whose status is not active, with its staged rows.
	Delete(ctx context.Context, id string) error
}

// ParseProgress is the job state persisted together with a staged batch.
type ParseProgress struct {
	ProcessedRows int64
	ValidRows     int64
	InvalidRows   int64
	CurrentChunk  int
	Checkpoint    []byte
}

type StagingStore interface {
	// Rewind deletes staged rows with row_number > afterRow and resets the
	// parse counters to progress.
	Rewind(ctx context.Context, jobID string, afterRow int, progress ParseProgress) error
	// AppendBatch stores rows and progress in one transaction.
	AppendBatch(ctx context.Context, jobID string, rows []ImportRow, progress ParseProgress) error
}

type RowStore interface {
	// NextPending returns up to limit valid rows without an outcome, in row order.
	NextPending(ctx context.Context, jobID string, limit int) ([]ImportRow, error)
	// ListHandled returns valid rows that already carry an outcome, in row order.
	ListHandled(ctx context.Context, jobID string) ([]ImportRow, error)
	// ListInvalid returns invalid rows after afterRow, in row order.
	ListInvalid(ctx context.Context, jobID string, afterRow int, limit int) ([]ImportRow, error)
}

// CommitDelta is added to the job counters when a commit batch lands.
type CommitDelta struct {
	Imported int64
	Updated  int64
	Skipped  int64
	Assigned int64
}

type CommitTx interface {
	// FindLeadsByKeys returns leads matching any key, skipping leads created
	// by excludeJobID.
	FindLeadsByKeys(ctx context.Context, keys []DedupKey, excludeJobID string) ([]Lead, error)
	CreateLead(ctx context.Context, lead Lead) (Lead, error)
	// UpdateLead overwrites the lead columns present in values.
	UpdateLead(ctx context.Context, leadID string, values map[Field]string) error
	AddHistory(ctx context.Context, entry LeadHistory) error
	// MarkRow sets the outcome of a pending row. It returns
	// ErrRowAlreadyHandled when the row already has an outcome.
	MarkRow(ctx context.Context, row ImportRow) error
	AdvanceCommit(ctx context.Context, jobID string, delta CommitDelta, chunk int) error
}

type CommitStore interface {
	// CommitBatch runs fn in one transaction; nothing persists when fn fails.
	CommitBatch(ctx context.Context, jobID string, fn func(tx CommitTx) error) error
}

type UserDirectory interface {
	// Resolve maps a user id or email to a user id.
	Resolve(ctx context.Context, ident string) (string, bool, error)
}

type FileSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ParseTask is the payload of a parse work unit.
type ParseTask struct {
	ImportJobID string `json:"importJobId"`
}

// CommitTask is the payload of a commit work unit.
type CommitTask struct {
	ImportJobID      string           `json:"importJobId"`
	AssignmentConfig AssignmentConfig `json:"assignmentConfig"`
	DuplicateConfig  DuplicateConfig  `json:"duplicateConfig"`
	DefaultStatus    string           `json:"defaultStatus,omitempty"`
	DefaultSource    string           `json:"defaultSource,omitempty"`
}

func NewCommitTask(jobID string, opts CommitOptions) CommitTask {
	return CommitTask{
		ImportJobID:      jobID,
		AssignmentConfig: opts.Assignment,
		DuplicateConfig:  opts.Duplicates,
		DefaultStatus:    opts.DefaultStatus,
		DefaultSource:    opts.DefaultSource,
	}
}

func (t CommitTask) Options() CommitOptions {
	return CommitOptions{
		Assignment:    t.AssignmentConfig,
		Duplicates:    t.DuplicateConfig,
		DefaultStatus: t.DefaultStatus,
		DefaultSource: t.DefaultSource,
	}
}

// JobDispatcher schedules work units. Implementations deliver each task at
// least once.
type JobDispatcher interface {
	DispatchParse(ctx context.Context, task ParseTask) error
	DispatchCommit(ctx context.Context, task CommitTask) error
}

// TaskRunner executes work units; every call must tolerate redelivery.
type TaskRunner interface {
	RunParse(ctx context.Context, task ParseTask) error
	RunCommit(ctx context.Context, task CommitTask) error
	FailJob(ctx context.Context, jobID string, cause error) error
}

type ProgressPublisher interface {
	PublishProgress(ctx context.Context, jobID string, progress Progress) error
}

type Notifier interface {
	NotifyJobFailed(ctx context.Context, job ImportJob) error
}
