// Package leadimport runs lead import jobs: staging parsed rows, resolving
// duplicates and assignees, committing leads and driving the job status.
package leadimport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohammadpnp/lead-import/internal/application/mapping"
	"github.com/mohammadpnp/lead-import/internal/application/parser"
	"github.com/mohammadpnp/lead-import/internal/application/validation"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const maxErrorMessageLength = 1000

type Config struct {
	BatchSize int
	// InvocationBudget bounds one parse or commit invocation. When exceeded
	// between batches the invocation re-dispatches itself and returns.
	InvocationBudget  time.Duration
	SampleRows        int
	ValidationWorkers int
}

type Dependencies struct {
	Jobs       domain.JobRepository
	Staging    domain.StagingStore
	Rows       domain.RowStore
	Commits    domain.CommitStore
	Users      domain.UserDirectory
	Files      domain.FileSource
	Dispatcher domain.JobDispatcher

	// Optional.
	Progress  domain.ProgressPublisher
	Notifier  domain.Notifier
	Parser    *parser.Parser
	Mapper    *mapping.Mapper
	Validator *validation.Validator
	Logger    *logrus.Entry
	Now       func() time.Time
	NewID     func() string
}

type Orchestrator struct {
	jobs       domain.JobRepository
	rows       domain.RowStore
	users      domain.UserDirectory
	files      domain.FileSource
	dispatcher domain.JobDispatcher
	progress   domain.ProgressPublisher
	notifier   domain.Notifier

	parser    *parser.Parser
	mapper    *mapping.Mapper
	validator *validation.Validator
	staging   *StagingWriter
	committer *CommitWriter

	cfg   Config
	log   *logrus.Entry
	now   func() time.Time
	newID func() string
}

func NewOrchestrator(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = parser.DefaultBatchSize
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = parser.DefaultSampleRows
	}
	if cfg.ValidationWorkers <= 0 {
		cfg.ValidationWorkers = 4
	}
	if deps.Parser == nil {
		deps.Parser = parser.New()
	}
	if deps.Mapper == nil {
		deps.Mapper = mapping.New(mapping.Config{})
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	log := deps.Logger.WithField("component", "lead_import")
	return &Orchestrator{
		jobs:       deps.Jobs,
		rows:       deps.Rows,
		users:      deps.Users,
		files:      deps.Files,
		dispatcher: deps.Dispatcher,
		progress:   deps.Progress,
		notifier:   deps.Notifier,
		parser:     deps.Parser,
		mapper:     deps.Mapper,
		validator:  deps.Validator,
		staging:    NewStagingWriter(deps.Staging, deps.Now, log),
		committer:  NewCommitWriter(deps.Commits, deps.Now, deps.NewID),
		cfg:        cfg,
		log:        log,
		now:        deps.Now,
		newID:      deps.NewID,
	}
}

type CreateImportInput struct {
	CreatorID   string
	FileName    string
	FileType    string
	StoragePath string
	SheetName   string
}

// CreateImport registers an uploaded file as a pending job and suggests a
// column mapping from its header. When the file cannot be read the job is
// persisted as failed and returned together with the error.
func (o *Orchestrator) CreateImport(ctx context.Context, in CreateImportInput) (domain.ImportJob, error) {
	in.CreatorID = strings.TrimSpace(in.CreatorID)
	in.FileName = strings.TrimSpace(in.FileName)
	in.StoragePath = strings.TrimSpace(in.StoragePath)
	if in.CreatorID == "" || in.FileName == "" || in.StoragePath == "" {
		return domain.ImportJob{}, fmt.Errorf("%w: creator id, file name and storage path are required", ErrInvalidImportRequest)
	}
	fileType, ok := domain.ParseFileType(in.FileType, in.FileName)
	if !ok {
		return domain.ImportJob{}, fmt.Errorf("%w: %q", ErrUnsupportedFileType, in.FileType)
	}

	now := o.now().UTC()
	job, err := o.jobs.Create(ctx, domain.ImportJob{
		ID:          o.newID(),
		CreatorID:   in.CreatorID,
		FileName:    in.FileName,
		FileType:    fileType,
		StoragePath: in.StoragePath,
		SheetName:   strings.TrimSpace(in.SheetName),
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}

	log := o.log.WithFields(logrus.Fields{"job_id": job.ID, "file_name": job.FileName})

	preview, err := o.preview(ctx, job)
	if err != nil {
		log.WithError(err).Warn("import file preview failed")
		failErr := o.failJob(ctx, job, fmt.Errorf("%w: %w", ErrImportFileUnreadable, err))
		failed, getErr := o.jobs.Get(ctx, job.ID)
		if getErr != nil {
			failed = job
		}
		return failed, failErr
	}

	suggested := o.mapper.Suggest(preview.Headers, preview.Samples)
	job, err = o.jobs.Update(ctx, job.ID, []domain.Status{domain.StatusPending}, domain.JobPatch{
		Headers:   preview.Headers,
		Delimiter: &preview.Delimiter,
		SheetName: &preview.SheetName,
		Mapping:   suggested,
	})
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("store suggested mapping: %w", err)
	}

	log.WithField("columns", len(preview.Headers)).Info("import job created")
	return job, nil
}

func (o *Orchestrator) preview(ctx context.Context, job domain.ImportJob) (parser.Preview, error) {
	reader, err := o.files.Open(ctx, job.StoragePath)
	if err != nil {
		return parser.Preview{}, fmt.Errorf("open import file: %w", err)
	}
	defer reader.Close()

	return o.parser.Preview(ctx, reader, parser.Options{
		FileType:   job.FileType,
		SheetName:  job.SheetName,
		SampleRows: o.cfg.SampleRows,
	})
}

func (o *Orchestrator) Get(ctx context.Context, jobID string) (domain.ImportJob, error) {
	return o.jobs.Get(ctx, jobID)
}

func (o *Orchestrator) Progress(ctx context.Context, jobID string) (domain.Progress, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.Progress{}, err
	}
	return job.Progress(), nil
}

// UpdateMapping applies manual overrides while the job is still pending.
func (o *Orchestrator) UpdateMapping(ctx context.Context, jobID string, overrides []mapping.Override) (domain.ImportJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if job.Status != domain.StatusPending {
		return domain.ImportJob{}, fmt.Errorf("%w: mapping can only change while pending, job is %s", domain.ErrInvalidTransition, job.Status)
	}

	updated, err := mapping.ApplyOverrides(job.Mapping, overrides)
	if err != nil {
		return domain.ImportJob{}, err
	}
	return o.jobs.Update(ctx, jobID, []domain.Status{domain.StatusPending}, domain.JobPatch{Mapping: updated})
}

// StartImport validates the commit configuration and dispatches parsing.
// Configuration errors leave the job pending.
func (o *Orchestrator) StartImport(ctx context.Context, jobID string, opts domain.CommitOptions) (domain.ImportJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if job.Status != domain.StatusPending {
		return domain.ImportJob{}, fmt.Errorf("%w: cannot start a %s job", domain.ErrInvalidTransition, job.Status)
	}

	opts, err = o.checkStart(ctx, job, opts)
	if err != nil {
		return domain.ImportJob{}, err
	}

	next := domain.StatusParsing
	now := o.now().UTC()
	job, err = o.jobs.Update(ctx, jobID, []domain.Status{domain.StatusPending}, domain.JobPatch{
		Status:            &next,
		Options:           &opts,
		StartedAt:         &now,
		IncrementAttempts: true,
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	o.publish(ctx, job)

	if err := o.dispatcher.DispatchParse(ctx, domain.ParseTask{ImportJobID: jobID}); err != nil {
		return job, o.failJob(ctx, job, fmt.Errorf("dispatch parse: %w", err))
	}

	o.log.WithFields(logrus.Fields{
		"job_id":     jobID,
		"assignment": opts.Assignment.Mode,
		"duplicates": opts.Duplicates.Strategy,
	}).Info("import started")
	return job, nil
}

func (o *Orchestrator) checkStart(ctx context.Context, job domain.ImportJob, opts domain.CommitOptions) (domain.CommitOptions, error) {
	if err := job.Mapping.Validate(); err != nil {
		return domain.CommitOptions{}, err
	}
	if !job.Mapping.HasContactField() {
		return domain.CommitOptions{}, domain.ErrMissingContactMapping
	}

	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return domain.CommitOptions{}, err
	}

	switch opts.Assignment.Mode {
	case domain.AssignmentByColumn:
		if findColumn(job.Headers, opts.Assignment.AssignmentColumn) < 0 && job.Mapping.IndexOf(domain.FieldAssignedTo) < 0 {
			return domain.CommitOptions{}, fmt.Errorf("%w: assignment column %q not found", domain.ErrInvalidConfig, opts.Assignment.AssignmentColumn)
		}
	case domain.AssignmentRoundRobin:
		resolved := make([]string, 0, len(opts.Assignment.RoundRobinUserIDs))
		for _, ident := range opts.Assignment.RoundRobinUserIDs {
			userID, found, err := o.users.Resolve(ctx, ident)
			if err != nil {
				return domain.CommitOptions{}, fmt.Errorf("resolve round robin user: %w", err)
			}
			if !found {
				return domain.CommitOptions{}, fmt.Errorf("%w: unknown user %q", domain.ErrInvalidConfig, ident)
			}
			resolved = append(resolved, userID)
		}
		opts.Assignment.RoundRobinUserIDs = resolved
	}
	return opts, nil
}

// Cancel stops a job that has not reached a terminal status. Workers notice
// between batches.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (domain.ImportJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if !job.Status.CanCancel() {
		return domain.ImportJob{}, fmt.Errorf("%w: cannot cancel a %s job", domain.ErrInvalidTransition, job.Status)
	}

	next := domain.StatusCancelled
	job, err = o.jobs.Update(ctx, jobID, []domain.Status{domain.StatusPending, domain.StatusParsing, domain.StatusImporting}, domain.JobPatch{
		Status: &next,
	})
	if err != nil {
		return domain.ImportJob{}, err
	}

	recordJobFinished(domain.StatusCancelled)
	o.publish(ctx, job)
	o.log.WithField("job_id", jobID).Info("import cancelled")
	return job, nil
}

// Delete removes a job and its staged rows. Active jobs must be cancelled
// first.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanDelete() {
		return fmt.Errorf("%w: job is %s", domain.ErrJobActive, job.Status)
	}
	if err := o.jobs.Delete(ctx, jobID); err != nil {
		return err
	}
	o.log.WithField("job_id", jobID).Info("import deleted")
	return nil
}

// Retry resumes a failed job from its last checkpoint: parsing when the
// file was not fully staged, committing otherwise.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (domain.ImportJob, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return domain.ImportJob{}, err
	}
	if job.Status != domain.StatusFailed {
		return domain.ImportJob{}, fmt.Errorf("%w: only failed jobs can be retried, job is %s", domain.ErrInvalidTransition, job.Status)
	}
	if job.Options == nil {
		return domain.ImportJob{}, fmt.Errorf("%w: job failed before it was started", domain.ErrInvalidTransition)
	}

	next := domain.StatusParsing
	if job.ParseCompleted {
		next = domain.StatusImporting
	}
	cleared := ""
	job, err = o.jobs.Update(ctx, jobID, []domain.Status{domain.StatusFailed}, domain.JobPatch{
		Status:            &next,
		ErrorMessage:      &cleared,
		ErrorDetails:      map[string]string{},
		IncrementAttempts: true,
	})
	if err != nil {
		return domain.ImportJob{}, err
	}
	o.publish(ctx, job)

	if next == domain.StatusParsing {
		err = o.dispatcher.DispatchParse(ctx, domain.ParseTask{ImportJobID: jobID})
	} else {
		err = o.dispatcher.DispatchCommit(ctx, domain.NewCommitTask(jobID, *job.Options))
	}
	if err != nil {
		return job, o.failJob(ctx, job, fmt.Errorf("dispatch %s: %w", next, err))
	}

	o.log.WithFields(logrus.Fields{"job_id": jobID, "phase": next, "attempt": job.Attempts}).Info("import retried")
	return job, nil
}

// FailJob marks a job failed for a cause found outside the workers, such as
// a task that exhausted its deliveries.
func (o *Orchestrator) FailJob(ctx context.Context, jobID string, cause error) error {
	job, err := o.jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := o.failJob(ctx, job, cause); !errors.Is(err, ErrJobFailed) {
		return err
	}
	return nil
}

// failJob persists cause on the job and notifies its creator. The returned
// error wraps ErrJobFailed and cause.
func (o *Orchestrator) failJob(ctx context.Context, job domain.ImportJob, cause error) error {
	log := o.log.WithField("job_id", job.ID).WithError(cause)
	message := truncateReason(cause.Error())
	next := domain.StatusFailed

	// The caller's copy may predate the last landed batch.
	if fresh, err := o.jobs.Get(ctx, job.ID); err == nil {
		job = fresh
	}

	failed, err := o.jobs.Update(ctx, job.ID, []domain.Status{domain.StatusPending, domain.StatusParsing, domain.StatusImporting}, domain.JobPatch{
		Status:       &next,
		ErrorMessage: &message,
		ErrorDetails: failureDetails(job),
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Warn("import failure not recorded, job already finished")
		return fmt.Errorf("%w: %w", ErrJobFailed, cause)
	}
	if err != nil {
		return fmt.Errorf("%v; mark job failed: %w", cause, err)
	}

	log.Error("import failed")
	recordJobFinished(domain.StatusFailed)
	o.publish(ctx, failed)

	if o.notifier != nil {
		if err := o.notifier.NotifyJobFailed(ctx, failed); err != nil {
			log.WithError(err).Warn("notify job creator failed")
		}
	}
	return fmt.Errorf("%w: %w", ErrJobFailed, cause)
}

// failureDetails records where job stood when it failed.
func failureDetails(job domain.ImportJob) map[string]string {
	details := map[string]string{
		"phase":   string(job.Status),
		"chunk":   strconv.Itoa(job.CurrentChunk),
		"attempt": strconv.Itoa(job.Attempts),
	}
	if cp, ok, err := DecodeCheckpoint(job.Checkpoint); err == nil && ok {
		details["lastRow"] = strconv.Itoa(cp.LastRowNumber)
	}
	return details
}

func (o *Orchestrator) publish(ctx context.Context, job domain.ImportJob) {
	if o.progress == nil {
		return
	}
	if err := o.progress.PublishProgress(ctx, job.ID, job.Progress()); err != nil {
		o.log.WithError(err).WithField("job_id", job.ID).Warn("publish import progress failed")
	}
}

func (o *Orchestrator) budgetExceeded(started time.Time) bool {
	return o.cfg.InvocationBudget > 0 && o.now().Sub(started) >= o.cfg.InvocationBudget
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxErrorMessageLength {
		return reason
	}
	return reason[:maxErrorMessageLength]
}
