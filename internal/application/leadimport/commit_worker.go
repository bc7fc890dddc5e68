package leadimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

// RunCommit writes pending staged rows into the lead table batch by batch in
// row order. Rows with an outcome are never revisited, so a redelivered or
// retried task continues where the last landed batch stopped.
func (o *Orchestrator) RunCommit(ctx context.Context, task domain.CommitTask) error {
	job, err := o.jobs.Get(ctx, task.ImportJobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		o.log.WithField("job_id", task.ImportJobID).Warn("commit task for unknown job ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.StatusImporting {
		o.log.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Debug("commit task ignored")
		return nil
	}

	log := o.log.WithFields(logrus.Fields{"job_id": job.ID, "phase": domain.StatusImporting})

	// Options validated at start win over whatever the task carries.
	opts := task.Options()
	if job.Options != nil {
		opts = *job.Options
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return o.failJob(ctx, job, err)
	}

	duplicates := NewDuplicateResolver(job.ID, opts.Duplicates)
	if opts.Duplicates.Enabled() && opts.Duplicates.CheckWithinFile {
		handled, err := o.rows.ListHandled(ctx, job.ID)
		if err != nil {
			return o.abort(ctx, job, fmt.Errorf("load committed rows: %w", err))
		}
		duplicates.Seed(handled)
		if len(handled) > 0 {
			log.WithField("handled_rows", len(handled)).Info("resuming commit")
		}
	}
	assignment := NewAssignmentResolver(opts.Assignment, job.Headers, o.users)

	started := o.now()
	for batches := 0; ; batches++ {
		current, err := o.jobs.Get(ctx, job.ID)
		if err != nil {
			return o.abort(ctx, job, fmt.Errorf("reload job: %w", err))
		}
		if current.Status != domain.StatusImporting {
			log.WithField("status", current.Status).Info("commit stopped, job is no longer importing")
			return nil
		}
		if batches > 0 && o.budgetExceeded(started) {
			log.Info("commit budget exhausted, continuing in a new invocation")
			if err := o.dispatcher.DispatchCommit(ctx, domain.NewCommitTask(job.ID, opts)); err != nil {
				return o.failJob(ctx, current, fmt.Errorf("dispatch commit continuation: %w", err))
			}
			return nil
		}

		rows, err := o.rows.NextPending(ctx, job.ID, o.cfg.BatchSize)
		if err != nil {
			return o.abort(ctx, current, fmt.Errorf("load pending rows: %w", err))
		}
		if len(rows) == 0 {
			return o.finishCommit(ctx, current)
		}

		batchStarted := time.Now()
		delta, err := o.committer.WriteBatch(ctx, commitPlan{
			job:        current,
			options:    opts,
			duplicates: duplicates,
			assignment: assignment,
		}, rows)
		if errors.Is(err, domain.ErrRowAlreadyHandled) {
			log.WithError(err).Warn("rows committed concurrently, leaving the job to the other invocation")
			return nil
		}
		if err != nil {
			return o.abort(ctx, current, fmt.Errorf("commit batch %d: %w", current.CurrentChunk+1, err))
		}
		recordCommittedBatch(delta, batchStarted)

		current.Counters.ImportedRows += delta.Imported
		current.Counters.UpdatedRows += delta.Updated
		current.Counters.SkippedRows += delta.Skipped
		current.Counters.AssignedRows += delta.Assigned
		current.CurrentChunk++
		o.publish(ctx, current)

		log.WithFields(logrus.Fields{
			"chunk":    current.CurrentChunk,
			"imported": delta.Imported,
			"skipped":  delta.Skipped,
		}).Debug("committed batch")
	}
}

func (o *Orchestrator) finishCommit(ctx context.Context, job domain.ImportJob) error {
	next := domain.StatusCompleted
	now := o.now().UTC()
	done, err := o.jobs.Update(ctx, job.ID, []domain.Status{domain.StatusImporting}, domain.JobPatch{
		Status:      &next,
		CompletedAt: &now,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return o.abort(ctx, job, fmt.Errorf("complete job: %w", err))
	}

	recordJobFinished(domain.StatusCompleted)
	o.publish(ctx, done)
	o.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"imported": done.Counters.ImportedRows,
		"updated":  done.Counters.UpdatedRows,
		"skipped":  done.Counters.SkippedRows,
	}).Info("import completed")
	return nil
}
