package leadimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mohammadpnp/lead-import/internal/application/parser"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

var (
	errStopped = errors.New("job left the phase")
	errYield   = errors.New("invocation budget exhausted")
)

// RunParse stages the job's file from its last checkpoint. It does nothing
// unless the job is parsing, so redelivered tasks are harmless.
func (o *Orchestrator) RunParse(ctx context.Context, task domain.ParseTask) error {
	job, err := o.jobs.Get(ctx, task.ImportJobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		o.log.WithField("job_id", task.ImportJobID).Warn("parse task for unknown job ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status != domain.StatusParsing {
		o.log.WithFields(logrus.Fields{"job_id": job.ID, "status": job.Status}).Debug("parse task ignored")
		return nil
	}

	log := o.log.WithFields(logrus.Fields{"job_id": job.ID, "phase": domain.StatusParsing})
	started := o.now()

	cursor, err := o.staging.Begin(ctx, job)
	if err != nil {
		return o.abort(ctx, job, fmt.Errorf("prepare staging: %w", err))
	}
	if cursor.LastRowNumber > 0 {
		log.WithField("after_row", cursor.LastRowNumber).Info("resuming parse from checkpoint")
	}

	reader, err := o.files.Open(ctx, job.StoragePath)
	if err != nil {
		return o.abort(ctx, job, fmt.Errorf("open import file: %w", err))
	}
	defer reader.Close()

	batches := 0
	result, err := o.parser.Parse(ctx, reader, parser.Options{
		FileType:      job.FileType,
		SheetName:     job.SheetName,
		BatchSize:     o.cfg.BatchSize,
		StartAfterRow: cursor.LastRowNumber,
	}, func(ctx context.Context, batch []parser.RawRow) error {
		current, err := o.jobs.Get(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		if current.Status != domain.StatusParsing {
			return errStopped
		}
		if batches > 0 && o.budgetExceeded(started) {
			return errYield
		}

		batchStarted := time.Now()
		rows, err := o.validateBatch(ctx, job, batch)
		if err != nil {
			return err
		}
		if err := o.staging.Write(ctx, job.ID, &cursor, rows); err != nil {
			return fmt.Errorf("write staging batch %d: %w", cursor.Chunk+1, err)
		}
		batches++
		recordParsedBatch(rows, batchStarted)

		current.Counters.ProcessedRows = cursor.ValidRows + cursor.InvalidRows
		current.Counters.ValidRows = cursor.ValidRows
		current.Counters.InvalidRows = cursor.InvalidRows
		current.CurrentChunk = cursor.Chunk
		o.publish(ctx, current)

		log.WithFields(logrus.Fields{"chunk": cursor.Chunk, "last_row": cursor.LastRowNumber}).Debug("staged batch")
		return nil
	})

	switch {
	case errors.Is(err, errStopped):
		log.Info("parse stopped, job is no longer parsing")
		return nil
	case errors.Is(err, errYield):
		log.WithField("last_row", cursor.LastRowNumber).Info("parse budget exhausted, continuing in a new invocation")
		if err := o.dispatcher.DispatchParse(ctx, task); err != nil {
			return o.failJob(ctx, job, fmt.Errorf("dispatch parse continuation: %w", err))
		}
		return nil
	case err != nil:
		return o.abort(ctx, job, fmt.Errorf("parse import file: %w", err))
	}

	return o.finishParse(ctx, job, result, cursor)
}

func (o *Orchestrator) finishParse(ctx context.Context, job domain.ImportJob, result parser.Result, cursor ParseCursor) error {
	log := o.log.WithFields(logrus.Fields{"job_id": job.ID, "phase": domain.StatusParsing})

	total := int64(result.Rows)
	if processed := cursor.ValidRows + cursor.InvalidRows; processed != total {
		return o.failJob(ctx, job, fmt.Errorf("staged %d rows but the file has %d", processed, total))
	}

	done := true
	patch := domain.JobPatch{
		TotalRows:      &total,
		ParseCompleted: &done,
	}

	if cursor.ValidRows == 0 {
		next := domain.StatusCompleted
		now := o.now().UTC()
		zero := 0
		patch.Status = &next
		patch.CompletedAt = &now
		patch.TotalChunks = &zero

		finished, err := o.jobs.Update(ctx, job.ID, []domain.Status{domain.StatusParsing}, patch)
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil
		}
		if err != nil {
			return o.abort(ctx, job, fmt.Errorf("complete job: %w", err))
		}
		recordJobFinished(domain.StatusCompleted)
		o.publish(ctx, finished)
		log.WithField("total_rows", total).Info("parse finished without valid rows, job completed")
		return nil
	}

	next := domain.StatusImporting
	chunks := domain.ChunkCount(cursor.ValidRows, o.cfg.BatchSize)
	zero := 0
	patch.Status = &next
	patch.TotalChunks = &chunks
	patch.CurrentChunk = &zero

	importing, err := o.jobs.Update(ctx, job.ID, []domain.Status{domain.StatusParsing}, patch)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return o.abort(ctx, job, fmt.Errorf("start commit phase: %w", err))
	}
	o.publish(ctx, importing)

	log.WithFields(logrus.Fields{
		"total_rows":   total,
		"valid_rows":   cursor.ValidRows,
		"invalid_rows": cursor.InvalidRows,
	}).Info("parse finished")

	options := domain.CommitOptions{}
	if importing.Options != nil {
		options = *importing.Options
	}
	if err := o.dispatcher.DispatchCommit(ctx, domain.NewCommitTask(job.ID, options)); err != nil {
		return o.failJob(ctx, importing, fmt.Errorf("dispatch commit: %w", err))
	}
	return nil
}

// validateBatch validates rows concurrently; order is preserved.
func (o *Orchestrator) validateBatch(ctx context.Context, job domain.ImportJob, batch []parser.RawRow) ([]domain.ImportRow, error) {
	rows := make([]domain.ImportRow, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ValidationWorkers)

	for i := range batch {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw := batch[i]
			result := o.validator.Validate(raw, job.Mapping)
			status := domain.RowValid
			if !result.Valid() {
				status = domain.RowInvalid
			}
			rows[i] = domain.ImportRow{
				JobID:     job.ID,
				RowNumber: raw.Number,
				Status:    status,
				Raw:       raw.Values,
				Values:    result.Values,
				Errors:    result.Errors,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// abort fails the job unless ctx was cancelled, in which case the invocation
// returns the context error and the task is redelivered.
func (o *Orchestrator) abort(ctx context.Context, job domain.ImportJob, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return o.failJob(ctx, job, err)
}
