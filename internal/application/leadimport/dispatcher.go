package leadimport

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

// InlineDispatcher runs tasks in-process, either before Dispatch returns or
// on a background goroutine. Task errors are logged, never returned.
type InlineDispatcher struct {
	async bool
	log   *logrus.Entry

	mu     sync.RWMutex
	runner domain.TaskRunner
	wg     sync.WaitGroup
}

func NewInlineDispatcher(async bool, log *logrus.Entry) *InlineDispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InlineDispatcher{async: async, log: log.WithField("component", "inline_dispatcher")}
}

// Bind sets the runner tasks are delivered to. The orchestrator both
// dispatches and runs tasks, so it is bound after construction.
func (d *InlineDispatcher) Bind(runner domain.TaskRunner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
}

func (d *InlineDispatcher) DispatchParse(ctx context.Context, task domain.ParseTask) error {
	return d.dispatch(ctx, "parse", task.ImportJobID, func(ctx context.Context, r domain.TaskRunner) error {
		return r.RunParse(ctx, task)
	})
}

func (d *InlineDispatcher) DispatchCommit(ctx context.Context, task domain.CommitTask) error {
	return d.dispatch(ctx, "commit", task.ImportJobID, func(ctx context.Context, r domain.TaskRunner) error {
		return r.RunCommit(ctx, task)
	})
}

// Wait blocks until background tasks have returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

func (d *InlineDispatcher) dispatch(ctx context.Context, kind, jobID string, run func(context.Context, domain.TaskRunner) error) error {
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()
	if runner == nil {
		return ErrDispatcherUnbound
	}

	exec := func(ctx context.Context) {
		if err := run(ctx, runner); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{"task": kind, "job_id": jobID}).Error("inline task failed")
		}
	}

	if !d.async {
		exec(ctx)
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		exec(context.WithoutCancel(ctx))
	}()
	return nil
}
