package transfer

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/italolelis/download_scheduler/internal/budget"
	"github.com/italolelis/download_scheduler/internal/logctx"
	"github.com/italolelis/download_scheduler/internal/scheduler"
)

// ProgressFunc feeds transferred byte counts back to the scheduler.
type ProgressFunc func(id uint64, downloaded int64)

// Factory builds and runs transfer workers for the scheduler. Each admitted
// download gets a worker whose transfer runs in its own goroutine; progress
// flows back through the bound ProgressFunc, which is how the scheduler's
// UpdateProgress gets fed in the daemon.
type Factory struct {
	ctx    context.Context
	client *http.Client
	dir    string

	budget *budget.Budget
	report ProgressFunc
}

// NewFactory creates a factory. ctx bounds every transfer it starts; dir is
// the base directory joined with relative local locations.
func NewFactory(ctx context.Context, client *http.Client, dir string) *Factory {
	if client == nil {
		client = http.DefaultClient
	}

	return &Factory{
		ctx:    ctx,
		client: client,
		dir:    dir,
	}
}

// Bind attaches the scheduler-owned budget and the progress feed. The
// scheduler constructs its budget internally, so binding happens after the
// scheduler exists; workers constructed before Bind run unpaced and silent.
func (f *Factory) Bind(bdg *budget.Budget, report ProgressFunc) {
	f.budget = bdg
	f.report = report
}

// NewWorker implements scheduler.WorkerFactory. Construction validates the
// locations; only a valid worker starts transferring.
func (f *Factory) NewWorker(id uint64, remote, local string, size int64) (scheduler.Worker, error) {
	if local != "" && !filepath.IsAbs(local) {
		local = filepath.Join(f.dir, local)
	}

	worker, err := NewWorker(remote, local, size, f.client, f.budget)
	if err != nil {
		return nil, err
	}

	go f.run(id, worker)

	return worker, nil
}

func (f *Factory) run(id uint64, worker *Worker) {
	logger := logctx.LoggerFromContext(f.ctx).With("download_id", id)

	if f.budget != nil {
		if f.budget.TryAcquire() {
			defer f.budget.Release()
		} else {
			// Admissions are gated by the scheduler's ceiling, so the budget
			// normally has a slot free here; a miss means the two limits
			// disagree. The transfer still runs, unpaced by this slot.
			logger.Warn("transfer started without a budget slot", "remote", worker.Remote())
		}
	}

	onProgress := func(read, total int64) {
		if f.report != nil {
			f.report(id, read)
		}
	}

	if err := worker.Run(f.ctx, onProgress); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("transfer stopped", "remote", worker.Remote())

			return
		}

		logger.Error("transfer failed", "remote", worker.Remote(), "err", err)

		return
	}

	// Final report: the declared size arrived, which completes the record.
	if f.report != nil {
		f.report(id, worker.size)
	}
}
