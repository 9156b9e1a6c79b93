// Package transfer performs the byte transfer for one admitted download.
// The scheduler only tracks worker handles; the actual I/O runs out of band
// and reports bytes back through the scheduler's UpdateProgress.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/download_scheduler/internal/budget"
	"github.com/italolelis/download_scheduler/internal/logctx"
	"github.com/italolelis/download_scheduler/internal/transfer/progress"
)

const (
	dirPerm = 0o755

	// copyChunkSize is the unit of pacing: after each chunk the worker asks
	// the budget how long to sleep to stay within its rate slice.
	copyChunkSize = 32 * 1024

	// defaultReportInterval is how many bytes pass between progress reports.
	defaultReportInterval = 256 * 1024
)

// Worker downloads one remote URL to one local path. It is constructed with
// a cancellation token; Cancel stops the transfer cooperatively, which is
// how the scheduler signals pause and cancel.
type Worker struct {
	remote string
	local  string
	size   int64

	client *http.Client
	budget *budget.Budget

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker validates the locations and prepares a worker. The remote
// location must be an absolute http(s) URL and the local location a
// non-empty path; a nil client falls back to http.DefaultClient.
func NewWorker(remote, local string, size int64, client *http.Client, bdg *budget.Budget) (*Worker, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return nil, &LocationError{Location: remote, Reason: "not a valid URL", Err: err}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &LocationError{Location: remote, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	if u.Host == "" {
		return nil, &LocationError{Location: remote, Reason: "missing host"}
	}

	if local == "" {
		return nil, &LocationError{Location: local, Reason: "empty local path"}
	}

	if size < 0 {
		return nil, &LocationError{Location: remote, Reason: fmt.Sprintf("negative size %d", size)}
	}

	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		remote: remote,
		local:  local,
		size:   size,
		client: client,
		budget: bdg,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Cancel signals the worker to stop. Safe to call more than once.
func (w *Worker) Cancel() {
	w.cancel()
}

// Remote returns the remote location handle.
func (w *Worker) Remote() string { return w.remote }

// Local returns the local location handle.
func (w *Worker) Local() string { return w.local }

// Run streams the remote URL to the local path, invoking onProgress with the
// cumulative byte count. It honours both the passed context and the worker's
// own cancellation token, and paces itself against the budget's per-transfer
// rate slice.
func (w *Worker) Run(ctx context.Context, onProgress func(written, total int64)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.remote, nil)
	if err != nil {
		return &NetworkError{Operation: "fetch", Err: err}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return &NetworkError{Operation: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &NetworkError{Operation: "fetch", StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(w.local), dirPerm); err != nil {
		return &LocationError{Location: w.local, Reason: "cannot create parent directory", Err: err}
	}

	out, err := os.Create(w.local)
	if err != nil {
		return &LocationError{Location: w.local, Reason: "cannot create file", Err: err}
	}
	defer out.Close()

	reader := progress.NewReader(resp.Body, w.size, defaultReportInterval, onProgress)

	if err := w.copyPaced(ctx, out, reader); err != nil {
		return err
	}

	logger.Debug("transfer finished", "remote", w.remote, "local", w.local, "bytes", reader.BytesRead())

	return out.Close()
}

// copyPaced copies in fixed-size chunks, sleeping between chunks as directed
// by the budget so the aggregate rate limit holds.
func (w *Worker) copyPaced(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyChunkSize)

	for {
		chunkStart := time.Now()

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return &LocationError{Location: w.local, Reason: "write failed", Err: err}
			}

			if w.budget != nil {
				if pause := w.budget.Pace(int64(n), time.Since(chunkStart)); pause > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(pause):
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return &NetworkError{Operation: "stream", Err: readErr}
		}
	}
}
