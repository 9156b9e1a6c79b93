package transfer

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/download_scheduler/internal/budget"
	"github.com/italolelis/download_scheduler/internal/logctx"
)

type reportCollector struct {
	mu      sync.Mutex
	reports map[uint64][]int64
	done    chan struct{}
	want    int64
}

func newReportCollector(want int64) *reportCollector {
	return &reportCollector{
		reports: make(map[uint64][]int64),
		done:    make(chan struct{}),
		want:    want,
	}
}

func (c *reportCollector) report(id uint64, downloaded int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports[id] = append(c.reports[id], downloaded)

	if downloaded >= c.want {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
}

func TestFactoryRunsWorkerAndFeedsProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 300*1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	collector := newReportCollector(int64(len(payload)))

	factory := NewFactory(context.Background(), srv.Client(), dir)
	factory.Bind(budget.New(0, 3), collector.report)

	worker, err := factory.NewWorker(42, srv.URL, "sub/file.bin", int64(len(payload)))
	require.NoError(t, err)
	require.NotNil(t, worker)

	select {
	case <-collector.done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not report completion in time")
	}

	got, err := os.ReadFile(filepath.Join(dir, "sub", "file.bin"))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	collector.mu.Lock()
	reports := collector.reports[42]
	collector.mu.Unlock()

	require.NotEmpty(t, reports)
	require.Equal(t, int64(len(payload)), reports[len(reports)-1])
}

func TestFactoryWarnsWhenBudgetHasNoSlot(t *testing.T) {
	payload := []byte("small payload")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	bdg := budget.New(0, 1)
	require.True(t, bdg.TryAcquire()) // exhaust the only slot up front

	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := logctx.WithLogger(context.Background(), logger)

	collector := newReportCollector(int64(len(payload)))

	factory := NewFactory(ctx, srv.Client(), t.TempDir())
	factory.Bind(bdg, collector.report)

	_, err := factory.NewWorker(7, srv.URL, "f.bin", int64(len(payload)))
	require.NoError(t, err)

	select {
	case <-collector.done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish without a budget slot")
	}

	require.Contains(t, buf.String(), "without a budget slot")

	// The slot it never held was not released on its behalf.
	require.Equal(t, 1, bdg.Active())
}

func TestFactoryRejectsInvalidLocation(t *testing.T) {
	factory := NewFactory(context.Background(), nil, t.TempDir())

	_, err := factory.NewWorker(1, "ftp://example.com/f", "f", 10)

	var locErr *LocationError
	require.ErrorAs(t, err, &locErr)
}
