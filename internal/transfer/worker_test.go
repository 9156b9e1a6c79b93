package transfer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWorkerValidation(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		local  string
		size   int64
	}{
		{name: "unparseable url", remote: "http://bad url with spaces", local: "f", size: 1},
		{name: "unsupported scheme", remote: "ftp://example.com/f", local: "f", size: 1},
		{name: "missing host", remote: "http:///f", local: "f", size: 1},
		{name: "empty local path", remote: "http://example.com/f", local: "", size: 1},
		{name: "negative size", remote: "http://example.com/f", local: "f", size: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorker(tt.remote, tt.local, tt.size, nil, nil)

			var locErr *LocationError
			require.ErrorAs(t, err, &locErr)
		})
	}
}

func TestWorkerRunDownloadsFile(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 64*1024) // 512KiB, crosses the report interval

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	local := filepath.Join(t.TempDir(), "nested", "file.bin")

	worker, err := NewWorker(srv.URL, local, int64(len(payload)), srv.Client(), nil)
	require.NoError(t, err)

	var reports []int64

	err = worker.Run(context.Background(), func(read, total int64) {
		reports = append(reports, read)

		require.Equal(t, int64(len(payload)), total)
	})
	require.NoError(t, err)

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NotEmpty(t, reports)
	require.Equal(t, int64(len(payload)), reports[len(reports)-1])
}

func TestWorkerRunReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	worker, err := NewWorker(srv.URL, filepath.Join(t.TempDir(), "f"), 1, srv.Client(), nil)
	require.NoError(t, err)

	err = worker.Run(context.Background(), nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, http.StatusNotFound, netErr.StatusCode)
}

func TestWorkerCancelStopsTransfer(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64*1024))
		w.(http.Flusher).Flush()

		// Hold the connection open until the test finishes.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	worker, err := NewWorker(srv.URL, filepath.Join(t.TempDir(), "f"), 1<<20, srv.Client(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() {
		done <- worker.Run(context.Background(), nil)
	}()

	time.Sleep(50 * time.Millisecond)
	worker.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not stop after Cancel")
	}
}
