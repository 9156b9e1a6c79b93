package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/italolelis/download_scheduler/internal/scheduler"
)

type memoryRepo struct {
	archived []ArchivedDownload
	deleted  []uint64
	err      error
}

func (m *memoryRepo) Archive(d ArchivedDownload) error {
	if m.err != nil {
		return m.err
	}

	m.archived = append(m.archived, d)

	return nil
}

func (m *memoryRepo) DeleteArchived(downloadID uint64) error {
	if m.err != nil {
		return m.err
	}

	m.deleted = append(m.deleted, downloadID)

	return nil
}

func TestRecorderArchivesTerminalDownloads(t *testing.T) {
	completedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := &memoryRepo{}
	rec := NewRecorder(repo, func(id uint64) (scheduler.Info, error) {
		return scheduler.Info{
			ID:          id,
			Remote:      "http://example.com/f",
			Local:       "f",
			Size:        10,
			Priority:    scheduler.PriorityHigh,
			State:       scheduler.StateCompleted,
			CompletedAt: completedAt,
		}, nil
	}, nil)

	rec.OnCompleted(1)
	rec.OnCancelled(2)

	require.Len(t, repo.archived, 2)
	require.Equal(t, uint64(1), repo.archived[0].DownloadID)
	require.Equal(t, "high", repo.archived[0].Priority)
	require.Equal(t, "completed", repo.archived[0].State)
	require.Equal(t, completedAt, repo.archived[0].CompletedAt)
}

func TestRecorderPurgesOnRemove(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, func(id uint64) (scheduler.Info, error) {
		return scheduler.Info{ID: id}, nil
	}, nil)

	rec.OnRemoved(7)

	require.Equal(t, []uint64{7}, repo.deleted)
}

func TestRecorderSwallowsFailures(t *testing.T) {
	repo := &memoryRepo{err: errors.New("disk gone")}
	rec := NewRecorder(repo, func(id uint64) (scheduler.Info, error) {
		return scheduler.Info{ID: id}, nil
	}, nil)

	// Sink callbacks must not panic or propagate storage failures.
	rec.OnCompleted(1)
	rec.OnRemoved(1)

	lookupFailed := NewRecorder(repo, func(uint64) (scheduler.Info, error) {
		return scheduler.Info{}, errors.New("unknown id")
	}, nil)
	lookupFailed.OnCompleted(2)

	require.Empty(t, repo.archived)
}

func TestRecorderIgnoresNonTerminalEvents(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, func(id uint64) (scheduler.Info, error) {
		return scheduler.Info{ID: id}, nil
	}, nil)

	rec.OnAdded(1)
	rec.OnStarted(1)
	rec.OnPaused(1)
	rec.OnResumed(1)
	rec.OnProgress(1, 5, 10, 50)

	require.Empty(t, repo.archived)
	require.Empty(t, repo.deleted)
}
