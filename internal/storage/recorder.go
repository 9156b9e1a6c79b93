package storage

import (
	"log/slog"

	"github.com/italolelis/download_scheduler/internal/scheduler"
)

// LookupFunc resolves a download id to its current snapshot. The scheduler's
// DownloadInfo satisfies it.
type LookupFunc func(id uint64) (scheduler.Info, error)

// Recorder is a notification sink that mirrors terminal downloads into the
// archive. Completions and cancellations are archived; removing a download
// from the scheduler purges it from the archive too.
type Recorder struct {
	scheduler.NopSink

	repo   ArchiveWriteRepository
	lookup LookupFunc
	logger *slog.Logger
}

// NewRecorder creates a recorder writing through repo, resolving snapshots
// via lookup.
func NewRecorder(repo ArchiveWriteRepository, lookup LookupFunc, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		repo:   repo,
		lookup: lookup,
		logger: logger,
	}
}

// OnCompleted archives the finished download.
func (r *Recorder) OnCompleted(id uint64) {
	r.archive(id)
}

// OnCancelled archives the cancelled download.
func (r *Recorder) OnCancelled(id uint64) {
	r.archive(id)
}

// OnRemoved purges the download from the archive.
func (r *Recorder) OnRemoved(id uint64) {
	if err := r.repo.DeleteArchived(id); err != nil {
		r.logger.Error("failed to purge archived download", "download_id", id, "err", err)
	}
}

func (r *Recorder) archive(id uint64) {
	info, err := r.lookup(id)
	if err != nil {
		r.logger.Error("failed to snapshot download for archiving", "download_id", id, "err", err)

		return
	}

	archived := ArchivedDownload{
		DownloadID:  info.ID,
		Remote:      info.Remote,
		Local:       info.Local,
		Size:        info.Size,
		Priority:    info.Priority.String(),
		State:       info.State.String(),
		CompletedAt: info.CompletedAt,
	}

	if err := r.repo.Archive(archived); err != nil {
		r.logger.Error("failed to archive download", "download_id", id, "err", err)
	}
}
