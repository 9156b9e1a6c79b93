package notifier

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// SlogSink logs every scheduler event through slog. It is the always-on sink
// in the daemon; chat and persistence sinks layer on top via MultiSink.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a logging sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &SlogSink{logger: logger}
}

func (s *SlogSink) OnAdded(id uint64) {
	s.logger.Info("download queued", "download_id", id)
}

func (s *SlogSink) OnStarted(id uint64) {
	s.logger.Info("download started", "download_id", id)
}

func (s *SlogSink) OnPaused(id uint64) {
	s.logger.Info("download paused", "download_id", id)
}

func (s *SlogSink) OnResumed(id uint64) {
	s.logger.Info("download resumed", "download_id", id)
}

func (s *SlogSink) OnCancelled(id uint64) {
	s.logger.Info("download cancelled", "download_id", id)
}

func (s *SlogSink) OnRemoved(id uint64) {
	s.logger.Info("download removed", "download_id", id)
}

func (s *SlogSink) OnCompleted(id uint64) {
	s.logger.Info("download completed", "download_id", id)
}

func (s *SlogSink) OnProgress(id uint64, downloaded, expected int64, percent float64) {
	s.logger.Debug("download progress",
		"download_id", id,
		"downloaded", humanize.Bytes(uint64(downloaded)),
		"expected", humanize.Bytes(uint64(expected)),
		"percent", percent,
	)
}
