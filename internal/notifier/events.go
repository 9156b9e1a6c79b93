package notifier

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/download_scheduler/internal/scheduler"
)

// LookupFunc resolves a download id to its current snapshot.
type LookupFunc func(id uint64) (scheduler.Info, error)

// Events is a notification sink that announces finished downloads through a
// Notifier. Only terminal outcomes are announced; the chat channel does not
// need to see every pause and resume.
type Events struct {
	scheduler.NopSink

	notifier Notifier
	lookup   LookupFunc
	logger   *slog.Logger
}

// NewEvents creates an event announcer.
func NewEvents(n Notifier, lookup LookupFunc, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}

	return &Events{
		notifier: n,
		lookup:   lookup,
		logger:   logger,
	}
}

// OnCompleted announces a finished download.
func (e *Events) OnCompleted(id uint64) {
	info, err := e.lookup(id)
	if err != nil {
		e.logger.Error("failed to snapshot download for notification", "download_id", id, "err", err)

		return
	}

	msg := fmt.Sprintf("Downloaded %s (%s)", info.Remote, humanize.Bytes(uint64(info.Size)))
	e.send(id, msg)
}

// OnCancelled announces an abandoned download.
func (e *Events) OnCancelled(id uint64) {
	info, err := e.lookup(id)
	if err != nil {
		e.logger.Error("failed to snapshot download for notification", "download_id", id, "err", err)

		return
	}

	msg := fmt.Sprintf("Cancelled %s at %.0f%%", info.Remote, info.Progress())
	e.send(id, msg)
}

func (e *Events) send(id uint64, msg string) {
	if err := e.notifier.Notify(msg); err != nil {
		e.logger.Error("failed to deliver notification", "download_id", id, "err", err)
	}
}
