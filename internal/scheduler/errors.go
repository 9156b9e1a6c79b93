package scheduler

import "fmt"

// QueueFullError is returned by Add when the pending queue reached its
// configured capacity. This is back-pressure, not an internal fault; the
// caller may retry once a slot frees up.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("download queue is full (capacity %d)", e.Capacity)
}

// NotFoundError is returned when a download id is unknown, already removed,
// or referenced after a concurrent removal.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("download %d not found", e.ID)
}

// AlreadyPausedError is returned by Pause on a download that is paused.
type AlreadyPausedError struct {
	ID uint64
}

func (e *AlreadyPausedError) Error() string {
	return fmt.Sprintf("download %d is already paused", e.ID)
}

// AlreadyCompletedError is returned by Pause or Cancel on a completed
// download. Completed is terminal; only Remove is accepted from it.
type AlreadyCompletedError struct {
	ID uint64
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("download %d is already completed", e.ID)
}

// StillLiveError is returned by Remove while the download is still pending
// or active. Cancel it, or wait for completion, before removing.
type StillLiveError struct {
	ID    uint64
	State State
}

func (e *StillLiveError) Error() string {
	return fmt.Sprintf("download %d is still %s; cancel it before removing", e.ID, e.State)
}

// InvalidTransitionError reports an attempted state transition outside the
// lifecycle graph. The attempt has no side effects.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid download state transition from %s to %s", e.From, e.To)
}
