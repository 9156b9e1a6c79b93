package scheduler

// NotificationSink receives one-way lifecycle events from the scheduler.
// Callbacks are invoked synchronously from whichever goroutine mutated the
// scheduler and must not block; implementations that do slow work should
// hand the event off to their own goroutine.
type NotificationSink interface {
	OnAdded(id uint64)
	OnStarted(id uint64)
	OnPaused(id uint64)
	OnResumed(id uint64)
	OnCancelled(id uint64)
	OnRemoved(id uint64)
	OnCompleted(id uint64)
	OnProgress(id uint64, downloaded, expected int64, percent float64)
}

// NopSink discards every event. It is the default sink, so the scheduler is
// usable without a listener.
type NopSink struct{}

func (NopSink) OnAdded(uint64)                           {}
func (NopSink) OnStarted(uint64)                         {}
func (NopSink) OnPaused(uint64)                          {}
func (NopSink) OnResumed(uint64)                         {}
func (NopSink) OnCancelled(uint64)                       {}
func (NopSink) OnRemoved(uint64)                         {}
func (NopSink) OnCompleted(uint64)                       {}
func (NopSink) OnProgress(uint64, int64, int64, float64) {}

// MultiSink fans every event out to each sink in order.
type MultiSink []NotificationSink

func (m MultiSink) OnAdded(id uint64) {
	for _, s := range m {
		s.OnAdded(id)
	}
}

func (m MultiSink) OnStarted(id uint64) {
	for _, s := range m {
		s.OnStarted(id)
	}
}

func (m MultiSink) OnPaused(id uint64) {
	for _, s := range m {
		s.OnPaused(id)
	}
}

func (m MultiSink) OnResumed(id uint64) {
	for _, s := range m {
		s.OnResumed(id)
	}
}

func (m MultiSink) OnCancelled(id uint64) {
	for _, s := range m {
		s.OnCancelled(id)
	}
}

func (m MultiSink) OnRemoved(id uint64) {
	for _, s := range m {
		s.OnRemoved(id)
	}
}

func (m MultiSink) OnCompleted(id uint64) {
	for _, s := range m {
		s.OnCompleted(id)
	}
}

func (m MultiSink) OnProgress(id uint64, downloaded, expected int64, percent float64) {
	for _, s := range m {
		s.OnProgress(id, downloaded, expected, percent)
	}
}
