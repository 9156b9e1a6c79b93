package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle state of a download record.
type State uint8

const (
	// StatePending means the download is queued and not yet admitted.
	StatePending State = iota
	// StateActive means a transfer worker exists for the download.
	StateActive
	// StatePaused means the download was paused and waits for an explicit resume.
	StatePaused
	// StateCompleted is terminal: all declared bytes arrived.
	StateCompleted
	// StateCancelled is terminal: the download was abandoned by the caller.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}

	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Terminal reports whether no further transitions are accepted from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// canTransitionTo encodes the lifecycle graph. Paused -> Pending is the
// resume path (back to the queue); Paused -> Active exists only for the
// self-healing completion path in UpdateProgress.
func (s State) canTransitionTo(to State) bool {
	switch s {
	case StatePending:
		return to == StateActive || to == StatePaused || to == StateCancelled
	case StateActive:
		return to == StatePaused || to == StateCompleted || to == StateCancelled
	case StatePaused:
		return to == StatePending || to == StateActive || to == StateCancelled
	default:
		return false
	}
}

// Priority orders downloads within the pending queue. Higher values are
// admitted first; ties keep arrival order.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}

	return fmt.Sprintf("unknown(%d)", uint8(p))
}

// ParsePriority parses a priority name, accepting any casing.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	}

	return PriorityNormal, fmt.Errorf("unknown priority: %q", s)
}

// record is the scheduler-owned mutable state for one download. It is only
// touched while the scheduler's record lock is held.
type record struct {
	id          uint64
	remote      string
	local       string
	size        int64
	downloaded  int64
	priority    Priority
	state       State
	createdAt   time.Time
	completedAt time.Time
}

func newRecord(id uint64, remote, local string, size int64, priority Priority) *record {
	return &record{
		id:        id,
		remote:    remote,
		local:     local,
		size:      size,
		priority:  priority,
		state:     StatePending,
		createdAt: nowFunc(),
	}
}

func (r *record) transitionTo(to State) error {
	if !r.state.canTransitionTo(to) {
		return &InvalidTransitionError{From: r.state, To: to}
	}

	r.state = to

	return nil
}

// setDownloaded clamps the counter into [0, size].
func (r *record) setDownloaded(n int64) {
	if n < 0 {
		n = 0
	}

	if r.size > 0 && n > r.size {
		n = r.size
	}

	r.downloaded = n
}

// progress returns the completion percentage in [0, 100]. A download with an
// unknown or zero declared size reports 0 and never auto-completes.
func (r *record) progress() float64 {
	if r.size <= 0 {
		return 0
	}

	pct := float64(r.downloaded) * 100 / float64(r.size)
	if pct < 0 {
		return 0
	}

	if pct > 100 {
		return 100
	}

	return pct
}

func (r *record) snapshot() Info {
	return Info{
		ID:          r.id,
		Remote:      r.remote,
		Local:       r.local,
		Size:        r.size,
		Downloaded:  r.downloaded,
		Priority:    r.priority,
		State:       r.state,
		CreatedAt:   r.createdAt,
		CompletedAt: r.completedAt,
	}
}

// Info is a point-in-time copy of a download record, safe to retain.
type Info struct {
	ID          uint64
	Remote      string
	Local       string
	Size        int64
	Downloaded  int64
	Priority    Priority
	State       State
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Progress returns the completion percentage in [0, 100].
func (i Info) Progress() float64 {
	if i.Size <= 0 {
		return 0
	}

	pct := float64(i.Downloaded) * 100 / float64(i.Size)
	if pct < 0 {
		return 0
	}

	if pct > 100 {
		return 100
	}

	return pct
}
