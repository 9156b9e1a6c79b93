// Package budget arbitrates the aggregate bandwidth and concurrency limits
// shared by all transfers. The scheduler constructs one budget at startup
// from its declared limits and exposes it read-only; per-transfer pacing is
// entirely the budget's concern.
package budget

import (
	"sync"
	"time"
)

// Budget tracks the declared aggregate limits and the number of transfers
// currently drawing from them. Safe for concurrent use.
type Budget struct {
	maxRate       int64
	maxConcurrent int

	mu     sync.RWMutex
	active int
}

// New creates a budget. maxRate is the aggregate transfer rate in bytes per
// second, zero meaning unlimited; maxConcurrent is clamped to at least one.
func New(maxRate int64, maxConcurrent int) *Budget {
	if maxRate < 0 {
		maxRate = 0
	}

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Budget{
		maxRate:       maxRate,
		maxConcurrent: maxConcurrent,
	}
}

// MaxRate returns the declared aggregate rate in bytes per second, zero
// meaning unlimited.
func (b *Budget) MaxRate() int64 {
	return b.maxRate
}

// MaxConcurrent returns the declared concurrency ceiling.
func (b *Budget) MaxConcurrent() int {
	return b.maxConcurrent
}

// Active returns the number of transfers currently holding a slot.
func (b *Budget) Active() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.active
}

// TryAcquire claims a transfer slot if one is available.
func (b *Budget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active >= b.maxConcurrent {
		return false
	}

	b.active++

	return true
}

// Release returns a previously acquired slot. Releasing below zero is a
// no-op rather than a panic; callers pair it with TryAcquire via defer.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active > 0 {
		b.active--
	}
}

// PerTransferRate returns the fair bytes-per-second slice for one transfer:
// the aggregate rate divided across the currently active transfers. Zero
// means unlimited.
func (b *Budget) PerTransferRate() int64 {
	if b.maxRate == 0 {
		return 0
	}

	b.mu.RLock()
	active := b.active
	b.mu.RUnlock()

	if active < 1 {
		active = 1
	}

	return b.maxRate / int64(active)
}

// Pace returns how long a transfer that has just moved n bytes in elapsed
// time should sleep to stay within its per-transfer rate slice. Zero when
// the budget is unlimited or the transfer is already under budget.
func (b *Budget) Pace(n int64, elapsed time.Duration) time.Duration {
	rate := b.PerTransferRate()
	if rate <= 0 || n <= 0 {
		return 0
	}

	want := time.Duration(float64(n) / float64(rate) * float64(time.Second))
	if want <= elapsed {
		return 0
	}

	return want - elapsed
}
