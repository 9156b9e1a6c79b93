// Package scheduler coordinates many concurrent downloads: it admits work
// under a concurrency ceiling, orders it by priority, tracks each download
// through an explicit lifecycle, and reports progress and completion to a
// NotificationSink.
//
// The scheduler has no goroutines of its own. It is a passive, shared data
// structure mutated by whichever caller invokes its methods; callers are
// responsible for invoking ProcessQueue on a cadence and for feeding
// UpdateProgress as the out-of-band transfer reports bytes.
package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/italolelis/download_scheduler/internal/budget"
)

// nowFunc is swapped in tests that pin completion timestamps.
var nowFunc = time.Now

// Worker is the handle the scheduler keeps for an admitted download. The
// scheduler never drives the transfer itself; Cancel is the cooperative stop
// signal delivered on pause and cancel.
type Worker interface {
	Cancel()
}

// WorkerFactory constructs the transfer worker for an admitted download.
// Construction may fail (bad location, no budget); the admission attempt is
// then abandoned and retried on a later ProcessQueue cycle.
type WorkerFactory interface {
	NewWorker(id uint64, remote, local string, size int64) (Worker, error)
}

// WorkerFactoryFunc adapts a function to the WorkerFactory interface.
type WorkerFactoryFunc func(id uint64, remote, local string, size int64) (Worker, error)

func (f WorkerFactoryFunc) NewWorker(id uint64, remote, local string, size int64) (Worker, error) {
	return f(id, remote, local, size)
}

// nopWorker backs the default factory so the scheduler is usable as pure
// bookkeeping, the way the tests and the REST progress feed use it.
type nopWorker struct{}

func (nopWorker) Cancel() {}

// Config is the semantic configuration surface of the scheduler.
type Config struct {
	// MaxConcurrentDownloads is the active-table ceiling.
	MaxConcurrentDownloads int
	// MaxBandwidth is the aggregate transfer budget in bytes per second,
	// forwarded to the resource budget. Zero means unlimited.
	MaxBandwidth int64
	// QueueSize is the pending-queue ceiling; Add fails with QueueFullError
	// beyond it.
	QueueSize int
	// AutoRemoveCompleted enables eviction of the oldest completed downloads
	// once the history exceeds MaxCompletedHistory.
	AutoRemoveCompleted bool
	// MaxCompletedHistory bounds the completed-download history.
	MaxCompletedHistory int
}

// DefaultConfig mirrors the defaults of the original manager: three
// concurrent downloads, unlimited bandwidth, a hundred queued and a hundred
// remembered completions.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentDownloads: 3,
		MaxBandwidth:           0,
		QueueSize:              100,
		AutoRemoveCompleted:    true,
		MaxCompletedHistory:    100,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max concurrent downloads must be positive, got %d", c.MaxConcurrentDownloads)
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}

	if c.MaxCompletedHistory <= 0 {
		return fmt.Errorf("max completed history must be positive, got %d", c.MaxCompletedHistory)
	}

	if c.MaxBandwidth < 0 {
		return fmt.Errorf("max bandwidth must not be negative, got %d", c.MaxBandwidth)
	}

	return nil
}

// Scheduler owns the record table, the priority-ordered pending queue, the
// active-transfer table, and a bounded completion history.
//
// Each structure is guarded independently and mutated in a section scoped as
// narrowly as possible; there is no cross-structure transactional guarantee.
// When locks nest they are always acquired in the order
// admit -> queue -> records -> active -> history.
type Scheduler struct {
	cfg     Config
	sink    NotificationSink
	factory WorkerFactory
	budget  *budget.Budget
	logger  *slog.Logger

	nextID atomic.Uint64

	// admitMu serializes ProcessQueue: without it two callers can both
	// observe the same free slot and admit past the concurrency ceiling.
	admitMu sync.Mutex

	recordsMu sync.RWMutex
	records   map[uint64]*record

	queueMu sync.RWMutex
	queue   []uint64

	activeMu sync.RWMutex
	active   map[uint64]Worker

	historyMu sync.RWMutex
	history   []uint64
}

// New creates a scheduler. A nil factory yields inert bookkeeping-only
// workers; a nil sink discards events. The resource budget is constructed
// here, once, from the declared limits.
func New(cfg Config, factory WorkerFactory, sink NotificationSink) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	if factory == nil {
		factory = WorkerFactoryFunc(func(uint64, string, string, int64) (Worker, error) {
			return nopWorker{}, nil
		})
	}

	if sink == nil {
		sink = NopSink{}
	}

	return &Scheduler{
		cfg:     cfg,
		sink:    sink,
		factory: factory,
		budget:  budget.New(cfg.MaxBandwidth, cfg.MaxConcurrentDownloads),
		logger:  slog.Default(),
		records: make(map[uint64]*record),
		active:  make(map[uint64]Worker),
	}, nil
}

// SetLogger replaces the logger used for internal, non-event diagnostics.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Add registers a new download and returns its id. Ids are strictly
// increasing and never reused, even after removal. The download is inserted
// into the pending queue immediately before the first entry whose priority
// is strictly lower, so equal priorities keep arrival order.
func (s *Scheduler) Add(remote, local string, size int64, priority Priority) (uint64, error) {
	s.queueMu.Lock()

	// The capacity check and the insertion happen under the same write lock;
	// a check-then-insert window would let concurrent Adds overfill the queue.
	if len(s.queue) >= s.cfg.QueueSize {
		s.queueMu.Unlock()

		return 0, &QueueFullError{Capacity: s.cfg.QueueSize}
	}

	id := s.nextID.Add(1)
	rec := newRecord(id, remote, local, size, priority)

	s.recordsMu.Lock()
	s.records[id] = rec
	s.recordsMu.Unlock()

	s.insert(id, priority)
	s.queueMu.Unlock()

	s.sink.OnAdded(id)

	return id, nil
}

// enqueue inserts id into the pending queue under the queue lock.
func (s *Scheduler) enqueue(id uint64, priority Priority) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	s.insert(id, priority)
}

// insert places id before the first queued entry with a strictly lower
// priority, or appends when there is none. Callers hold queueMu.
func (s *Scheduler) insert(id uint64, priority Priority) {
	idx := len(s.queue)

	s.recordsMu.RLock()
	for i, qid := range s.queue {
		if rec, ok := s.records[qid]; ok && rec.priority < priority {
			idx = i

			break
		}
	}
	s.recordsMu.RUnlock()

	s.queue = append(s.queue, 0)
	copy(s.queue[idx+1:], s.queue[idx:])
	s.queue[idx] = id
}

// Pause suspends a pending or active download. An active download's worker
// is signalled to stop and unregistered; a pending one stays queued but is
// skipped by ProcessQueue until resumed.
func (s *Scheduler) Pause(id uint64) error {
	s.recordsMu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.recordsMu.Unlock()

		return &NotFoundError{ID: id}
	}

	switch rec.state {
	case StatePaused:
		s.recordsMu.Unlock()

		return &AlreadyPausedError{ID: id}
	case StateCompleted:
		s.recordsMu.Unlock()

		return &AlreadyCompletedError{ID: id}
	}

	wasActive := rec.state == StateActive

	if err := rec.transitionTo(StatePaused); err != nil {
		s.recordsMu.Unlock()

		return err
	}
	s.recordsMu.Unlock()

	if wasActive {
		s.dropWorker(id)
	}

	s.sink.OnPaused(id)

	return nil
}

// Resume makes a paused download eligible again. It re-enters the pending
// queue through the normal priority-ordered insertion rule, so a resumed
// high-priority download is admitted ahead of queued lower priorities.
func (s *Scheduler) Resume(id uint64) error {
	s.recordsMu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.recordsMu.Unlock()

		return &NotFoundError{ID: id}
	}

	if rec.state != StatePaused {
		from := rec.state
		s.recordsMu.Unlock()

		return &InvalidTransitionError{From: from, To: StateActive}
	}

	if err := rec.transitionTo(StatePending); err != nil {
		s.recordsMu.Unlock()

		return err
	}

	priority := rec.priority
	s.recordsMu.Unlock()

	s.queueMu.RLock()
	queued := false
	for _, qid := range s.queue {
		if qid == id {
			queued = true

			break
		}
	}
	s.queueMu.RUnlock()

	if !queued {
		s.enqueue(id, priority)
	}

	s.sink.OnResumed(id)

	return nil
}

// Cancel abandons a download from any non-terminal state. The id is purged
// from the pending queue and the active table unconditionally, and a live
// worker is signalled to stop.
func (s *Scheduler) Cancel(id uint64) error {
	s.recordsMu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.recordsMu.Unlock()

		return &NotFoundError{ID: id}
	}

	if rec.state == StateCompleted {
		s.recordsMu.Unlock()

		return &AlreadyCompletedError{ID: id}
	}

	if err := rec.transitionTo(StateCancelled); err != nil {
		s.recordsMu.Unlock()

		return err
	}
	s.recordsMu.Unlock()

	s.dropWorker(id)

	s.queueMu.Lock()
	s.queue = removeID(s.queue, id)
	s.queueMu.Unlock()

	s.sink.OnCancelled(id)

	return nil
}

// Remove forgets a download entirely. It is permitted only once the record
// is no longer live (not pending, not active); the record is purged from the
// record table and from the completion history.
func (s *Scheduler) Remove(id uint64) error {
	s.recordsMu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.recordsMu.Unlock()

		return &NotFoundError{ID: id}
	}

	if rec.state == StatePending || rec.state == StateActive {
		state := rec.state
		s.recordsMu.Unlock()

		return &StillLiveError{ID: id, State: state}
	}

	delete(s.records, id)
	s.recordsMu.Unlock()

	s.historyMu.Lock()
	s.history = removeID(s.history, id)
	s.historyMu.Unlock()

	s.sink.OnRemoved(id)

	return nil
}

// ProcessQueue admits queued downloads into the active set up to the
// concurrency ceiling and returns how many were started. It performs no
// network I/O and is safe to call repeatedly; callers should invoke it
// periodically or whenever a slot frees up.
//
// A paused entry popped from the queue is dropped from the cycle without
// re-queueing: it only re-enters via Resume. When the worker factory fails,
// the record stays Pending and is re-queued at the back for a later cycle,
// so a construction failure never leaves a phantom active record.
func (s *Scheduler) ProcessQueue() int {
	// One admission loop at a time. Only this loop grows the active table, so
	// the slot count computed here cannot be raced past the ceiling by a
	// second caller; concurrent completions and cancels only free slots.
	s.admitMu.Lock()
	defer s.admitMu.Unlock()

	available := s.cfg.MaxConcurrentDownloads - s.ActiveCount()
	if available <= 0 {
		return 0
	}

	// Bound the cycle by the queue length observed at entry so re-queued
	// construction failures are not popped again within the same call.
	remaining := s.PendingCount()

	started := 0
	for started < available && remaining > 0 {
		remaining--

		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.queueMu.Unlock()

			break
		}

		id := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		s.recordsMu.RLock()
		rec, ok := s.records[id]

		var (
			remote, local string
			size          int64
			eligible      bool
		)

		if ok && rec.state == StatePending {
			remote, local, size = rec.remote, rec.local, rec.size
			eligible = true
		}
		s.recordsMu.RUnlock()

		if !eligible {
			// Unknown (racily removed) or paused/terminal; drop from this cycle.
			continue
		}

		worker, err := s.factory.NewWorker(id, remote, local, size)
		if err != nil {
			s.logger.Warn("worker construction failed; download stays pending",
				"download_id", id, "err", err)

			s.requeueBack(id)

			continue
		}

		s.recordsMu.Lock()
		rec, ok = s.records[id]
		if !ok || rec.transitionTo(StateActive) != nil {
			// Lost a race with cancel/pause/remove between construction and
			// admission; the worker never ran, stop it and move on.
			s.recordsMu.Unlock()
			worker.Cancel()

			continue
		}
		s.recordsMu.Unlock()

		s.activeMu.Lock()
		s.active[id] = worker
		s.activeMu.Unlock()

		s.sink.OnStarted(id)
		started++
	}

	return started
}

// UpdateProgress records the downloaded byte count reported by the
// out-of-band transfer. Reaching 100% transitions the record to Completed
// exactly once, fires OnCompleted, appends to the completion history and
// trims it; below 100% it fires OnProgress and changes no state. Updates on
// an already completed download are ignored.
func (s *Scheduler) UpdateProgress(id uint64, downloaded int64) error {
	s.recordsMu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.recordsMu.Unlock()

		return &NotFoundError{ID: id}
	}

	if rec.state == StateCompleted {
		s.recordsMu.Unlock()

		return nil
	}

	rec.setDownloaded(downloaded)
	pct := rec.progress()

	if pct < 100 {
		got, expected := rec.downloaded, rec.size
		s.recordsMu.Unlock()

		s.sink.OnProgress(id, got, expected, pct)

		return nil
	}

	// Self-heal: a completion report for a pending or paused record implies
	// the transfer ran out of band; advance it to Active first.
	if rec.state == StatePending || rec.state == StatePaused {
		_ = rec.transitionTo(StateActive)
	}

	if err := rec.transitionTo(StateCompleted); err != nil {
		s.recordsMu.Unlock()

		return err
	}

	rec.completedAt = nowFunc()
	s.recordsMu.Unlock()

	s.sink.OnCompleted(id)
	s.dropWorker(id)

	var evicted []uint64

	s.historyMu.Lock()
	s.history = append(s.history, id)

	if s.cfg.AutoRemoveCompleted && len(s.history) > s.cfg.MaxCompletedHistory {
		excess := len(s.history) - s.cfg.MaxCompletedHistory
		evicted = append(evicted, s.history[:excess]...)
		s.history = append([]uint64(nil), s.history[excess:]...)
	}
	s.historyMu.Unlock()

	if len(evicted) > 0 {
		s.recordsMu.Lock()
		for _, old := range evicted {
			delete(s.records, old)
		}
		s.recordsMu.Unlock()
	}

	return nil
}

// PauseAll pauses every pending or active download, best effort: one item's
// failure neither stops nor is reported for the rest.
func (s *Scheduler) PauseAll() {
	for _, id := range s.idsInStates(StatePending, StateActive) {
		_ = s.Pause(id)
	}
}

// ResumeAll resumes every paused download, best effort.
func (s *Scheduler) ResumeAll() {
	for _, id := range s.idsInStates(StatePaused) {
		_ = s.Resume(id)
	}
}

// CancelAll cancels every non-terminal download, best effort.
func (s *Scheduler) CancelAll() {
	for _, id := range s.idsInStates(StatePending, StateActive, StatePaused) {
		_ = s.Cancel(id)
	}
}

// ClearCompleted removes every completed download that is present in the
// completion history. It is idempotent.
func (s *Scheduler) ClearCompleted() {
	s.historyMu.RLock()
	history := append([]uint64(nil), s.history...)
	s.historyMu.RUnlock()

	var cleared []uint64

	s.recordsMu.Lock()
	for _, id := range history {
		if rec, ok := s.records[id]; ok && rec.state == StateCompleted {
			delete(s.records, id)
			cleared = append(cleared, id)
		}
	}
	s.recordsMu.Unlock()

	if len(cleared) == 0 {
		return
	}

	s.historyMu.Lock()
	for _, id := range cleared {
		s.history = removeID(s.history, id)
	}
	s.historyMu.Unlock()
}

// Progress returns the completion percentage for a download.
func (s *Scheduler) Progress(id uint64) (float64, error) {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return 0, &NotFoundError{ID: id}
	}

	return rec.progress(), nil
}

// DownloadInfo returns a point-in-time copy of a download record.
func (s *Scheduler) DownloadInfo(id uint64) (Info, error) {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Info{}, &NotFoundError{ID: id}
	}

	return rec.snapshot(), nil
}

// Downloads returns a snapshot of every tracked download, in id order.
func (s *Scheduler) Downloads() []Info {
	s.recordsMu.RLock()
	infos := make([]Info, 0, len(s.records))
	for _, rec := range s.records {
		infos = append(infos, rec.snapshot())
	}
	s.recordsMu.RUnlock()

	sortInfosByID(infos)

	return infos
}

// ActiveCount returns the number of admitted downloads with live workers.
func (s *Scheduler) ActiveCount() int {
	s.activeMu.RLock()
	defer s.activeMu.RUnlock()

	return len(s.active)
}

// PendingCount returns the length of the pending queue.
func (s *Scheduler) PendingCount() int {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	return len(s.queue)
}

// TotalCount returns the number of tracked downloads in any state.
func (s *Scheduler) TotalCount() int {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	return len(s.records)
}

// Budget exposes the resource budget constructed at startup, read-only.
func (s *Scheduler) Budget() *budget.Budget {
	return s.budget
}

// dropWorker unregisters the worker for id, if any, and signals it to stop.
func (s *Scheduler) dropWorker(id uint64) {
	s.activeMu.Lock()
	worker, ok := s.active[id]
	delete(s.active, id)
	s.activeMu.Unlock()

	if ok && worker != nil {
		worker.Cancel()
	}
}

// requeueBack appends id to the back of the pending queue for a later cycle.
func (s *Scheduler) requeueBack(id uint64) {
	s.queueMu.Lock()
	s.queue = append(s.queue, id)
	s.queueMu.Unlock()
}

// idsInStates snapshots the ids currently in any of the given states.
func (s *Scheduler) idsInStates(states ...State) []uint64 {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	var ids []uint64

	for id, rec := range s.records {
		for _, st := range states {
			if rec.state == st {
				ids = append(ids, id)

				break
			}
		}
	}

	return ids
}

func sortInfosByID(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
}

func removeID(ids []uint64, id uint64) []uint64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}

	return out
}
