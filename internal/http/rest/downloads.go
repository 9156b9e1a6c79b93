// Package rest exposes the download scheduler over HTTP.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/download_scheduler/internal/logctx"
	"github.com/italolelis/download_scheduler/internal/scheduler"
	"github.com/italolelis/download_scheduler/internal/storage"
	"github.com/italolelis/download_scheduler/internal/telemetry"
)

// DownloadResource is the wire representation of a tracked download.
type DownloadResource struct {
	ID          uint64     `json:"id"`
	Remote      string     `json:"remote"`
	Local       string     `json:"local"`
	Size        int64      `json:"size"`
	Downloaded  int64      `json:"downloaded"`
	Progress    float64    `json:"progress"`
	Priority    string     `json:"priority"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newDownloadResource(info scheduler.Info) DownloadResource {
	res := DownloadResource{
		ID:         info.ID,
		Remote:     info.Remote,
		Local:      info.Local,
		Size:       info.Size,
		Downloaded: info.Downloaded,
		Progress:   info.Progress(),
		Priority:   info.Priority.String(),
		State:      info.State.String(),
		CreatedAt:  info.CreatedAt,
	}

	if !info.CompletedAt.IsZero() {
		completedAt := info.CompletedAt
		res.CompletedAt = &completedAt
	}

	return res
}

type addRequest struct {
	Remote   string `json:"remote"`
	Local    string `json:"local"`
	Size     int64  `json:"size"`
	Priority string `json:"priority"`
}

type progressRequest struct {
	Downloaded int64 `json:"downloaded"`
}

// DownloadHandler serves the scheduler API.
type DownloadHandler struct {
	sched     *scheduler.Scheduler
	archive   storage.ArchiveReadRepository
	telemetry *telemetry.Telemetry
}

// NewDownloadHandler creates a new download handler. archive may be nil; the
// archive endpoints then report the feature as unavailable.
func NewDownloadHandler(sched *scheduler.Scheduler, archive storage.ArchiveReadRepository, t *telemetry.Telemetry) *DownloadHandler {
	return &DownloadHandler{
		sched:     sched,
		archive:   archive,
		telemetry: t,
	}
}

func (h *DownloadHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", h.HandleAdd)
		r.Get("/", h.HandleList)
		r.Delete("/completed", h.HandleClearCompleted)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleRemove)
			r.Post("/pause", h.HandlePause)
			r.Post("/resume", h.HandleResume)
			r.Post("/cancel", h.HandleCancel)
			r.Post("/progress", h.HandleProgress)
		})
	})

	r.Route("/queue", func(r chi.Router) {
		r.Post("/process", h.HandleProcessQueue)
		r.Post("/pause", h.HandlePauseAll)
		r.Post("/resume", h.HandleResumeAll)
		r.Post("/cancel", h.HandleCancelAll)
	})

	r.Get("/stats", h.HandleStats)
	r.Get("/archive", h.HandleArchive)

	return r
}

// HandleAdd queues a new download.
func (h *DownloadHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	priority, err := scheduler.ParsePriority(req.Priority)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	id, err := h.sched.Add(req.Remote, req.Local, req.Size, priority)
	if err != nil {
		if h.telemetry != nil {
			var full *scheduler.QueueFullError
			if errors.As(err, &full) {
				h.telemetry.RecordQueueRejection()
			}
		}

		h.writeSchedulerError(w, r, err)

		return
	}

	if h.telemetry != nil {
		h.telemetry.RecordAdmission(priority.String())
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

// HandleList returns every tracked download.
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos := h.sched.Downloads()

	resources := make([]DownloadResource, len(infos))
	for i, info := range infos {
		resources[i] = newDownloadResource(info)
	}

	writeJSON(w, http.StatusOK, map[string]any{"downloads": resources})
}

// HandleGet returns one download.
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.downloadID(w, r)
	if !ok {
		return
	}

	info, err := h.sched.DownloadInfo(id)
	if err != nil {
		h.writeSchedulerError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, newDownloadResource(info))
}

// HandlePause suspends a download.
func (h *DownloadHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.sched.Pause)
}

// HandleResume re-queues a paused download.
func (h *DownloadHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.sched.Resume)
}

// HandleCancel abandons a download.
func (h *DownloadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.sched.Cancel)
}

// HandleRemove forgets a finished download.
func (h *DownloadHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.lifecycleOp(w, r, h.sched.Remove)
}

// HandleProgress records an out-of-band progress report.
func (h *DownloadHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	id, ok := h.downloadID(w, r)
	if !ok {
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if err := h.sched.UpdateProgress(id, req.Downloaded); err != nil {
		h.writeSchedulerError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleProcessQueue admits pending downloads up to the concurrency ceiling.
func (h *DownloadHandler) HandleProcessQueue(w http.ResponseWriter, r *http.Request) {
	started := h.sched.ProcessQueue()

	writeJSON(w, http.StatusOK, map[string]int{"started": started})
}

// HandlePauseAll pauses every live download.
func (h *DownloadHandler) HandlePauseAll(w http.ResponseWriter, r *http.Request) {
	h.sched.PauseAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleResumeAll resumes every paused download.
func (h *DownloadHandler) HandleResumeAll(w http.ResponseWriter, r *http.Request) {
	h.sched.ResumeAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancelAll cancels every non-terminal download.
func (h *DownloadHandler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	h.sched.CancelAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearCompleted drops completed downloads from the tracked set.
func (h *DownloadHandler) HandleClearCompleted(w http.ResponseWriter, r *http.Request) {
	h.sched.ClearCompleted()
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats reports the scheduler's counters and limits.
func (h *DownloadHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	bdg := h.sched.Budget()

	writeJSON(w, http.StatusOK, map[string]any{
		"active":         h.sched.ActiveCount(),
		"pending":        h.sched.PendingCount(),
		"total":          h.sched.TotalCount(),
		"max_concurrent": bdg.MaxConcurrent(),
		"max_bandwidth":  bdg.MaxRate(),
	})
}

// HandleArchive lists archived downloads, optionally filtered by state.
func (h *DownloadHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if h.archive == nil {
		http.Error(w, "archive not configured", http.StatusNotImplemented)

		return
	}

	var (
		archived []storage.ArchivedDownload
		err      error
	)

	if state := r.URL.Query().Get("state"); state != "" {
		archived, err = h.archive.GetArchivedByState(state)
	} else {
		archived, err = h.archive.GetArchived()
	}

	if err != nil {
		logger.Error("failed to read archive", "err", err)
		http.Error(w, "failed to read archive", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"archive": archived})
}

// lifecycleOp runs a single-id scheduler operation and maps its error.
func (h *DownloadHandler) lifecycleOp(w http.ResponseWriter, r *http.Request, op func(uint64) error) {
	id, ok := h.downloadID(w, r)
	if !ok {
		return
	}

	if err := op(id); err != nil {
		h.writeSchedulerError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DownloadHandler) downloadID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid download id", http.StatusBadRequest)

		return 0, false
	}

	return id, true
}

// writeSchedulerError maps scheduler errors onto HTTP statuses: a full queue
// is 429, an unknown id 404 and every state precondition failure 409.
func (h *DownloadHandler) writeSchedulerError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		fullErr       *scheduler.QueueFullError
		notFoundErr   *scheduler.NotFoundError
		pausedErr     *scheduler.AlreadyPausedError
		completedErr  *scheduler.AlreadyCompletedError
		liveErr       *scheduler.StillLiveError
		transitionErr *scheduler.InvalidTransitionError
	)

	switch {
	case errors.As(err, &fullErr):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.As(err, &notFoundErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &pausedErr), errors.As(err, &completedErr),
		errors.As(err, &liveErr), errors.As(err, &transitionErr):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error("unexpected scheduler error", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
