package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
)

// QueueInspector reads queue state. *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// SweepEnqueuer submits session sweeps. *Client satisfies it.
type SweepEnqueuer interface {
	EnqueueSessionSweep(ctx context.Context, payload SessionSweepPayload) (*asynq.TaskInfo, error)
}

// Handler exposes the job queue over HTTP.
type Handler struct {
	inspector QueueInspector
	enqueuer  SweepEnqueuer
	guard     guard.Middleware
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. A nil inspector reports an
// empty queue; a nil enqueuer disables manual sweeps.
func NewHandler(inspector QueueInspector, enqueuer SweepEnqueuer, guard guard.Middleware, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, guard: guard, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.With(h.guard.Require(guard.NeedFullAdmin())).Post("/sweep", h.triggerSweep)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report := queueHealth{Queue: QueueDefault}
	if h.inspector != nil {
		info, err := h.inspector.GetQueueInfo(QueueDefault)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			h.logger.Warn("jobs health", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "the job queue cannot be inspected")
			return
		case info != nil:
			report = queueHealth{
				Queue:     info.Queue,
				Pending:   info.Pending,
				Active:    info.Active,
				Scheduled: info.Scheduled,
				Retry:     info.Retry,
				Archived:  info.Archived,
				Paused:    info.Paused,
			}
		}
	}
	httpx.JSON(w, http.StatusOK, report)
}

type sweepRequest struct {
	DryRun bool `json:"dryRun"`
}

type sweepResponse struct {
	TaskID string `json:"taskId,omitempty"`
	Queued bool   `json:"queued"`
}

func (h *Handler) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Sweep Unavailable", "manual sweeps are not configured")
		return
	}
	var req sweepRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	info, err := h.enqueuer.EnqueueSessionSweep(r.Context(), SessionSweepPayload{DryRun: req.DryRun})
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		httpx.JSON(w, http.StatusAccepted, sweepResponse{Queued: false})
		return
	case err != nil:
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("session sweep requested", slog.String("task_id", info.ID), slog.Bool("dry_run", req.DryRun))
	httpx.JSON(w, http.StatusAccepted, sweepResponse{TaskID: info.ID, Queued: true})
}
