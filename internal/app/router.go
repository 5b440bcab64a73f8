package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cylinderhub/cylinderhub/internal/auth"
	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/observability"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
	"github.com/cylinderhub/cylinderhub/internal/subadmins"
	"github.com/cylinderhub/cylinderhub/internal/users"
	"github.com/cylinderhub/cylinderhub/jobs"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	GuardHandler     *guard.Handler
	UsersHandler     *users.Handler
	SubAdminsHandler *subadmins.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	HealthChecks     map[string]HealthCheck
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.HealthChecks))

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/admin", func(r chi.Router) {
		if params.GuardHandler != nil {
			params.GuardHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.SubAdminsHandler != nil {
			params.SubAdminsHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		report := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report["status"] = "degraded"
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		httpx.JSON(w, status, report)
	}
}
