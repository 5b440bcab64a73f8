package guard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

// Sessions is the part of the session context the guard reads.
type Sessions interface {
	Snapshot() session.Snapshot
	Ready() <-chan struct{}
}

// Observer records guard outcomes.
type Observer interface {
	GuardDecision(requirement, outcome string)
}

type sessionContextKey struct{}

// ContextWithSession stores the admitted session in ctx.
func ContextWithSession(ctx context.Context, rec *session.Record) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, rec)
}

// SessionFromContext returns the session admitted by the guard, if any.
func SessionFromContext(ctx context.Context) *session.Record {
	rec, _ := ctx.Value(sessionContextKey{}).(*session.Record)
	return rec
}

// Middleware wires guard decisions into HTTP handlers.
type Middleware struct {
	Sessions Sessions
	Logger   *slog.Logger
	Observer Observer

	// Wait bounds how long a request waits for the session to resolve.
	Wait time.Duration
}

// Require admits requests whose session satisfies req. While the session is
// loading the request is held; it is never answered with a premature
// decision.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gate := NewGate(req)
			d, snap := m.resolve(r.Context(), gate)
			m.observe(req, d)
			switch d.State {
			case Allowed:
				next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), snap.Session)))
			case Denied:
				m.logger().Info("guard denied", slog.String("path", r.URL.Path), slog.String("requirement", req.String()), slog.String("reason", d.Reason))
				WriteDenial(w, d)
			default:
				w.Header().Set("Retry-After", "1")
				httpx.Problem(w, http.StatusServiceUnavailable, "Session Loading", "session is still being resolved")
			}
		})
	}
}

// WriteDenial answers with 403 and the fallback redirect command.
func WriteDenial(w http.ResponseWriter, d Decision) {
	redirect := Denial(d)
	w.Header().Set("Location", redirect.Location)
	httpx.JSON(w, http.StatusForbidden, redirect)
}

func (m Middleware) resolve(ctx context.Context, gate *Gate) (Decision, session.Snapshot) {
	snap := m.Sessions.Snapshot()
	d := gate.Resolve(snap)
	if d.State != Loading {
		return d, snap
	}
	wait := m.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-m.Sessions.Ready():
	case <-timer.C:
	case <-ctx.Done():
	}
	snap = m.Sessions.Snapshot()
	return gate.Resolve(snap), snap
}

func (m Middleware) observe(req Requirement, d Decision) {
	if m.Observer != nil {
		m.Observer.GuardDecision(req.String(), d.State.String())
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
