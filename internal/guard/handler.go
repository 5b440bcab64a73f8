package guard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
)

// Handler exposes screen gates to the console shell.
type Handler struct {
	guard Middleware
}

// NewHandler constructs a Handler.
func NewHandler(guard Middleware) *Handler {
	return &Handler{guard: guard}
}

// MountRoutes registers the screen gate routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(Requirement{}))
		r.Get("/home", h.home)
	})
	r.Get("/routes/{route}", h.route)
}

type routeResponse struct {
	Route      access.Route      `json:"route"`
	Permission access.Permission `json:"permission,omitempty"`
	Allowed    bool              `json:"allowed"`
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	rec := SessionFromContext(r.Context())
	target := access.FirstAllowedAdminRoute(rec.Grant())
	http.Redirect(w, r, target.Path(), http.StatusSeeOther)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	route := access.Route(chi.URLParam(r, "route"))
	if !route.Known() {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown route")
		return
	}
	req := RequirementFor(route)
	h.guard.Require(req)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perm, _ := access.RequiredPermission(route)
		httpx.JSON(w, http.StatusOK, routeResponse{Route: route, Permission: perm, Allowed: true})
	})).ServeHTTP(w, r)
}
