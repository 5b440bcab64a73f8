package subadmins

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
)

// Handler exposes sub-admin management to the full admin.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     guard.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard guard.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers sub-admin routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/subadmins", func(r chi.Router) {
		r.Use(h.guard.Require(guard.NeedFullAdmin()))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{id}/permissions", h.updatePermissions)
		r.Put("/{id}/profile", h.updateProfile)
		r.Post("/{id}/password", h.resetPassword)
		r.Delete("/{id}", h.deactivate)
	})
}

type createRequest struct {
	Email       string               `json:"email" validate:"required,email"`
	Name        string               `json:"name" validate:"required,max=120"`
	Phone       string               `json:"phone" validate:"omitempty,max=32"`
	Password    string               `json:"password" validate:"required,min=8,max=72"`
	Permissions access.PermissionSet `json:"permissions"`
}

type permissionsRequest struct {
	Permissions access.PermissionSet `json:"permissions" validate:"required"`
}

type profileRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func adminID(r *http.Request) string {
	return guard.SessionFromContext(r.Context()).UID
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.List(r.Context(), adminID(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if rows == nil {
		rows = []SubAdmin{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sa, err := h.service.Create(r.Context(), CreateInput{
		AdminID:     adminID(r),
		Email:       req.Email,
		Name:        req.Name,
		Phone:       req.Phone,
		Password:    req.Password,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sa)
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sa, err := h.service.UpdatePermissions(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Permissions)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sa)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	sa, err := h.service.UpdateProfile(r.Context(), adminID(r), chi.URLParam(r, "id"), ProfileInput{Name: req.Name, Phone: req.Phone})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sa)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), adminID(r), chi.URLParam(r, "id"), req.Password); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), adminID(r), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
