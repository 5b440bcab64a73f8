package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/guard"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
	"github.com/cylinderhub/cylinderhub/internal/shared"
)

// Handler manages customer and delivery agent endpoints.
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

// MountRoutes registers user routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(guard.NeedPermission(access.PermUsers)))
		r.Get("/customers", h.listRole(access.RoleCustomer))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(guard.NeedPermission(access.PermDelivery)))
		r.Get("/delivery/agents", h.listRole(access.RoleDelivery))
		r.Post("/delivery/agents/{id}/password", h.resetAgentPassword)
	})
}

type listResponse struct {
	Items      []Summary         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *Handler) listRole(role access.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := h.service.ListByRole(r.Context(), role)
		if err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
		page := shared.PaginationFromQuery(r.URL.Query(), len(rows))
		httpx.JSON(w, http.StatusOK, listResponse{Items: shared.Page(rows, page), Pagination: page})
	}
}

func (h *Handler) resetAgentPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.ResetPasswordForRole(r.Context(), id, req.Password, access.RoleDelivery); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor := guard.SessionFromContext(r.Context())
	h.logger.Info("delivery agent password reset", slog.String("uid", id), slog.String("actor", actor.UID))
	w.WriteHeader(http.StatusNoContent)
}
