package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cylinderhub/cylinderhub/internal/access"
	"github.com/cylinderhub/cylinderhub/internal/identity"
	"github.com/cylinderhub/cylinderhub/internal/platform/httpx"
	"github.com/cylinderhub/cylinderhub/internal/session"
)

// SessionManager is the session context operated by the auth endpoints.
type SessionManager interface {
	Login(ctx context.Context, rec *session.Record) error
	Logout(ctx context.Context) error
	Snapshot() session.Snapshot
}

// Signer records the provider identity after a successful login.
type Signer interface {
	SignIn(ctx context.Context, ident identity.Identity) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  SessionManager
	signer    Signer
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions SessionManager, signer Signer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		signer:    signer,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.showSession)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type sessionView struct {
	UID         string               `json:"uid"`
	Email       string               `json:"email,omitempty"`
	DisplayName string               `json:"displayName,omitempty"`
	Role        access.Role          `json:"role"`
	Permissions access.PermissionSet `json:"permissions,omitempty"`
	ExpiresAt   int64                `json:"expiresAt"`
}

type sessionResponse struct {
	Loading bool         `json:"loading"`
	Session *sessionView `json:"session"`
	Landing string       `json:"landing"`
}

func viewOf(rec *session.Record) *sessionView {
	if rec == nil {
		return nil
	}
	return &sessionView{
		UID:         rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        rec.Role,
		Permissions: rec.Permissions,
		ExpiresAt:   rec.ExpiresAt,
	}
}

func responseOf(snap session.Snapshot) sessionResponse {
	return sessionResponse{
		Loading: snap.Loading,
		Session: viewOf(snap.Session),
		Landing: access.FirstAllowedAdminRoute(snap.Session.Grant()).Path(),
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email))
		httpx.RespondError(w, h.logger, err)
		return
	}
	rec, err := h.service.IssueRecord(r.Context(), user)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.sessions.Login(r.Context(), rec); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	// The session is already adopted, so the provider event this triggers
	// does not start a rehydration.
	if h.signer != nil {
		if err := h.signer.SignIn(r.Context(), identity.Identity{UID: user.ID, Email: user.Email}); err != nil {
			h.logger.Warn("provider sign in", slog.String("uid", user.ID), slog.Any("error", err))
		}
	}
	h.logger.Info("login", slog.String("uid", user.ID), slog.String("role", string(user.Role)))
	httpx.JSON(w, http.StatusOK, responseOf(session.Snapshot{Session: rec}))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, responseOf(h.sessions.Snapshot()))
}
