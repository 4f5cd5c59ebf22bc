package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/service"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
	"github.com/utafrali/WeddingDonations/pkg/middleware"
)

// AuthService is the part of service.AuthService the HTTP layer uses.
type AuthService interface {
	Login(ctx context.Context, in service.LoginInput) (*domain.Admin, *domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, meta domain.SessionMetadata) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, adminID string) (int64, error)
	ChangePassword(ctx context.Context, adminID string, in service.ChangePasswordInput) error
	Me(ctx context.Context, adminID string) (*domain.Admin, error)
	ListSessions(ctx context.Context, adminID string) ([]service.Session, error)
	RevokeSession(ctx context.Context, adminID, sessionID string) error
	Authenticate(ctx context.Context, accessToken string) (*domain.Admin, error)
	CreateAdmin(ctx context.Context, in service.CreateAdminInput) (*domain.Admin, error)
}

// AuthHandler handles HTTP requests for administrator auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RefreshTokenRequest is the body of refresh and logout. The token is
// optional at the JSON level so the service can answer TOKEN_MISSING.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// CreateAdminRequest is the JSON request body for creating an administrator.
type CreateAdminRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Role     string `json:"role" validate:"omitempty,oneof=admin super_admin"`
}

// --- Response types ---

// LoginResponse wraps the admin profile with its token pair.
type LoginResponse struct {
	Admin  *domain.Admin     `json:"admin"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// --- Handlers ---

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	req.Meta = sessionMeta(r)

	admin, tokens, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "login successful", LoginResponse{Admin: admin, Tokens: tokens})
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeRefreshToken(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), token, sessionMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "", tokens)
}

// Logout handles POST /api/auth/logout. It needs only the refresh token, so
// a client whose access token already expired can still sign out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.decodeRefreshToken(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "logged out", nil)
}

// LogoutAll handles POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.LogoutAll(r.Context(), middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "all sessions revoked", map[string]int64{"revoked": n})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	admin, err := h.service.Me(r.Context(), middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "", admin)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req service.ChangePasswordInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), middleware.AdminIDFromContext(r.Context()), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "password changed", nil)
}

// ListSessions handles GET /api/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListSessions(r.Context(), middleware.AdminIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if sessions == nil {
		sessions = []service.Session{}
	}

	httputil.WriteData(w, http.StatusOK, "", sessions)
}

// RevokeSession handles DELETE /api/auth/sessions/{id}
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.RevokeSession(r.Context(), middleware.AdminIDFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "session revoked", nil)
}

// CreateAdmin handles POST /api/auth/admins (super admins only)
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	admin, err := h.service.CreateAdmin(r.Context(), service.CreateAdminInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, "admin created", admin)
}

// decodeRefreshToken reads an optional {"refreshToken": ...} body. An empty
// body yields an empty token rather than a decode error.
func (h *AuthHandler) decodeRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)

	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return "", false
	}
	return strings.TrimSpace(req.RefreshToken), true
}
