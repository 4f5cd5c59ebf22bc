package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/WeddingDonations/internal/auth"
	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/event"
	"github.com/utafrali/WeddingDonations/internal/repository"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// Reasons attached to admin.sessions_revoked events.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonPasswordChange = "password_change"
)

var (
	errInvalidCredentials = apperrors.TokenError(http.StatusUnauthorized,
		apperrors.CodeInvalidCredentials, "invalid email or password")
	errAccountDisabled = apperrors.TokenError(http.StatusUnauthorized,
		apperrors.CodeAccountDisabled, "account is disabled")
	errRefreshRevoked = apperrors.TokenError(http.StatusUnauthorized,
		apperrors.CodeTokenRevoked, "refresh token has been revoked")
)

// LoginInput holds the parameters for administrator login.
type LoginInput struct {
	Email    string                 `json:"email" validate:"required,email"`
	Password string                 `json:"password" validate:"required"`
	Meta     domain.SessionMetadata `json:"-"`
}

// ChangePasswordInput holds the parameters for a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
	// KeepSessions leaves existing refresh tokens valid.
	KeepSessions bool `json:"keepSessions"`
}

// CreateAdminInput holds the parameters for creating an administrator.
type CreateAdminInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
}

// Session is an active refresh token as shown to its owner.
type Session struct {
	ID               string    `json:"id"`
	UserAgent        string    `json:"user_agent,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastUsed         time.Time `json:"last_used"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// AuthService implements administrator sessions: login, refresh token
// rotation, logout and password changes.
type AuthService struct {
	admins   repository.AdminRepository
	jwt      *auth.JWTManager
	tokens   *auth.RefreshStore
	producer *event.Producer
	logger   *slog.Logger
	cost     int
	now      func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(
	admins repository.AdminRepository,
	jwtManager *auth.JWTManager,
	tokens *auth.RefreshStore,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		admins:   admins,
		jwt:      jwtManager,
		tokens:   tokens,
		producer: producer,
		logger:   logger,
		cost:     bcryptCost,
		now:      time.Now,
	}
}

// Login checks credentials and issues a new token pair.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.Admin, *domain.TokenPair, error) {
	if in.Email == "" || in.Password == "" {
		return nil, nil, apperrors.InvalidInput("email and password are required")
	}

	admin, err := s.admins.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, errInvalidCredentials
		}
		return nil, nil, fmt.Errorf("get admin by email: %w", err)
	}
	if !admin.IsActive {
		return nil, nil, errAccountDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.Password)); err != nil {
		return nil, nil, errInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			slog.String("admin_id", admin.ID),
			slog.String("error", err.Error()),
		)
	} else {
		admin.LastLogin = &now
	}

	pair, err := s.issuePair(ctx, admin, in.Meta)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "admin logged in", slog.String("admin_id", admin.ID))
	return admin, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued. Of two concurrent refreshes with the same token only one
// wins; the other fails with TOKEN_REVOKED.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta domain.SessionMetadata) (*domain.TokenPair, error) {
	record, err := s.tokens.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByID(ctx, record.AdminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenInvalid, "refresh token owner no longer exists")
		}
		return nil, fmt.Errorf("get admin for refresh: %w", err)
	}
	if !admin.IsActive {
		return nil, errAccountDisabled
	}

	revoked, err := s.tokens.Revoke(ctx, record)
	if err != nil {
		return nil, err
	}
	if !revoked {
		s.logger.WarnContext(ctx, "refresh token reused",
			slog.String("admin_id", admin.ID),
			slog.String("token_id", record.ID),
		)
		return nil, errRefreshRevoked
	}

	if meta.UserAgent == "" && meta.IPAddress == "" {
		meta = domain.SessionMetadata{UserAgent: record.UserAgent, IPAddress: record.IPAddress}
	}
	pair, err := s.issuePair(ctx, admin, meta)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("admin_id", admin.ID))
	return pair, nil
}

// Logout revokes the presented refresh token and then every other session of
// its owner. A token that is already revoked or expired is treated as logged
// out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	record, err := s.tokens.Lookup(ctx, refreshToken)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.CodeTokenRevoked, apperrors.CodeTokenExpired, apperrors.CodeTokenInvalid:
			return nil
		}
		return err
	}

	revoked, err := s.tokens.Revoke(ctx, record)
	if err != nil {
		return err
	}
	n, err := s.tokens.RevokeAll(ctx, record.AdminID)
	if err != nil {
		return err
	}
	if revoked {
		n++
	}
	s.sessionsRevoked(ctx, record.AdminID, n, RevokeReasonLogout)
	s.logger.InfoContext(ctx, "admin logged out", slog.String("admin_id", record.AdminID))
	return nil
}

// LogoutAll revokes every refresh token of the administrator.
func (s *AuthService) LogoutAll(ctx context.Context, adminID string) (int64, error) {
	n, err := s.tokens.RevokeAll(ctx, adminID)
	if err != nil {
		return 0, err
	}
	s.sessionsRevoked(ctx, adminID, n, RevokeReasonLogoutAll)
	s.logger.InfoContext(ctx, "admin logged out everywhere",
		slog.String("admin_id", adminID),
		slog.Int64("revoked", n),
	)
	return n, nil
}

// ChangePassword replaces the administrator's password after checking the
// current one. Unless in.KeepSessions is set every session is revoked.
func (s *AuthService) ChangePassword(ctx context.Context, adminID string, in ChangePasswordInput) error {
	if in.CurrentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}
	if in.CurrentPassword == in.NewPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("get admin for password change: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeInvalidCredentials, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}
	if err := s.admins.UpdatePassword(ctx, adminID, string(hash)); err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}

	if !in.KeepSessions {
		n, err := s.tokens.RevokeAll(ctx, adminID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke sessions after password change",
				slog.String("admin_id", adminID),
				slog.String("error", err.Error()),
			)
		} else {
			s.sessionsRevoked(ctx, adminID, n, RevokeReasonPasswordChange)
		}
	}

	s.logger.InfoContext(ctx, "admin password changed", slog.String("admin_id", adminID))
	return nil
}

// Me returns the authenticated administrator.
func (s *AuthService) Me(ctx context.Context, adminID string) (*domain.Admin, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return admin, nil
}

// ListSessions returns the administrator's active sessions, most recently
// used first.
func (s *AuthService) ListSessions(ctx context.Context, adminID string) ([]Session, error) {
	tokens, err := s.tokens.ListActive(ctx, adminID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sessions := make([]Session, 0, len(tokens))
	for i := range tokens {
		t := &tokens[i]
		sessions = append(sessions, Session{
			ID:               t.ID,
			UserAgent:        t.UserAgent,
			IPAddress:        t.IPAddress,
			CreatedAt:        t.CreatedAt,
			LastUsed:         t.LastUsed,
			ExpiresAt:        t.ExpiresAt,
			RemainingSeconds: int64(t.TimeRemaining(now).Seconds()),
		})
	}
	return sessions, nil
}

// RevokeSession revokes one session of the administrator.
func (s *AuthService) RevokeSession(ctx context.Context, adminID, sessionID string) error {
	ok, err := s.tokens.RevokeByID(ctx, sessionID, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("session", sessionID)
	}
	s.logger.InfoContext(ctx, "session revoked",
		slog.String("admin_id", adminID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// Authenticate resolves an access token to an active administrator. The
// token check itself is stateless; only the active flag needs a lookup.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.Admin, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	admin, err := s.admins.GetByID(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenInvalid, "administrator not found")
		}
		return nil, fmt.Errorf("get admin for token: %w", err)
	}
	if !admin.IsActive {
		return nil, errAccountDisabled
	}
	return admin, nil
}

// CreateAdmin creates an administrator account.
func (s *AuthService) CreateAdmin(ctx context.Context, in CreateAdminInput) (*domain.Admin, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if in.Role == "" {
		in.Role = domain.RoleAdmin
	}
	if !domain.IsValidRole(in.Role) {
		return nil, apperrors.InvalidInput("role must be admin or super_admin")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	admin := &domain.Admin{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.InfoContext(ctx, "admin created",
		slog.String("admin_id", admin.ID),
		slog.String("role", admin.Role),
	)
	return admin, nil
}

func (s *AuthService) issuePair(ctx context.Context, admin *domain.Admin, meta domain.SessionMetadata) (*domain.TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(admin.ID, admin.Email, admin.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, _, err := s.tokens.Create(ctx, admin.ID, 0, meta)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwt.AccessExpiry().Seconds()),
		TokenType:    "Bearer",
	}, nil
}

func (s *AuthService) sessionsRevoked(ctx context.Context, adminID string, n int64, reason string) {
	if err := s.producer.PublishSessionsRevoked(ctx, adminID, n, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish admin.sessions_revoked event",
			slog.String("admin_id", adminID),
			slog.String("error", err.Error()),
		)
	}
}

// validatePassword checks that the password meets minimum complexity requirements.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one uppercase letter, one lowercase letter, and one digit")
	}
	return nil
}
