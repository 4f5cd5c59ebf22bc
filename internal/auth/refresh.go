package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/repository"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const refreshTokenBytes = 64

// HashToken returns the hex SHA-256 digest stored in place of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshStore issues and validates opaque refresh tokens. Only their
// hashes reach the repository.
type RefreshStore struct {
	repo       repository.RefreshTokenRepository
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

// NewRefreshStore creates a store. Requested lifetimes are clamped to maxTTL.
func NewRefreshStore(repo repository.RefreshTokenRepository, defaultTTL, maxTTL time.Duration) *RefreshStore {
	if maxTTL <= 0 {
		maxTTL = 30 * 24 * time.Hour
	}
	if defaultTTL <= 0 || defaultTTL > maxTTL {
		defaultTTL = min(7*24*time.Hour, maxTTL)
	}
	return &RefreshStore{
		repo:       repo,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		now:        time.Now,
	}
}

// DefaultTTL returns the lifetime used when Create is called with ttl <= 0.
func (s *RefreshStore) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Create issues a new refresh token for adminID and returns the plaintext
// token together with its stored record.
func (s *RefreshStore) Create(ctx context.Context, adminID string, ttl time.Duration, meta domain.SessionMetadata) (string, *domain.RefreshToken, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate refresh token: %w", err)
	}
	token := hex.EncodeToString(buf)

	now := s.now().UTC()
	record := &domain.RefreshToken{
		ID:        uuid.New().String(),
		AdminID:   adminID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(ttl),
		LastUsed:  now,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("store refresh token: %w", err)
	}

	return token, record, nil
}

// Validate returns the live record for token and records its use.
func (s *RefreshStore) Validate(ctx context.Context, token string) (*domain.RefreshToken, error) {
	record, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.Touch(ctx, record.ID, now); err != nil {
		return nil, fmt.Errorf("touch refresh token: %w", err)
	}
	record.LastUsed = now
	return record, nil
}

// Lookup returns the live record for token without touching it. Logout
// uses it: a session that is about to end is not "used".
func (s *RefreshStore) Lookup(ctx context.Context, token string) (*domain.RefreshToken, error) {
	return s.lookup(ctx, token)
}

func (s *RefreshStore) lookup(ctx context.Context, token string) (*domain.RefreshToken, error) {
	if token == "" {
		return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenMissing, "refresh token is required")
	}

	record, err := s.repo.GetByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenInvalid, "invalid refresh token")
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if record.IsRevoked {
		return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenRevoked, "refresh token has been revoked")
	}
	if !record.IsUsable(s.now()) {
		return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenExpired, "refresh token expired")
	}
	return record, nil
}

// Revoke revokes one token and reports whether this call did so.
func (s *RefreshStore) Revoke(ctx context.Context, record *domain.RefreshToken) (bool, error) {
	ok, err := s.repo.Revoke(ctx, record.ID, record.AdminID)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return ok, nil
}

// RevokeByID revokes a session owned by adminID.
func (s *RefreshStore) RevokeByID(ctx context.Context, id, adminID string) (bool, error) {
	ok, err := s.repo.Revoke(ctx, id, adminID)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	return ok, nil
}

// RevokeAll revokes every live token of adminID.
func (s *RefreshStore) RevokeAll(ctx context.Context, adminID string) (int64, error) {
	n, err := s.repo.RevokeAllForAdmin(ctx, adminID)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}
	return n, nil
}

// ListActive returns adminID's live sessions, most recently used first.
func (s *RefreshStore) ListActive(ctx context.Context, adminID string) ([]domain.RefreshToken, error) {
	tokens, err := s.repo.ListActiveForAdmin(ctx, adminID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	return tokens, nil
}

// CleanupExpired deletes expired or revoked tokens.
func (s *RefreshStore) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredOrRevoked(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup refresh tokens: %w", err)
	}
	return n, nil
}
