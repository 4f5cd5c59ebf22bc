package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/pkg/database"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const refreshTokenColumns = `id, admin_id, token_hash, expires_at, is_revoked, last_used, user_agent, ip_address, created_at`

const (
	insertRefreshToken = `
		INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectRefreshTokenByHash = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	touchRefreshToken = `UPDATE refresh_tokens SET last_used = $1 WHERE id = $2`

	revokeRefreshToken = `
		UPDATE refresh_tokens SET is_revoked = TRUE
		WHERE id = $1 AND admin_id = $2 AND is_revoked = FALSE`

	revokeAdminRefreshTokens = `UPDATE refresh_tokens SET is_revoked = TRUE WHERE admin_id = $1 AND is_revoked = FALSE`

	listActiveRefreshTokens = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE admin_id = $1 AND is_revoked = FALSE AND expires_at > $2
		ORDER BY last_used DESC`

	deleteDeadRefreshTokens = `DELETE FROM refresh_tokens WHERE expires_at <= $1 OR is_revoked = TRUE`
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token record.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateRefreshToken", insertRefreshToken)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, insertRefreshToken,
		t.ID,
		t.AdminID,
		t.TokenHash,
		t.ExpiresAt,
		t.IsRevoked,
		t.LastUsed,
		t.UserAgent,
		t.IPAddress,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	ctx, end := database.TraceQuery(ctx, "GetRefreshTokenByHash", selectRefreshTokenByHash)
	defer func() { end(err) }()

	var t domain.RefreshToken
	if err = pgxscan.Get(ctx, r.db, &t, selectRefreshTokenByHash, tokenHash); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

// Touch sets last_used on the token.
func (r *RefreshTokenRepository) Touch(ctx context.Context, id string, at time.Time) (err error) {
	ctx, end := database.TraceQuery(ctx, "TouchRefreshToken", touchRefreshToken)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, touchRefreshToken, at, id); err != nil {
		return fmt.Errorf("touch refresh token: %w", err)
	}
	return nil
}

// Revoke revokes a single live token owned by adminID.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id, adminID string) (_ bool, err error) {
	ctx, end := database.TraceQuery(ctx, "RevokeRefreshToken", revokeRefreshToken)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, revokeRefreshToken, id, adminID)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllForAdmin revokes every live token of the administrator.
func (r *RefreshTokenRepository) RevokeAllForAdmin(ctx context.Context, adminID string) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "RevokeAdminRefreshTokens", revokeAdminRefreshTokens)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, revokeAdminRefreshTokens, adminID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by admin: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListActiveForAdmin returns the administrator's live sessions, most recently used first.
func (r *RefreshTokenRepository) ListActiveForAdmin(ctx context.Context, adminID string, now time.Time) (_ []domain.RefreshToken, err error) {
	ctx, end := database.TraceQuery(ctx, "ListActiveRefreshTokens", listActiveRefreshTokens)
	defer func() { end(err) }()

	tokens := []domain.RefreshToken{}
	if err = pgxscan.Select(ctx, r.db, &tokens, listActiveRefreshTokens, adminID, now); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpiredOrRevoked removes tokens that can no longer be used.
func (r *RefreshTokenRepository) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteDeadRefreshTokens", deleteDeadRefreshTokens)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, deleteDeadRefreshTokens, now)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
