package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/pkg/database"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

var refreshTokenColumnNames = []string{
	"id", "admin_id", "token_hash", "expires_at", "is_revoked", "last_used", "user_agent", "ip_address", "created_at",
}

func sampleRefreshToken() *domain.RefreshToken {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.RefreshToken{
		ID:        "rt-001",
		AdminID:   "adm-001",
		TokenHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		LastUsed:  now,
		UserAgent: "Mozilla/5.0",
		IPAddress: "10.0.0.1",
		CreatedAt: now,
	}
}

func refreshTokenRow(rt *domain.RefreshToken) []any {
	return []any{rt.ID, rt.AdminID, rt.TokenHash, rt.ExpiresAt, rt.IsRevoked, rt.LastUsed, rt.UserAgent, rt.IPAddress, rt.CreatedAt}
}

func newRefreshTokenRepo(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRefreshTokenRepository(mock), mock
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)
	rt := sampleRefreshToken()

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(refreshTokenRow(rt)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), rt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByHash(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)
	rt := sampleRefreshToken()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs(rt.TokenHash).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumnNames).AddRow(refreshTokenRow(rt)...))

	got, err := repo.GetByHash(context.Background(), rt.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, rt.ID, got.ID)
	assert.Equal(t, rt.AdminID, got.AdminID)
	assert.Equal(t, rt.ExpiresAt, got.ExpiresAt)
	assert.False(t, got.IsRevoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByHash_NotFound(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens").
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows(refreshTokenColumnNames))

	got, err := repo.GetByHash(context.Background(), "unknown")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"revoked by this call", 1, true},
		{"already revoked", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRefreshTokenRepo(t)

			mock.ExpectExec("UPDATE refresh_tokens SET is_revoked = TRUE").
				WithArgs("rt-001", "adm-001").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			got, err := repo.Revoke(context.Background(), "rt-001", "adm-001")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRefreshTokenRepository_RevokeAllForAdmin(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)

	mock.ExpectExec("UPDATE refresh_tokens SET is_revoked = TRUE WHERE admin_id").
		WithArgs("adm-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.RevokeAllForAdmin(context.Background(), "adm-001")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_ListActiveForAdmin(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)
	first := sampleRefreshToken()
	second := sampleRefreshToken()
	second.ID = "rt-002"
	second.LastUsed = first.LastUsed.Add(-time.Hour)
	now := first.CreatedAt.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens .+ ORDER BY last_used DESC").
		WithArgs("adm-001", now).
		WillReturnRows(pgxmock.NewRows(refreshTokenColumnNames).
			AddRow(refreshTokenRow(first)...).
			AddRow(refreshTokenRow(second)...))

	tokens, err := repo.ListActiveForAdmin(context.Background(), "adm-001", now)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "rt-001", tokens[0].ID)
	assert.Equal(t, "rt-002", tokens[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_TouchAndCleanup(t *testing.T) {
	repo, mock := newRefreshTokenRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE refresh_tokens SET last_used").
		WithArgs(now, "rt-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	require.NoError(t, repo.Touch(context.Background(), "rt-001", now))
	n, err := repo.DeleteExpiredOrRevoked(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
