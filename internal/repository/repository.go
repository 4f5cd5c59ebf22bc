package repository

import (
	"context"
	"time"

	"github.com/utafrali/WeddingDonations/internal/domain"
)

// StatusChange describes a compare-and-set on a donation's status.
type StatusChange struct {
	Reference     string
	Transition    domain.Transition
	TransactionID string
	At            time.Time
}

// DonationRepository defines persistence for the donation ledger.
type DonationRepository interface {
	// Create inserts a new donation. A duplicate reference yields an AlreadyExists error.
	Create(ctx context.Context, donation *domain.Donation) error

	// GetByReference retrieves a donation by its payment reference.
	GetByReference(ctx context.Context, reference string) (*domain.Donation, error)

	// TransitionStatus moves the donation from change.Transition.From to
	// change.Transition.To only if its stored status still equals From, and
	// applies the envelope effect in the same transaction. It reports whether
	// this call performed the change.
	TransitionStatus(ctx context.Context, change StatusChange) (bool, error)

	// ListRecent returns donations newest first together with the total count.
	ListRecent(ctx context.Context, offset, limit int) ([]domain.Donation, int, error)
}

// EnvelopeRepository defines persistence for donation envelopes.
type EnvelopeRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Envelope, error)

	// IncrementUsage adds one to the usage counter.
	IncrementUsage(ctx context.Context, id string) error

	// DecrementUsage subtracts one from the usage counter, never below zero.
	DecrementUsage(ctx context.Context, id string) error
}

// AdminRepository defines persistence for administrators.
type AdminRepository interface {
	Create(ctx context.Context, admin *domain.Admin) error
	GetByID(ctx context.Context, id string) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenRepository defines persistence for refresh token records.
// Only token hashes are stored.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetByHash retrieves a token record regardless of its state.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Touch records a successful use of the token.
	Touch(ctx context.Context, id string, at time.Time) error

	// Revoke revokes one token owned by adminID. It reports false when the
	// token was already revoked or does not belong to the administrator.
	Revoke(ctx context.Context, id, adminID string) (bool, error)

	// RevokeAllForAdmin revokes every live token of the administrator and
	// returns how many were revoked.
	RevokeAllForAdmin(ctx context.Context, adminID string) (int64, error)

	// ListActiveForAdmin returns unrevoked, unexpired tokens ordered by last use.
	ListActiveForAdmin(ctx context.Context, adminID string, now time.Time) ([]domain.RefreshToken, error)

	// DeleteExpiredOrRevoked removes dead tokens and returns how many were removed.
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}
