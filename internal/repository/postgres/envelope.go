package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/pkg/database"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const (
	selectEnvelopeByID = `
		SELECT id, title, amount, description, usage_count, max_usage, expires_at, is_active,
		       color, icon, sort_order, created_at, updated_at
		FROM envelopes
		WHERE id = $1`

	incrementEnvelopeUsage = `UPDATE envelopes SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1`

	decrementEnvelopeUsage = `UPDATE envelopes SET usage_count = GREATEST(usage_count - 1, 0), updated_at = NOW() WHERE id = $1`
)

// EnvelopeRepository implements repository.EnvelopeRepository using PostgreSQL.
type EnvelopeRepository struct {
	db database.DBTX
}

// NewEnvelopeRepository creates a new PostgreSQL-backed envelope repository.
func NewEnvelopeRepository(db database.DBTX) *EnvelopeRepository {
	return &EnvelopeRepository{db: db}
}

// GetByID retrieves an envelope by its identifier.
func (r *EnvelopeRepository) GetByID(ctx context.Context, id string) (_ *domain.Envelope, err error) {
	ctx, end := database.TraceQuery(ctx, "GetEnvelopeByID", selectEnvelopeByID)
	defer func() { end(err) }()

	var e domain.Envelope
	err = r.db.QueryRow(ctx, selectEnvelopeByID, id).Scan(
		&e.ID,
		&e.Title,
		&e.Amount,
		&e.Description,
		&e.UsageCount,
		&e.MaxUsage,
		&e.ExpiresAt,
		&e.IsActive,
		&e.Color,
		&e.Icon,
		&e.SortOrder,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("envelope", id)
		}
		return nil, fmt.Errorf("get envelope: %w", err)
	}

	return &e, nil
}

// IncrementUsage adds one to the envelope's usage counter.
func (r *EnvelopeRepository) IncrementUsage(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "IncrementEnvelopeUsage", incrementEnvelopeUsage)
	defer func() { end(err) }()

	return adjustUsage(ctx, r.db, incrementEnvelopeUsage, id)
}

// DecrementUsage subtracts one from the envelope's usage counter, floored at zero.
func (r *EnvelopeRepository) DecrementUsage(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DecrementEnvelopeUsage", decrementEnvelopeUsage)
	defer func() { end(err) }()

	return adjustUsage(ctx, r.db, decrementEnvelopeUsage, id)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func adjustUsage(ctx context.Context, db execer, query, id string) error {
	tag, err := db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update envelope usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("envelope", id)
	}
	return nil
}
