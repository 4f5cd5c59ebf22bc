package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/repository"
	"github.com/utafrali/WeddingDonations/pkg/database"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const donationColumns = `id, reference, envelope_id, amount, currency, donor, email, phone, message, anonymous,
		status, payment_method, channel, provider, transaction_id, ip_address, user_agent,
		created_at, updated_at, completed_at`

const (
	insertDonation = `
		INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	selectDonationByReference = `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE reference = $1`

	// The expected prior status in the WHERE clause turns concurrent
	// reconciliations of one reference into a single winner.
	updateDonationStatus = `
		UPDATE donations
		SET status = $1,
		    transaction_id = COALESCE(NULLIF($2, ''), transaction_id),
		    completed_at = COALESCE($3::timestamptz, completed_at),
		    updated_at = $4
		WHERE reference = $5 AND status = $6
		RETURNING envelope_id`

	listRecentDonations = `
		SELECT ` + donationColumns + `,
		       count(*) OVER() AS total_count
		FROM donations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`
)

// DonationRepository implements repository.DonationRepository using PostgreSQL.
type DonationRepository struct {
	db database.DBTX
}

// NewDonationRepository creates a new PostgreSQL-backed donation repository.
func NewDonationRepository(db database.DBTX) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create inserts a new pending donation.
func (r *DonationRepository) Create(ctx context.Context, d *domain.Donation) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateDonation", insertDonation)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, insertDonation,
		d.ID,
		d.Reference,
		d.EnvelopeID,
		d.Amount,
		d.Currency,
		d.Donor,
		d.Email,
		d.Phone,
		d.Message,
		d.Anonymous,
		d.Status,
		d.PaymentMethod,
		d.Channel,
		d.Provider,
		d.TransactionID,
		d.IPAddress,
		d.UserAgent,
		d.CreatedAt,
		d.UpdatedAt,
		d.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("donation", "reference", d.Reference)
		}
		return fmt.Errorf("insert donation: %w", err)
	}

	return nil
}

// GetByReference retrieves a donation by its payment reference.
func (r *DonationRepository) GetByReference(ctx context.Context, reference string) (d *domain.Donation, err error) {
	ctx, end := database.TraceQuery(ctx, "GetDonationByReference", selectDonationByReference)
	defer func() { end(err) }()

	d, err = scanDonation(r.db.QueryRow(ctx, selectDonationByReference, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("donation", reference)
		}
		return nil, fmt.Errorf("get donation by reference: %w", err)
	}

	return d, nil
}

// TransitionStatus applies change as a compare-and-set on the stored status.
// The envelope counter is adjusted in the same transaction, only when the
// status row was actually updated.
func (r *DonationRepository) TransitionStatus(ctx context.Context, change repository.StatusChange) (changed bool, err error) {
	ctx, end := database.TraceQuery(ctx, "TransitionDonationStatus", updateDonationStatus)
	defer func() { end(err) }()

	t := change.Transition
	var completedAt *time.Time
	if t.To == domain.DonationCompleted {
		at := change.At
		completedAt = &at
	}

	err = database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var envelopeID *string
		err := tx.QueryRow(ctx, updateDonationStatus,
			t.To,
			change.TransactionID,
			completedAt,
			change.At,
			change.Reference,
			t.From,
		).Scan(&envelopeID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("update donation status: %w", err)
		}
		changed = true

		if envelopeID == nil {
			return nil
		}
		var query string
		switch t.Effect {
		case domain.EnvelopeIncrement:
			query = incrementEnvelopeUsage
		case domain.EnvelopeDecrement:
			query = decrementEnvelopeUsage
		default:
			return nil
		}
		// A deleted envelope does not block the status change.
		if err := adjustUsage(ctx, tx, query, *envelopeID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return changed, nil
}

// ListRecent returns donations newest first with the total row count.
func (r *DonationRepository) ListRecent(ctx context.Context, offset, limit int) (_ []domain.Donation, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListRecentDonations", listRecentDonations)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listRecentDonations, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		var d domain.Donation
		dest := append(donationFields(&d), &total)
		if err = rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("scan donation row: %w", err)
		}
		donations = append(donations, d)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate donation rows: %w", err)
	}

	return donations, total, nil
}

func donationFields(d *domain.Donation) []any {
	return []any{
		&d.ID,
		&d.Reference,
		&d.EnvelopeID,
		&d.Amount,
		&d.Currency,
		&d.Donor,
		&d.Email,
		&d.Phone,
		&d.Message,
		&d.Anonymous,
		&d.Status,
		&d.PaymentMethod,
		&d.Channel,
		&d.Provider,
		&d.TransactionID,
		&d.IPAddress,
		&d.UserAgent,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.CompletedAt,
	}
}

func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var d domain.Donation
	if err := row.Scan(donationFields(&d)...); err != nil {
		return nil, err
	}
	return &d, nil
}
