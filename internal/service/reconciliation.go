package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/event"
	"github.com/utafrali/WeddingDonations/internal/gateway"
	"github.com/utafrali/WeddingDonations/internal/repository"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	"github.com/utafrali/WeddingDonations/pkg/logger"
)

// Channel names the path through which a reconciliation was triggered.
type Channel string

const (
	ChannelVerify   Channel = "verify"
	ChannelWebhook  Channel = "webhook"
	ChannelCallback Channel = "callback"
	ChannelOTP      Channel = "otp"
)

// Reconciliation outcomes recorded in metrics.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomePending   = "pending"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

var reconciliationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "donation_reconciliations_total",
		Help: "Donation reconciliations by trigger channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

// ReconcileInput identifies the donation to reconcile. ObservedStatus is a
// provider status the caller already holds from an authenticated source
// (a signed webhook, an OTP response). When empty the gateway is asked.
type ReconcileInput struct {
	Reference      string
	Channel        Channel
	ObservedStatus string
	TransactionID  string
}

// ReconcileResult describes what a reconciliation did.
type ReconcileResult struct {
	Donation       *domain.Donation
	ProviderStatus domain.ProviderStatus
	Changed        bool
	Effect         domain.EnvelopeEffect
	Verification   *gateway.Verification
}

// ReconciliationService brings a donation into agreement with the payment
// provider. All channels share one transition table and one
// compare-and-set, so redelivery through any channel is a no-op.
type ReconciliationService struct {
	donations repository.DonationRepository
	gateway   gateway.PaymentGateway
	producer  *event.Producer
	logger    *slog.Logger
	now       func() time.Time
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	donations repository.DonationRepository,
	gw gateway.PaymentGateway,
	producer *event.Producer,
	logger *slog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		donations: donations,
		gateway:   gw,
		producer:  producer,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile applies the provider's status for in.Reference to the ledger.
//
// Transport failures while verifying leave the donation untouched and are
// returned to the caller. Non-terminal provider statuses are a no-op.
func (s *ReconciliationService) Reconcile(ctx context.Context, in ReconcileInput) (res *ReconcileResult, err error) {
	if in.Reference == "" {
		return nil, gateway.ErrReferenceRequired
	}
	ctx = logger.WithReference(ctx, in.Reference)
	log := logger.WithContext(ctx, s.logger).With(slog.String("channel", string(in.Channel)))

	outcome := OutcomeError
	defer func() {
		reconciliationsTotal.WithLabelValues(string(in.Channel), outcome).Inc()
	}()

	donation, err := s.donations.GetByReference(ctx, in.Reference)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			outcome = OutcomeNotFound
			log.WarnContext(ctx, "reconciliation for unknown reference")
		}
		return nil, err
	}

	res = &ReconcileResult{Donation: donation}

	// A browser redirect only says which reference to look at.
	observed := in.ObservedStatus
	if in.Channel == ChannelCallback {
		observed = ""
	}

	txID := in.TransactionID
	if observed == "" {
		v, err := s.gateway.Verify(ctx, in.Reference)
		if err != nil {
			return nil, err
		}
		res.Verification = v
		if !v.OK() {
			log.WarnContext(ctx, "payment verification failed",
				slog.String("message", v.Message),
				slog.Bool("transient", v.Transient),
			)
			return res, v.Err()
		}
		observed = v.TransactionStatus
		if v.TransactionID != "" {
			txID = v.TransactionID
		}
	}

	res.ProviderStatus = domain.ParseProviderStatus(observed)
	t, ok := domain.NextStatus(donation.Status, res.ProviderStatus)
	if !ok {
		outcome = OutcomeUnchanged
		if !res.ProviderStatus.IsTerminal() {
			outcome = OutcomePending
		}
		log.DebugContext(ctx, "no status change",
			slog.String("status", string(donation.Status)),
			slog.String("provider_status", string(res.ProviderStatus)),
		)
		return res, nil
	}

	now := s.now().UTC()
	changed, err := s.donations.TransitionStatus(ctx, repository.StatusChange{
		Reference:     in.Reference,
		Transition:    t,
		TransactionID: txID,
		At:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("transition donation %s: %w", in.Reference, err)
	}

	if !changed {
		// Another channel moved the donation first.
		outcome = OutcomeUnchanged
		if fresh, err := s.donations.GetByReference(ctx, in.Reference); err == nil {
			res.Donation = fresh
		}
		log.InfoContext(ctx, "donation already reconciled by another channel")
		return res, nil
	}

	outcome = OutcomeUpdated
	res.Changed = true
	res.Effect = t.Effect
	donation.Status = t.To
	donation.UpdatedAt = now
	if txID != "" {
		donation.TransactionID = txID
	}
	if t.To == domain.DonationCompleted {
		donation.CompletedAt = &now
	}

	log.InfoContext(ctx, "donation reconciled",
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.String("envelope_effect", t.Effect.String()),
	)
	s.publish(ctx, donation, in.Channel)

	return res, nil
}

func (s *ReconciliationService) publish(ctx context.Context, d *domain.Donation, ch Channel) {
	var err error
	switch d.Status {
	case domain.DonationCompleted:
		err = s.producer.PublishDonationCompleted(ctx, d, string(ch))
	case domain.DonationFailed:
		err = s.producer.PublishDonationFailed(ctx, d, string(ch))
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish donation event",
			slog.String("reference", d.Reference),
			slog.String("error", err.Error()),
		)
	}
}
