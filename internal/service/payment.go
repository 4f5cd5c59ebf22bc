package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/event"
	"github.com/utafrali/WeddingDonations/internal/gateway"
	"github.com/utafrali/WeddingDonations/internal/repository"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	"github.com/utafrali/WeddingDonations/pkg/idempotency"
	"github.com/utafrali/WeddingDonations/pkg/logger"
	"github.com/utafrali/WeddingDonations/pkg/pagination"
	"github.com/utafrali/WeddingDonations/pkg/validator"
)

// Webhook event types sent by the provider.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
	EventChargePending = "charge.pending"
)

// Webhook handling results recorded in metrics.
const (
	webhookApplied   = "applied"
	webhookDuplicate = "duplicate"
	webhookIgnored   = "ignored"
	webhookUnknown   = "unknown_reference"
	webhookError     = "error"
)

// Redirect outcomes appended to the frontend donation page.
const (
	RedirectSuccess = "success"
	RedirectError   = "error"
)

const referencePrefix = "wd-"

var webhooksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Payment provider webhooks by event type and handling result.",
	},
	[]string{"event", "result"},
)

// PaymentConfig holds the payment settings that come from configuration.
type PaymentConfig struct {
	FrontendURL     string
	DefaultCurrency string
	AnonymousEmail  string
	WebhookDedupTTL time.Duration
}

// DonorInput is the donor-supplied part of an initialization request.
type DonorInput struct {
	FirstName   string `json:"firstName" validate:"omitempty,max=100"`
	LastName    string `json:"lastName" validate:"omitempty,max=100"`
	Message     string `json:"message" validate:"omitempty,max=1000"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// InitializeCardInput holds the parameters for a card/bank payment.
type InitializeCardInput struct {
	Email        string     `json:"email" validate:"omitempty,email"`
	Amount       int64      `json:"amount" validate:"required,gt=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	EnvelopeID   string     `json:"envelopeId" validate:"required"`
	DonationData DonorInput `json:"donationData"`
	IPAddress    string     `json:"-"`
	UserAgent    string     `json:"-"`
}

// InitializeMobileMoneyInput holds the parameters for a mobile money payment.
type InitializeMobileMoneyInput struct {
	Email        string     `json:"email" validate:"omitempty,email"`
	Amount       int64      `json:"amount" validate:"required,gt=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	Provider     string     `json:"provider" validate:"required"`
	Phone        string     `json:"phone" validate:"required,phone"`
	EnvelopeID   string     `json:"envelopeId" validate:"required"`
	DonationData DonorInput `json:"donationData"`
	IPAddress    string     `json:"-"`
	UserAgent    string     `json:"-"`
}

// SubmitOTPInput holds an OTP for an OTP-gated mobile money charge.
type SubmitOTPInput struct {
	OTP       string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Reference string `json:"reference" validate:"required"`
}

// CardPayment is returned by InitializeCard.
type CardPayment struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	DonationID       string `json:"donationId"`
}

// MobileMoneyPayment is returned by InitializeMobileMoney. Status is the
// provider's intermediate status and is never final.
type MobileMoneyPayment struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	DisplayText string `json:"display_text,omitempty"`
	Provider    string `json:"provider"`
	RequiresOTP bool   `json:"requires_otp"`
	DonationID  string `json:"donationId"`
}

// PaymentStatus is returned by Verify and SubmitOTP.
type PaymentStatus struct {
	Reference      string           `json:"reference"`
	ProviderStatus string           `json:"provider_status"`
	Amount         int64            `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	DisplayText    string           `json:"display_text,omitempty"`
	Donation       *DonationSummary `json:"donation"`
}

// DonationSummary is the ledger view attached to payment status responses.
type DonationSummary struct {
	ID         string                `json:"id"`
	Status     domain.DonationStatus `json:"status"`
	EnvelopeID *string               `json:"envelopeId,omitempty"`
}

// WebhookEvent is the subset of a provider notification this service reads.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string                `json:"reference"`
		Status    string                `json:"status"`
		ID        gateway.TransactionID `json:"id"`
	} `json:"data"`
}

// PaymentService initializes payments and routes every confirmation channel
// into the ReconciliationService.
type PaymentService struct {
	donations  repository.DonationRepository
	envelopes  repository.EnvelopeRepository
	gateway    gateway.PaymentGateway
	reconciler *ReconciliationService
	dedup      idempotency.Store
	producer   *event.Producer
	cfg        PaymentConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewPaymentService creates a new payment service. dedup may be nil, in
// which case webhook deliveries are not de-duplicated before reconciliation.
func NewPaymentService(
	donations repository.DonationRepository,
	envelopes repository.EnvelopeRepository,
	gw gateway.PaymentGateway,
	reconciler *ReconciliationService,
	dedup idempotency.Store,
	producer *event.Producer,
	cfg PaymentConfig,
	logger *slog.Logger,
) *PaymentService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "XOF"
	}
	if cfg.WebhookDedupTTL <= 0 {
		cfg.WebhookDedupTTL = 24 * time.Hour
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &PaymentService{
		donations:  donations,
		envelopes:  envelopes,
		gateway:    gw,
		reconciler: reconciler,
		dedup:      dedup,
		producer:   producer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// InitializeCard records a pending card donation and opens a hosted checkout.
func (s *PaymentService) InitializeCard(ctx context.Context, in InitializeCardInput) (*CardPayment, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	if err := s.checkEnvelope(ctx, in.EnvelopeID); err != nil {
		return nil, err
	}

	donation := s.newDonation(in.EnvelopeID, in.Amount, in.Currency, in.Email, in.DonationData)
	donation.PaymentMethod = domain.MethodVisaMastercard
	donation.Channel = domain.ChannelCard
	donation.IPAddress, donation.UserAgent = in.IPAddress, in.UserAgent
	if err := gateway.ValidateCard(gateway.CardRequest{Email: donation.Email, Amount: donation.Amount}); err != nil {
		return nil, err
	}

	ctx = logger.WithReference(ctx, donation.Reference)
	if err := s.donations.Create(ctx, donation); err != nil {
		return nil, fmt.Errorf("create pending donation: %w", err)
	}

	charge, err := s.gateway.InitializeCard(ctx, gateway.CardRequest{
		Reference:   donation.Reference,
		Email:       donation.Email,
		Amount:      donation.Amount,
		Currency:    donation.Currency,
		CallbackURL: s.CallbackURL(),
	})
	if err != nil {
		s.abandon(ctx, donation, false)
		return nil, err
	}
	if !charge.OK() {
		s.abandon(ctx, donation, charge.Transient)
		return nil, charge.Err()
	}

	s.initialized(ctx, donation)
	return &CardPayment{
		AuthorizationURL: charge.AuthorizationURL,
		AccessCode:       charge.AccessCode,
		Reference:        donation.Reference,
		DonationID:       donation.ID,
	}, nil
}

// InitializeMobileMoney records a pending mobile money donation and starts
// the charge. For OTP-gated providers the returned status is "send_otp".
func (s *PaymentService) InitializeMobileMoney(ctx context.Context, in InitializeMobileMoneyInput) (*MobileMoneyPayment, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	provider, ok := domain.NormalizeProvider(in.Provider)
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid mobile money provider, supported: %s",
			strings.Join(domain.SupportedProviders(), ", ")))
	}
	method, _ := domain.MethodForProvider(provider)
	if err := s.checkEnvelope(ctx, in.EnvelopeID); err != nil {
		return nil, err
	}

	donation := s.newDonation(in.EnvelopeID, in.Amount, in.Currency, in.Email, in.DonationData)
	donation.PaymentMethod = method
	donation.Channel = domain.ChannelMobileMoney
	donation.Provider = provider
	donation.Phone = in.Phone
	donation.IPAddress, donation.UserAgent = in.IPAddress, in.UserAgent

	req := gateway.MobileMoneyRequest{
		Reference:   donation.Reference,
		Amount:      donation.Amount,
		Email:       donation.Email,
		Provider:    provider,
		Phone:       in.Phone,
		Currency:    donation.Currency,
		CallbackURL: s.CallbackURL(),
	}
	if err := gateway.ValidateMobileMoney(req); err != nil {
		return nil, err
	}

	ctx = logger.WithReference(ctx, donation.Reference)
	if err := s.donations.Create(ctx, donation); err != nil {
		return nil, fmt.Errorf("create pending donation: %w", err)
	}

	charge, err := s.gateway.InitializeMobileMoney(ctx, req)
	if err != nil {
		s.abandon(ctx, donation, false)
		return nil, err
	}
	if !charge.OK() {
		s.abandon(ctx, donation, charge.Transient)
		return nil, charge.Err()
	}

	s.initialized(ctx, donation)
	return &MobileMoneyPayment{
		Reference:   donation.Reference,
		Status:      charge.ChargeStatus,
		DisplayText: charge.DisplayText,
		Provider:    provider,
		RequiresOTP: domain.RequiresOTP(provider),
		DonationID:  donation.ID,
	}, nil
}

// SubmitOTP forwards an OTP to the provider and reconciles the donation with
// the status the provider answers.
func (s *PaymentService) SubmitOTP(ctx context.Context, in SubmitOTPInput) (*PaymentStatus, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}
	ctx = logger.WithReference(ctx, in.Reference)

	otp, err := s.gateway.SubmitOTP(ctx, in.OTP, in.Reference)
	if err != nil {
		return nil, err
	}
	if !otp.OK() {
		return nil, otp.Err()
	}

	out := &PaymentStatus{Reference: in.Reference, ProviderStatus: otp.ChargeStatus, DisplayText: otp.DisplayText}
	res, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		Reference:      in.Reference,
		Channel:        ChannelOTP,
		ObservedStatus: otp.ChargeStatus,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}
	out.Donation = summarize(res.Donation)
	return out, nil
}

// Verify asks the provider for the current status of reference and applies
// it to the ledger. Unknown references are reported with a nil donation as
// long as the provider knows them.
func (s *PaymentService) Verify(ctx context.Context, reference string) (*PaymentStatus, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, gateway.ErrReferenceRequired
	}

	res, err := s.reconciler.Reconcile(ctx, ReconcileInput{Reference: reference, Channel: ChannelVerify})
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return s.verifyUnknown(ctx, reference)
	}

	out := &PaymentStatus{
		Reference:      reference,
		ProviderStatus: string(res.ProviderStatus),
		Donation:       summarize(res.Donation),
	}
	if v := res.Verification; v != nil {
		out.Amount, out.Currency = v.Amount, v.Currency
	}
	return out, nil
}

func (s *PaymentService) verifyUnknown(ctx context.Context, reference string) (*PaymentStatus, error) {
	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !v.OK() {
		return nil, v.Err()
	}
	return &PaymentStatus{
		Reference:      reference,
		ProviderStatus: v.TransactionStatus,
		Amount:         v.Amount,
		Currency:       v.Currency,
	}, nil
}

// HandleWebhook applies an authenticated provider notification. The
// signature has already been checked by the transport. A nil error means
// the delivery should be acknowledged, including for unknown event types
// and references the ledger does not hold.
func (s *PaymentService) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	reference := strings.TrimSpace(ev.Data.Reference)
	ctx = logger.WithReference(ctx, reference)
	log := logger.WithContext(ctx, s.logger).With(slog.String("event", ev.Event))

	result := webhookError
	defer func() {
		webhooksTotal.WithLabelValues(webhookEventLabel(ev.Event), result).Inc()
	}()

	var observed string
	switch ev.Event {
	case EventChargeSuccess:
		observed = ev.Data.Status
		if observed == "" {
			observed = string(domain.ProviderSuccess)
		}
	case EventChargeFailed:
		observed = ev.Data.Status
		if observed == "" || domain.ParseProviderStatus(observed) == domain.ProviderSuccess {
			observed = string(domain.ProviderFailed)
		}
	case EventChargePending:
		result = webhookIgnored
		log.InfoContext(ctx, "charge pending at provider")
		return nil
	default:
		result = webhookIgnored
		log.InfoContext(ctx, "ignoring unhandled webhook event")
		return nil
	}

	if reference == "" {
		result = webhookIgnored
		log.WarnContext(ctx, "webhook without reference")
		return nil
	}

	key := ev.Event + ":" + reference
	if s.dedup != nil {
		claimed, err := s.dedup.Claim(ctx, key, s.cfg.WebhookDedupTTL)
		if err != nil {
			// The ledger compare-and-set still prevents double application.
			log.WarnContext(ctx, "webhook de-duplication unavailable", slog.String("error", err.Error()))
		} else if !claimed {
			result = webhookDuplicate
			log.InfoContext(ctx, "duplicate webhook delivery")
			return nil
		}
	}

	_, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		Reference:      reference,
		Channel:        ChannelWebhook,
		ObservedStatus: observed,
		TransactionID:  string(ev.Data.ID),
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			result = webhookUnknown
			return nil
		}
		s.release(ctx, key)
		return fmt.Errorf("reconcile webhook %s: %w", reference, err)
	}

	result = webhookApplied
	return nil
}

func (s *PaymentService) release(ctx context.Context, key string) {
	if s.dedup == nil {
		return
	}
	if err := s.dedup.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to release webhook claim",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// HandleCallback handles the browser redirect that follows a hosted checkout.
// The query string is untrusted, so the gateway is always asked. It returns
// the frontend URL the browser should be sent to; it never fails.
func (s *PaymentService) HandleCallback(ctx context.Context, reference, trxref string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		reference = strings.TrimSpace(trxref)
	}
	if reference == "" {
		s.logger.WarnContext(ctx, "payment callback without reference")
		return s.RedirectURL(RedirectError, "")
	}

	res, err := s.reconciler.Reconcile(ctx, ReconcileInput{Reference: reference, Channel: ChannelCallback})
	if err != nil {
		logger.WithContext(logger.WithReference(ctx, reference), s.logger).WarnContext(ctx,
			"payment callback could not be reconciled", slog.String("error", err.Error()))
		return s.RedirectURL(RedirectError, reference)
	}
	if res.ProviderStatus == domain.ProviderSuccess && res.Donation.Status == domain.DonationCompleted {
		return s.RedirectURL(RedirectSuccess, reference)
	}
	return s.RedirectURL(RedirectError, reference)
}

// ListDonations returns one page of donations, newest first.
func (s *PaymentService) ListDonations(ctx context.Context, p pagination.Params) (pagination.Page[domain.Donation], error) {
	items, total, err := s.donations.ListRecent(ctx, p.Offset(), p.PerPage)
	if err != nil {
		return pagination.Page[domain.Donation]{}, fmt.Errorf("list donations: %w", err)
	}
	return pagination.NewPage(items, total, p), nil
}

// CallbackURL is the URL the provider sends the browser back to.
func (s *PaymentService) CallbackURL() string {
	return s.cfg.FrontendURL + "/donation?payment_status=callback"
}

// RedirectURL builds the frontend donation page URL for a callback outcome.
func (s *PaymentService) RedirectURL(outcome, reference string) string {
	if reference == "" {
		reference = "unknown"
	}
	q := url.Values{}
	q.Set("payment_status", outcome)
	q.Set("reference", reference)
	return s.cfg.FrontendURL + "/donation?" + q.Encode()
}

func (s *PaymentService) checkEnvelope(ctx context.Context, id string) error {
	envelope, err := s.envelopes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !envelope.IsAvailable(s.now()) {
		return apperrors.InvalidInput("envelope is not accepting donations")
	}
	return nil
}

func (s *PaymentService) newDonation(envelopeID string, amount int64, currency, email string, donor DonorInput) *domain.Donation {
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	now := s.now().UTC()
	envID := envelopeID
	return &domain.Donation{
		ID:         uuid.New().String(),
		Reference:  referencePrefix + uuid.New().String(),
		EnvelopeID: &envID,
		Amount:     amount,
		Currency:   strings.ToUpper(currency),
		Donor:      domain.DonorName(donor.IsAnonymous, donor.FirstName, donor.LastName),
		Email:      domain.DonorEmail(donor.IsAnonymous, email, s.cfg.AnonymousEmail),
		Message:    strings.TrimSpace(donor.Message),
		Anonymous:  donor.IsAnonymous,
		Status:     domain.DonationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *PaymentService) initialized(ctx context.Context, d *domain.Donation) {
	if err := s.producer.PublishDonationInitialized(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish donation.initialized event",
			slog.String("reference", d.Reference),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "payment initialized",
		slog.String("reference", d.Reference),
		slog.String("donation_id", d.ID),
		slog.String("payment_method", string(d.PaymentMethod)),
		slog.Int64("amount", d.Amount),
	)
}

// abandon closes a pending donation whose charge the provider refused. When
// the outcome is unknown the donation stays pending for later reconciliation.
func (s *PaymentService) abandon(ctx context.Context, d *domain.Donation, transient bool) {
	if transient {
		s.logger.WarnContext(ctx, "payment initialization outcome unknown, leaving donation pending",
			slog.String("reference", d.Reference))
		return
	}
	t, _ := domain.NextStatus(domain.DonationPending, domain.ProviderFailed)
	if _, err := s.donations.TransitionStatus(ctx, repository.StatusChange{
		Reference:  d.Reference,
		Transition: t,
		At:         s.now().UTC(),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark rejected donation as failed",
			slog.String("reference", d.Reference),
			slog.String("error", err.Error()),
		)
		return
	}
	d.Status = domain.DonationFailed
}

func summarize(d *domain.Donation) *DonationSummary {
	if d == nil {
		return nil
	}
	return &DonationSummary{ID: d.ID, Status: d.Status, EnvelopeID: d.EnvelopeID}
}

func webhookEventLabel(ev string) string {
	switch ev {
	case EventChargeSuccess, EventChargeFailed, EventChargePending:
		return ev
	}
	return "other"
}
