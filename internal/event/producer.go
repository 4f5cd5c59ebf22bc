package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/WeddingDonations/internal/domain"
	pkgkafka "github.com/utafrali/WeddingDonations/pkg/kafka"
	"github.com/utafrali/WeddingDonations/pkg/logger"
)

// Kafka topics for donation and admin session events.
var (
	TopicDonationInitialized  = pkgkafka.Topic("donation", "initialized")
	TopicDonationCompleted    = pkgkafka.Topic("donation", "completed")
	TopicDonationFailed       = pkgkafka.Topic("donation", "failed")
	TopicAdminSessionsRevoked = pkgkafka.Topic("admin", "sessions_revoked")
)

const (
	AggregateTypeDonation = "donation"
	AggregateTypeAdmin    = "admin"
	SourceDonationService = "wedding-donation-api"
)

// DonationData is the payload of every donation event.
type DonationData struct {
	ID            string  `json:"id"`
	Reference     string  `json:"reference"`
	EnvelopeID    *string `json:"envelope_id,omitempty"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	PaymentMethod string  `json:"payment_method"`
	Channel       string  `json:"channel"`
	Anonymous     bool    `json:"anonymous"`
	// ReconciledBy names the channel that applied the status change.
	ReconciledBy string `json:"reconciled_by,omitempty"`
}

// SessionsRevokedData is the payload of admin.sessions_revoked.
type SessionsRevokedData struct {
	AdminID   string    `json:"admin_id"`
	Revoked   int64     `json:"revoked"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Publisher is the part of *pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes domain events. A Producer built with a nil Publisher
// drops every event, which is how the service runs without Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// Enabled reports whether events are actually sent.
func (p *Producer) Enabled() bool {
	return p != nil && p.kafka != nil
}

// PublishDonationInitialized publishes donation.initialized.
func (p *Producer) PublishDonationInitialized(ctx context.Context, d *domain.Donation) error {
	return p.publishDonation(ctx, TopicDonationInitialized, d, "")
}

// PublishDonationCompleted publishes donation.completed.
func (p *Producer) PublishDonationCompleted(ctx context.Context, d *domain.Donation, channel string) error {
	return p.publishDonation(ctx, TopicDonationCompleted, d, channel)
}

// PublishDonationFailed publishes donation.failed.
func (p *Producer) PublishDonationFailed(ctx context.Context, d *domain.Donation, channel string) error {
	return p.publishDonation(ctx, TopicDonationFailed, d, channel)
}

// PublishSessionsRevoked publishes admin.sessions_revoked.
func (p *Producer) PublishSessionsRevoked(ctx context.Context, adminID string, revoked int64, reason string) error {
	data := SessionsRevokedData{
		AdminID:   adminID,
		Revoked:   revoked,
		Reason:    reason,
		RevokedAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicAdminSessionsRevoked, adminID, AggregateTypeAdmin, data)
}

func (p *Producer) publishDonation(ctx context.Context, topic string, d *domain.Donation, channel string) error {
	data := DonationData{
		ID:            d.ID,
		Reference:     d.Reference,
		EnvelopeID:    d.EnvelopeID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		Status:        string(d.Status),
		PaymentMethod: string(d.PaymentMethod),
		Channel:       d.Channel,
		Anonymous:     d.Anonymous,
		ReconciledBy:  channel,
	}
	return p.publish(ctx, topic, d.Reference, AggregateTypeDonation, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if !p.Enabled() {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceDonationService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
