package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/WeddingDonations/internal/domain"
	pkgkafka "github.com/utafrali/WeddingDonations/pkg/kafka"
	"github.com/utafrali/WeddingDonations/pkg/logger"
)

type recordingPublisher struct {
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProducer_PublishDonationCompleted(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, testLogger())
	envelopeID := "env-1"
	d := &domain.Donation{
		ID: "don-1", Reference: "ref-1", EnvelopeID: &envelopeID, Amount: 10000, Currency: "XOF",
		Status: domain.DonationCompleted, PaymentMethod: domain.MethodWave, Channel: domain.ChannelMobileMoney,
	}

	ctx := logger.WithCorrelationID(context.Background(), "corr-9")
	require.NoError(t, p.PublishDonationCompleted(ctx, d, "webhook"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "wedding.donation.completed", pub.topics[0])
	ev := pub.events[0]
	assert.Equal(t, "ref-1", ev.AggregateID)
	assert.Equal(t, AggregateTypeDonation, ev.AggregateType)
	assert.Equal(t, "corr-9", ev.CorrelationID)

	var data DonationData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, "completed", data.Status)
	assert.Equal(t, "Wave", data.PaymentMethod)
	assert.Equal(t, "webhook", data.ReconciledBy)
	assert.Equal(t, int64(10000), data.Amount)
}

func TestProducer_PublishSessionsRevoked(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, testLogger())

	require.NoError(t, p.PublishSessionsRevoked(context.Background(), "adm-1", 3, "logout_all"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "wedding.admin.sessions_revoked", pub.topics[0])
	var data SessionsRevokedData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, int64(3), data.Revoked)
	assert.Equal(t, "logout_all", data.Reason)
}

func TestProducer_DisabledWithoutPublisher(t *testing.T) {
	p := NewProducer(nil, testLogger())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.PublishDonationInitialized(context.Background(), &domain.Donation{Reference: "ref-1"}))

	var nilProducer *Producer
	assert.False(t, nilProducer.Enabled())
	assert.NoError(t, nilProducer.PublishDonationFailed(context.Background(), &domain.Donation{}, "verify"))
}

func TestProducer_PublishError(t *testing.T) {
	p := NewProducer(&recordingPublisher{err: errors.New("broker down")}, testLogger())

	err := p.PublishDonationFailed(context.Background(), &domain.Donation{Reference: "ref-1"}, "verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wedding.donation.failed")
}
