package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "wedding.donations.completed", Topic("donations", "completed"))
}

func TestNewEvent(t *testing.T) {
	type completed struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	}

	event, err := NewEvent("donation.completed", "ref-1", "donation", "wedding-donations", completed{"ref-1", 5000})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, event.Version)

	var got completed
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, completed{"ref-1", 5000}, got)
}

func TestNewEvent_UnmarshalablePayload(t *testing.T) {
	_, err := NewEvent("x", "id", "t", "s", make(chan int))
	assert.Error(t, err)
}

func TestPublish_KeysByAggregateAndSetsHeaders(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	event, err := NewEvent("donation.completed", "ref-9", "donation", "wedding-donations", map[string]any{"amount": 1})
	require.NoError(t, err)
	event.WithCorrelationID("corr-1")

	require.NoError(t, p.Publish(context.Background(), Topic("donations", "completed"), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "wedding.donations.completed", msg.Topic)
	assert.Equal(t, "ref-9", string(msg.Key))
	assert.Equal(t, "donation.completed", header(msg, "event_type"))
	assert.Equal(t, "corr-1", header(msg, "correlation_id"))
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := &recordingWriter{}
	p := &Producer{writer: w, logger: testLogger()}
	event, _ := NewEvent("donation.failed", "ref-2", "donation", "wedding-donations", struct{}{})
	require.NoError(t, p.Publish(ctx, "t", event))

	assert.Contains(t, header(w.msgs[0], "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestPublish_WriterError(t *testing.T) {
	p := &Producer{writer: &recordingWriter{err: errors.New("leader not available")}, logger: testLogger()}
	event, _ := NewEvent("donation.failed", "ref-3", "donation", "wedding-donations", struct{}{})

	err := p.Publish(context.Background(), "t", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "a", Value: []byte("1")}}
	c := headerCarrier{headers: &headers}

	c.Set("a", "2")
	c.Set("b", "3")

	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, "3", c.Get("b"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestPingBrokers_NoneConfigured(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}
