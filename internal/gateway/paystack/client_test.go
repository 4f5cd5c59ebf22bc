package paystack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/WeddingDonations/internal/gateway"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, SecretKey: "sk_test_123", Timeout: 2 * time.Second}, newTestLogger())
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestInitializeCard_SendsBankChannelAndStringAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "5000", body["amount"])
		assert.Equal(t, []any{"bank"}, body["channels"])
		assert.Equal(t, "XOF", body["currency"])
		assert.Equal(t, "ref-card-1", body["reference"])
		assert.Equal(t, "https://wedding.test/donation?payment_status=callback", body["callback_url"])

		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{
			"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ref-card-1"}}`))
	})

	out, err := c.InitializeCard(context.Background(), gateway.CardRequest{
		Reference: "ref-card-1", Email: "guest@example.com", Amount: 5000, Currency: "XOF",
		CallbackURL: "https://wedding.test/donation?payment_status=callback",
	})
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "ref-card-1", out.Reference)
	assert.Equal(t, "https://checkout.paystack.com/abc", out.AuthorizationURL)
	assert.Equal(t, "abc", out.AccessCode)
}

func TestInitializeCard_RejectsBadInputWithoutCalling(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("gateway must not be called")
	})

	_, err := c.InitializeCard(context.Background(), gateway.CardRequest{Email: "a@b.c", Amount: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = c.InitializeCard(context.Background(), gateway.CardRequest{Amount: 100})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestInitializeMobileMoney_OrangeAwaitsOTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charge", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, float64(2500), body["amount"])
		assert.Equal(t, map[string]any{"phone": "0748889874", "provider": "orange"}, body["mobile_money"])

		_, _ = w.Write([]byte(`{"status":true,"message":"Charge attempted","data":{
			"reference":"ref-om-1","status":"send_otp","display_text":"Enter the OTP sent to your phone"}}`))
	})

	out, err := c.InitializeMobileMoney(context.Background(), gateway.MobileMoneyRequest{
		Amount: 2500, Email: "guest@example.com", Provider: "Orange", Phone: "0748889874", Currency: "XOF",
	})
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "ref-om-1", out.Reference)
	assert.Equal(t, "send_otp", out.ChargeStatus)
	assert.NotEmpty(t, out.DisplayText)
}

func TestInitializeMobileMoney_FriendlyErrorCodes(t *testing.T) {
	tests := []struct {
		code    string
		message string
	}{
		{"invalid_phone", "Le numéro de téléphone fourni n'est pas valide"},
		{"unprocessed_transaction", "Le service de paiement mobile money est temporairement indisponible"},
		{"something_else", "Charge attempted"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"status":false,"message":"Charge attempted","code":"` + tt.code + `"}`))
			})

			out, err := c.InitializeMobileMoney(context.Background(), gateway.MobileMoneyRequest{
				Amount: 100, Email: "a@b.c", Provider: "wave", Phone: "0700000000", Currency: "XOF",
			})
			require.NoError(t, err)
			assert.False(t, out.OK())
			assert.False(t, out.Transient)
			assert.Equal(t, tt.code, out.Code)
			assert.Equal(t, tt.message, out.Message)
			assert.ErrorIs(t, out.Err(), apperrors.ErrPaymentFailed)
		})
	}
}

func TestVerify_ParsesTransaction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/ref-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"id":4099260516,"reference":"ref-9","status":"success","amount":5000,"currency":"XOF",
			"channel":"mobile_money","gateway_response":"Approved","paid_at":"2025-06-14T10:04:05Z"}}`))
	})

	out, err := c.Verify(context.Background(), "ref-9")
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "success", out.TransactionStatus)
	assert.Equal(t, int64(5000), out.Amount)
	assert.Equal(t, "4099260516", out.TransactionID)
	require.NotNil(t, out.PaidAt)
	assert.Equal(t, 2025, out.PaidAt.Year())
}

func TestVerify_FailedTransactionIsAnAcceptedCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{
			"id":"TRX_88","reference":"ref-declined","status":"failed","amount":5000,"currency":"XOF"}}`))
	})

	out, err := c.Verify(context.Background(), "ref-declined")
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.NoError(t, out.Err())
	assert.Equal(t, "failed", out.TransactionStatus)
	assert.Equal(t, "TRX_88", out.TransactionID)
}

func TestVerify_UnknownReferenceIsNotTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	})

	out, err := c.Verify(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.False(t, out.Transient)
	assert.Equal(t, "Transaction reference not found", out.Message)
}

func TestVerify_ServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	out, err := c.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.True(t, out.Transient)
	assert.ErrorIs(t, out.Err(), apperrors.ErrServiceUnavail)
}

func TestVerify_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, SecretKey: "sk", Timeout: time.Second}, newTestLogger())
	out, err := c.Verify(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.True(t, out.Transient)
}

func TestSubmitOTP(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charge/submit_otp", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "123456", body["otp"])
		assert.Equal(t, "ref-om-1", body["reference"])
		_, _ = w.Write([]byte(`{"status":true,"message":"Charge attempted","data":{"reference":"ref-om-1","status":"success"}}`))
	})

	out, err := c.SubmitOTP(context.Background(), "123456", "ref-om-1")
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "success", out.ChargeStatus)

	_, err = c.SubmitOTP(context.Background(), "", "ref-om-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "074****74", maskPhone("0748889874"))
	assert.Equal(t, "****", maskPhone("123"))
}
