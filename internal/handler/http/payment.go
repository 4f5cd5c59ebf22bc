package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/service"
	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
	"github.com/utafrali/WeddingDonations/pkg/middleware"
	"github.com/utafrali/WeddingDonations/pkg/pagination"
)

// PaymentService is the part of service.PaymentService the HTTP layer uses.
type PaymentService interface {
	InitializeCard(ctx context.Context, in service.InitializeCardInput) (*service.CardPayment, error)
	InitializeMobileMoney(ctx context.Context, in service.InitializeMobileMoneyInput) (*service.MobileMoneyPayment, error)
	SubmitOTP(ctx context.Context, in service.SubmitOTPInput) (*service.PaymentStatus, error)
	Verify(ctx context.Context, reference string) (*service.PaymentStatus, error)
	HandleWebhook(ctx context.Context, ev service.WebhookEvent) error
	HandleCallback(ctx context.Context, reference, trxref string) string
	ListDonations(ctx context.Context, p pagination.Params) (pagination.Page[domain.Donation], error)
}

// PaymentHandler handles the public payment endpoints used by the donation
// page and by the payment provider.
type PaymentHandler struct {
	service PaymentService
	logger  *slog.Logger
}

// NewPaymentHandler creates a new payment HTTP handler.
func NewPaymentHandler(svc PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: svc, logger: logger}
}

// InitializeCard handles POST /api/payments/bank/initialize
func (h *PaymentHandler) InitializeCard(w http.ResponseWriter, r *http.Request) {
	var req service.InitializeCardInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	req.IPAddress = middleware.ClientIP(r)
	req.UserAgent = r.UserAgent()

	payment, err := h.service.InitializeCard(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "payment initialized", payment)
}

// InitializeMobileMoney handles POST /api/payments/mobile-money/initialize
func (h *PaymentHandler) InitializeMobileMoney(w http.ResponseWriter, r *http.Request) {
	var req service.InitializeMobileMoneyInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	req.IPAddress = middleware.ClientIP(r)
	req.UserAgent = r.UserAgent()

	payment, err := h.service.InitializeMobileMoney(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "mobile money payment initialized", payment)
}

// SubmitOTP handles POST /api/payments/mobile-money/submit-otp
func (h *PaymentHandler) SubmitOTP(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitOTPInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	status, err := h.service.SubmitOTP(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "", status)
}

// Verify handles GET /api/payments/verify/{reference}
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Verify(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, "", status)
}

// Webhook handles POST /api/payments/webhook. The signature middleware has
// already authenticated the exact body bytes.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var ev service.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("malformed webhook payload"), h.logger)
		return
	}

	// A non-2xx answer makes the provider redeliver, which is what we want
	// when the ledger could not be updated.
	if err := h.service.HandleWebhook(r.Context(), ev); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Callback handles GET /api/payments/callback, the browser return from the
// hosted checkout. It always redirects to the frontend donation page.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := h.service.HandleCallback(r.Context(), q.Get("reference"), q.Get("trxref"))
	http.Redirect(w, r, target, http.StatusFound)
}
