// Package paystack implements gateway.PaymentGateway against the Paystack API.
package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/gateway"
	"github.com/utafrali/WeddingDonations/pkg/httpclient"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.paystack.co"

// Config configures the client.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// Traced adds an otelhttp transport.
	Traced bool
}

// Client is a Paystack API client guarded by a circuit breaker.
type Client struct {
	baseURL string
	header  http.Header
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

var _ gateway.PaymentGateway = (*Client)(nil)

// New builds a Client from cfg.
func New(cfg Config, logger *slog.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.Traced = cfg.Traced

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		baseURL: base,
		header:  http.Header{"Authorization": {"Bearer " + cfg.SecretKey}},
		http: httpclient.NewCircuitBreakerClient(
			httpclient.New(httpCfg),
			httpclient.DefaultCircuitBreakerConfig("paystack"),
			logger,
		),
		logger: logger,
	}
}

// Friendly messages for provider error codes the donor can act on.
var codeMessages = map[string]string{
	"unprocessed_transaction": "Le service de paiement mobile money est temporairement indisponible",
	"invalid_phone":           "Le numéro de téléphone fourni n'est pas valide",
}

// envelope is the wrapper around every Paystack response body.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCard implements gateway.PaymentGateway. The checkout is limited
// to the bank channel and the amount is sent as given, as a string.
func (c *Client) InitializeCard(ctx context.Context, req gateway.CardRequest) (*gateway.CardInit, error) {
	if err := gateway.ValidateCard(req); err != nil {
		return nil, err
	}

	body := map[string]any{
		"email":    req.Email,
		"amount":   strconv.FormatInt(req.Amount, 10),
		"currency": req.Currency,
		"channels": []string{"bank"},
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	out := &gateway.CardInit{}
	out.Result = c.call(ctx, http.MethodPost, "/transaction/initialize", body, &struct {
		AuthorizationURL *string `json:"authorization_url"`
		AccessCode       *string `json:"access_code"`
		Reference        *string `json:"reference"`
	}{&out.AuthorizationURL, &out.AccessCode, &out.Reference})

	if out.Status {
		c.logger.InfoContext(ctx, "card transaction initialized", slog.String("reference", out.Reference))
	}
	return out, nil
}

// InitializeMobileMoney implements gateway.PaymentGateway.
func (c *Client) InitializeMobileMoney(ctx context.Context, req gateway.MobileMoneyRequest) (*gateway.MobileMoneyInit, error) {
	if err := gateway.ValidateMobileMoney(req); err != nil {
		return nil, err
	}

	provider := strings.ToLower(req.Provider)
	body := map[string]any{
		"amount":   req.Amount,
		"email":    req.Email,
		"currency": req.Currency,
		"mobile_money": map[string]string{
			"phone":    req.Phone,
			"provider": provider,
		},
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	out := &gateway.MobileMoneyInit{}
	out.Result = c.call(ctx, http.MethodPost, "/charge", body, &struct {
		Reference   *string `json:"reference"`
		Status      *string `json:"status"`
		DisplayText *string `json:"display_text"`
	}{&out.Reference, &out.ChargeStatus, &out.DisplayText})

	if out.OK() {
		c.logger.InfoContext(ctx, "mobile money charge initialized",
			slog.String("reference", out.Reference),
			slog.String("provider", provider),
			slog.String("phone", maskPhone(req.Phone)),
			slog.String("charge_status", out.ChargeStatus),
			slog.Bool("awaiting_otp", domain.ParseProviderStatus(out.ChargeStatus) == domain.ProviderSendOTP),
		)
	}
	return out, nil
}

// SubmitOTP implements gateway.PaymentGateway.
func (c *Client) SubmitOTP(ctx context.Context, otp, reference string) (*gateway.OTPResult, error) {
	if strings.TrimSpace(otp) == "" || strings.TrimSpace(reference) == "" {
		return nil, gateway.ErrOTPInput
	}

	out := &gateway.OTPResult{}
	out.Result = c.call(ctx, http.MethodPost, "/charge/submit_otp",
		map[string]string{"otp": otp, "reference": reference},
		&struct {
			Reference   *string `json:"reference"`
			Status      *string `json:"status"`
			DisplayText *string `json:"display_text"`
		}{&out.Reference, &out.ChargeStatus, &out.DisplayText})

	if out.Reference == "" {
		out.Reference = reference
	}
	return out, nil
}

// Verify implements gateway.PaymentGateway.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, gateway.ErrReferenceRequired
	}

	var data struct {
		ID              gateway.TransactionID `json:"id"`
		Reference       string                `json:"reference"`
		Status          string                `json:"status"`
		Amount          int64                 `json:"amount"`
		Currency        string                `json:"currency"`
		Channel         string                `json:"channel"`
		GatewayResponse string                `json:"gateway_response"`
		PaidAt          string                `json:"paid_at"`
	}

	out := &gateway.Verification{}
	out.Result = c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data)
	if !out.OK() {
		out.Reference = reference
		return out, nil
	}

	out.Reference = data.Reference
	if out.Reference == "" {
		out.Reference = reference
	}
	out.TransactionStatus, out.Amount, out.Currency = data.Status, data.Amount, data.Currency
	out.TransactionID = string(data.ID)
	out.Channel, out.GatewayResponse = data.Channel, data.GatewayResponse
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		out.PaidAt = &t
	}

	c.logger.DebugContext(ctx, "payment verified",
		slog.String("reference", out.Reference),
		slog.String("provider_status", out.TransactionStatus),
	)
	return out, nil
}

// call sends one request and decodes the envelope's data into dst. Failures
// of any kind come back as a Result with Status false.
func (c *Client) call(ctx context.Context, method, path string, body any, dst any) gateway.Result {
	var (
		resp *http.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = c.http.Get(ctx, c.baseURL+path, c.header)
	default:
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return gateway.Result{Message: fmt.Sprintf("encode request: %v", mErr)}
		}
		resp, err = c.http.PostJSON(ctx, c.baseURL+path, c.header, payload)
	}
	if err != nil {
		return c.failure(ctx, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.failure(ctx, path, httpclient.ParseResponseError(resp, "paystack"))
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return c.failure(ctx, path, fmt.Errorf("decode paystack response: %w", err))
	}

	res := gateway.Result{Status: env.Status, Message: env.Message, Code: env.Code, Data: env.Data}
	if !env.Status {
		res.Message = friendly(env.Code, env.Message)
		return res
	}
	if len(env.Data) > 0 && dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return c.failure(ctx, path, fmt.Errorf("decode paystack data: %w", err))
		}
	}
	return res
}

func (c *Client) failure(ctx context.Context, path string, err error) gateway.Result {
	res := gateway.Result{Transient: true, Message: "Le service de paiement est temporairement indisponible"}

	var respErr *httpclient.ResponseError
	switch {
	case errors.As(err, &respErr):
		res.Code = respErr.Code
		res.Data = rawJSON(respErr.Body)
		if respErr.ClientError() {
			res.Transient = false
			res.Message = friendly(respErr.Code, respErr.Message)
		}
	case errors.Is(err, httpclient.ErrCircuitOpen):
		res.Code = "circuit_open"
	}

	level := slog.LevelWarn
	if res.Transient {
		level = slog.LevelError
	}
	c.logger.Log(ctx, level, "paystack call failed",
		slog.String("path", path),
		slog.Bool("transient", res.Transient),
		slog.String("code", res.Code),
		slog.String("error", err.Error()),
	)
	return res
}

func friendly(code, message string) string {
	if m, ok := codeMessages[code]; ok {
		return m
	}
	if message == "" {
		return "Le paiement a échoué"
	}
	return message
}

func rawJSON(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 5 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-2:]
}
