// Package gateway defines the payment provider contract used by the
// payment and reconciliation services.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

// TransactionID is a provider transaction identifier. Paystack sends it as
// a JSON number, but a quoted or non-numeric value decodes as well.
type TransactionID string

// UnmarshalJSON accepts a number, a string or null.
func (id *TransactionID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = TransactionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = TransactionID(n.String())
	return nil
}

// Result is the normalized outcome shared by every gateway call. Transport
// failures, provider rejections and successes all come back as a Result, so
// callers branch on Status and Transient instead of on error types.
type Result struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	// Code is the provider's error code, e.g. "invalid_phone".
	Code string `json:"code,omitempty"`
	// Transient marks failures where the provider's answer is unknown:
	// timeouts, connection errors, 5xx and an open circuit breaker.
	Transient bool `json:"-"`
}

// OK reports whether the provider accepted the call.
func (r Result) OK() bool { return r.Status }

// Err converts a failed Result into an AppError. It returns nil on success.
func (r Result) Err() error {
	if r.Status {
		return nil
	}
	if r.Transient {
		return apperrors.ServiceUnavailable(r.Message, nil)
	}
	return apperrors.PaymentFailed(r.Message)
}

// CardRequest initializes a hosted card/bank checkout. Reference, when set,
// is used as the transaction reference instead of a provider-generated one.
type CardRequest struct {
	Reference   string
	Email       string
	Amount      int64
	Currency    string
	CallbackURL string
}

// CardInit is the provider's answer to CardRequest.
type CardInit struct {
	Result
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// MobileMoneyRequest starts a mobile money charge.
type MobileMoneyRequest struct {
	Reference   string
	Amount      int64
	Email       string
	Provider    string
	Phone       string
	Currency    string
	CallbackURL string
}

// MobileMoneyInit is the provider's answer to MobileMoneyRequest.
// ChargeStatus is not final: "send_otp" and "pay_offline" both mean the
// donor still has to act.
type MobileMoneyInit struct {
	Result
	Reference    string `json:"reference"`
	ChargeStatus string `json:"charge_status"`
	DisplayText  string `json:"display_text,omitempty"`
}

// OTPResult is the answer to an OTP submission.
type OTPResult struct {
	Result
	Reference    string `json:"reference"`
	ChargeStatus string `json:"charge_status"`
	DisplayText  string `json:"display_text,omitempty"`
}

// Verification is the provider's current view of a transaction.
type Verification struct {
	Result
	Reference         string     `json:"reference"`
	TransactionStatus string     `json:"transaction_status"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	TransactionID     string     `json:"transaction_id"`
	Channel           string     `json:"channel"`
	GatewayResponse   string     `json:"gateway_response"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}

// PaymentGateway is the external payment provider.
//
// The returned error is reserved for requests rejected before any call is
// made (missing fields, non-positive amounts). Everything the provider or
// the network does is reported through the embedded Result.
type PaymentGateway interface {
	InitializeCard(ctx context.Context, req CardRequest) (*CardInit, error)
	InitializeMobileMoney(ctx context.Context, req MobileMoneyRequest) (*MobileMoneyInit, error)
	SubmitOTP(ctx context.Context, otp, reference string) (*OTPResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// ValidateCard checks a card request before it reaches a provider.
func ValidateCard(req CardRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return apperrors.InvalidInput("email is required")
	}
	if req.Amount <= 0 {
		return apperrors.InvalidInput("amount must be greater than zero")
	}
	return nil
}

// ValidateMobileMoney checks a mobile money request before it reaches a provider.
func ValidateMobileMoney(req MobileMoneyRequest) error {
	if err := ValidateCard(CardRequest{Email: req.Email, Amount: req.Amount}); err != nil {
		return err
	}
	if strings.TrimSpace(req.Phone) == "" {
		return apperrors.InvalidInput("phone is required")
	}
	if strings.TrimSpace(req.Provider) == "" {
		return apperrors.InvalidInput("provider is required")
	}
	return nil
}

// Request errors returned before any provider call.
var (
	ErrOTPInput          = apperrors.InvalidInput("otp and reference are required")
	ErrReferenceRequired = apperrors.InvalidInput("reference is required")
)
