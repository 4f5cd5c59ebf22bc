// Package fake provides an in-memory PaymentGateway for tests and local runs.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/gateway"
)

// ValidOTP is the only OTP the fake accepts.
const ValidOTP = "123456"

type transaction struct {
	amount   int64
	currency string
	provider string
	status   string
}

// Gateway is a scriptable gateway. Charges start "pending" ("send_otp" for
// Orange); tests move them with SetStatus.
type Gateway struct {
	mu     sync.Mutex
	txs    map[string]*transaction
	seq    int
	down   bool
	calls  map[string]int
	prefix string
}

var _ gateway.PaymentGateway = (*Gateway)(nil)

// New returns an empty fake.
func New() *Gateway {
	return &Gateway{txs: make(map[string]*transaction), calls: make(map[string]int), prefix: "fake"}
}

// SetStatus sets the provider status of reference, creating it if needed.
func (g *Gateway) SetStatus(reference, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.txs[reference]
	if !ok {
		tx = &transaction{currency: "XOF"}
		g.txs[reference] = tx
	}
	tx.status = status
}

// SetDown makes every call fail as if the provider were unreachable.
func (g *Gateway) SetDown(down bool) {
	g.mu.Lock()
	g.down = down
	g.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) begin(op string) (gateway.Result, bool) {
	g.calls[op]++
	if g.down {
		return gateway.Result{Transient: true, Message: "provider unreachable"}, false
	}
	return gateway.Result{Status: true, Message: op + " ok"}, true
}

func (g *Gateway) newReference(requested string) string {
	g.seq++
	if requested != "" {
		return requested
	}
	return fmt.Sprintf("%s-%06d", g.prefix, g.seq)
}

// InitializeCard implements gateway.PaymentGateway.
func (g *Gateway) InitializeCard(_ context.Context, req gateway.CardRequest) (*gateway.CardInit, error) {
	if err := gateway.ValidateCard(req); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.begin("initialize_card")
	out := &gateway.CardInit{Result: res}
	if !ok {
		return out, nil
	}

	ref := g.newReference(req.Reference)
	g.txs[ref] = &transaction{amount: req.Amount, currency: req.Currency, status: string(domain.ProviderPending)}
	out.Reference = ref
	out.AccessCode = "ac_" + ref
	out.AuthorizationURL = "https://checkout.fake.local/" + out.AccessCode
	return out, nil
}

// InitializeMobileMoney implements gateway.PaymentGateway.
func (g *Gateway) InitializeMobileMoney(_ context.Context, req gateway.MobileMoneyRequest) (*gateway.MobileMoneyInit, error) {
	if err := gateway.ValidateMobileMoney(req); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.begin("initialize_mobile_money")
	out := &gateway.MobileMoneyInit{Result: res}
	if !ok {
		return out, nil
	}

	provider := strings.ToLower(req.Provider)
	status := string(domain.ProviderPending)
	if domain.RequiresOTP(provider) {
		status = string(domain.ProviderSendOTP)
		out.DisplayText = "Enter the OTP sent to " + req.Phone
	}

	ref := g.newReference(req.Reference)
	g.txs[ref] = &transaction{amount: req.Amount, currency: req.Currency, provider: provider, status: status}
	out.Reference, out.ChargeStatus = ref, status
	return out, nil
}

// SubmitOTP implements gateway.PaymentGateway. ValidOTP completes the
// charge; any other value fails it.
func (g *Gateway) SubmitOTP(_ context.Context, otp, reference string) (*gateway.OTPResult, error) {
	if otp == "" || reference == "" {
		return nil, gateway.ErrOTPInput
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.begin("submit_otp")
	out := &gateway.OTPResult{Result: res, Reference: reference}
	if !ok {
		return out, nil
	}

	tx, found := g.txs[reference]
	if !found || tx.status != string(domain.ProviderSendOTP) {
		out.ChargeStatus = ""
		out.Result = gateway.Result{Message: "Charge not awaiting OTP", Code: "invalid_transaction"}
		return out, nil
	}
	if otp == ValidOTP {
		tx.status = string(domain.ProviderSuccess)
	} else {
		tx.status = string(domain.ProviderFailed)
	}
	out.ChargeStatus = tx.status
	return out, nil
}

// Verify implements gateway.PaymentGateway.
func (g *Gateway) Verify(_ context.Context, reference string) (*gateway.Verification, error) {
	if reference == "" {
		return nil, gateway.ErrReferenceRequired
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.begin("verify")
	out := &gateway.Verification{Result: res, Reference: reference}
	if !ok {
		return out, nil
	}

	tx, found := g.txs[reference]
	if !found {
		out.Result = gateway.Result{Message: "Transaction reference not found"}
		return out, nil
	}
	out.TransactionStatus, out.Amount, out.Currency = tx.status, tx.amount, tx.currency
	out.TransactionID = "tx_" + reference
	return out, nil
}
