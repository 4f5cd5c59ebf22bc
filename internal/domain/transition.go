package domain

import "strings"

// ProviderStatus is a transaction status as reported by the gateway.
type ProviderStatus string

const (
	ProviderSuccess   ProviderStatus = "success"
	ProviderFailed    ProviderStatus = "failed"
	ProviderAbandoned ProviderStatus = "abandoned"
	ProviderReversed  ProviderStatus = "reversed"
	ProviderPending   ProviderStatus = "pending"
	ProviderSendOTP   ProviderStatus = "send_otp"
)

// ParseProviderStatus normalizes a raw gateway status string.
func ParseProviderStatus(s string) ProviderStatus {
	return ProviderStatus(strings.ToLower(strings.TrimSpace(s)))
}

// EnvelopeEffect is the usage counter change that accompanies a transition.
type EnvelopeEffect int

const (
	EnvelopeNone EnvelopeEffect = iota
	EnvelopeIncrement
	EnvelopeDecrement
)

func (e EnvelopeEffect) String() string {
	switch e {
	case EnvelopeIncrement:
		return "increment"
	case EnvelopeDecrement:
		return "decrement"
	default:
		return "none"
	}
}

// Transition is one row of the reconciliation table.
type Transition struct {
	From   DonationStatus
	To     DonationStatus
	Effect EnvelopeEffect
}

// transitions is keyed by provider status, then by the donation's current
// status. Pairs that are absent leave the donation unchanged.
var transitions = map[ProviderStatus]map[DonationStatus]Transition{
	ProviderSuccess: {
		DonationPending: {DonationPending, DonationCompleted, EnvelopeIncrement},
		DonationFailed:  {DonationFailed, DonationCompleted, EnvelopeIncrement},
	},
	ProviderFailed: {
		DonationPending: {DonationPending, DonationFailed, EnvelopeNone},
	},
	ProviderAbandoned: {
		DonationPending: {DonationPending, DonationFailed, EnvelopeNone},
	},
	ProviderReversed: {
		DonationPending:   {DonationPending, DonationFailed, EnvelopeNone},
		DonationCompleted: {DonationCompleted, DonationFailed, EnvelopeDecrement},
	},
}

// NextStatus returns the transition to apply for a donation in current when
// the gateway reports provider. ok is false when nothing should change.
//
// A completed donation only leaves completed on an explicit reversal, and a
// cancelled donation is never touched.
func NextStatus(current DonationStatus, provider ProviderStatus) (t Transition, ok bool) {
	row, found := transitions[provider]
	if !found {
		return Transition{}, false
	}
	t, ok = row[current]
	return t, ok
}

// IsTerminal reports whether the gateway considers the status final.
func (p ProviderStatus) IsTerminal() bool {
	_, ok := transitions[p]
	return ok
}
