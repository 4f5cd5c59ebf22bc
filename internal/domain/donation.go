package domain

import (
	"strings"
	"time"
)

// DonationStatus is the ledger state of a payment attempt.
type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationFailed    DonationStatus = "failed"
	DonationCancelled DonationStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s DonationStatus) Valid() bool {
	switch s {
	case DonationPending, DonationCompleted, DonationFailed, DonationCancelled:
		return true
	}
	return false
}

// Payment channels.
const (
	ChannelCard        = "card"
	ChannelMobileMoney = "mobile_money"
)

// Field limits.
const (
	MaxDonorLength   = 200
	MaxMessageLength = 1000
	AnonymousDonor   = "Anonymous Donor"
	DefaultDonorName = "Donor"
)

// Donation is one payment attempt. Reference is the only key the
// reconciliation channels share.
type Donation struct {
	ID            string         `json:"id"`
	Reference     string         `json:"reference"`
	EnvelopeID    *string        `json:"envelope_id,omitempty"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	Donor         string         `json:"donor"`
	Email         string         `json:"email,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Message       string         `json:"message,omitempty"`
	Anonymous     bool           `json:"anonymous"`
	Status        DonationStatus `json:"status"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	Channel       string         `json:"channel"`
	Provider      string         `json:"provider,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	IPAddress     string         `json:"-"`
	UserAgent     string         `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// DonorName returns the name shown for a donor.
func DonorName(anonymous bool, firstName, lastName string) string {
	if anonymous {
		return AnonymousDonor
	}
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name == "" {
		return DefaultDonorName
	}
	if len([]rune(name)) > MaxDonorLength {
		name = string([]rune(name)[:MaxDonorLength])
	}
	return name
}

// DonorEmail returns the email sent to the gateway. Anonymous donors who gave
// no address use fallback; the gateway requires an email on every charge.
func DonorEmail(anonymous bool, email, fallback string) string {
	email = strings.TrimSpace(email)
	if email == "" && anonymous {
		return fallback
	}
	return email
}
