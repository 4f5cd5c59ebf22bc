package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus_Table(t *testing.T) {
	tests := []struct {
		current  DonationStatus
		provider ProviderStatus
		ok       bool
		to       DonationStatus
		effect   EnvelopeEffect
	}{
		{DonationPending, ProviderSuccess, true, DonationCompleted, EnvelopeIncrement},
		{DonationPending, ProviderFailed, true, DonationFailed, EnvelopeNone},
		{DonationPending, ProviderAbandoned, true, DonationFailed, EnvelopeNone},
		{DonationPending, ProviderReversed, true, DonationFailed, EnvelopeNone},
		{DonationPending, ProviderPending, false, "", EnvelopeNone},
		{DonationPending, ProviderSendOTP, false, "", EnvelopeNone},
		{DonationPending, "ongoing", false, "", EnvelopeNone},

		{DonationCompleted, ProviderSuccess, false, "", EnvelopeNone},
		{DonationCompleted, ProviderFailed, false, "", EnvelopeNone},
		{DonationCompleted, ProviderAbandoned, false, "", EnvelopeNone},
		{DonationCompleted, ProviderReversed, true, DonationFailed, EnvelopeDecrement},

		{DonationFailed, ProviderSuccess, true, DonationCompleted, EnvelopeIncrement},
		{DonationFailed, ProviderFailed, false, "", EnvelopeNone},
		{DonationFailed, ProviderReversed, false, "", EnvelopeNone},

		{DonationCancelled, ProviderSuccess, false, "", EnvelopeNone},
		{DonationCancelled, ProviderFailed, false, "", EnvelopeNone},
		{DonationCancelled, ProviderReversed, false, "", EnvelopeNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"/"+string(tt.provider), func(t *testing.T) {
			got, ok := NextStatus(tt.current, tt.provider)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.current, got.From)
			assert.Equal(t, tt.to, got.To)
			assert.Equal(t, tt.effect, got.Effect)
		})
	}
}

// Applying the same provider status twice never changes anything the second
// time, which is what makes redelivery through another channel harmless.
func TestNextStatus_SecondApplicationIsNoop(t *testing.T) {
	statuses := []DonationStatus{DonationPending, DonationCompleted, DonationFailed, DonationCancelled}
	providers := []ProviderStatus{ProviderSuccess, ProviderFailed, ProviderAbandoned, ProviderReversed, ProviderPending}

	for _, s := range statuses {
		for _, p := range providers {
			first, ok := NextStatus(s, p)
			if !ok {
				continue
			}
			_, again := NextStatus(first.To, p)
			assert.False(t, again, "%s then %s applied twice", s, p)
		}
	}
}

func TestParseProviderStatus(t *testing.T) {
	assert.Equal(t, ProviderSuccess, ParseProviderStatus(" SUCCESS "))
	assert.True(t, ProviderAbandoned.IsTerminal())
	assert.False(t, ProviderSendOTP.IsTerminal())
}

func TestNormalizeProvider(t *testing.T) {
	for _, in := range []string{"wave", "Orange", " MTN "} {
		_, ok := NormalizeProvider(in)
		assert.True(t, ok, in)
	}
	for _, in := range []string{"moov", "", "visa"} {
		_, ok := NormalizeProvider(in)
		assert.False(t, ok, in)
	}

	m, ok := MethodForProvider(ProviderOrange)
	assert.True(t, ok)
	assert.Equal(t, MethodOrangeMoney, m)
	assert.True(t, RequiresOTP(ProviderOrange))
	assert.False(t, RequiresOTP(ProviderWave))
}

func TestDonorName(t *testing.T) {
	assert.Equal(t, AnonymousDonor, DonorName(true, "Awa", "Diop"))
	assert.Equal(t, "Awa Diop", DonorName(false, " Awa ", "Diop "))
	assert.Equal(t, "Awa", DonorName(false, "Awa", ""))
	assert.Equal(t, DefaultDonorName, DonorName(false, "", " "))
	assert.Len(t, []rune(DonorName(false, strings.Repeat("é", 300), "")), MaxDonorLength)
}

func TestDonorEmail(t *testing.T) {
	assert.Equal(t, "anon@wedding.test", DonorEmail(true, "", "anon@wedding.test"))
	assert.Equal(t, "guest@example.com", DonorEmail(true, "guest@example.com", "anon@wedding.test"))
	assert.Equal(t, "", DonorEmail(false, "", "anon@wedding.test"))
}

func TestEnvelope_IsAvailable(t *testing.T) {
	now := time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	two := 2

	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{"active, open", Envelope{IsActive: true}, true},
		{"inactive", Envelope{IsActive: false}, false},
		{"expired", Envelope{IsActive: true, ExpiresAt: &past}, false},
		{"not yet expired", Envelope{IsActive: true, ExpiresAt: &future}, true},
		{"at max usage", Envelope{IsActive: true, MaxUsage: &two, UsageCount: 2}, false},
		{"under max usage", Envelope{IsActive: true, MaxUsage: &two, UsageCount: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.env.IsAvailable(now))
		})
	}
}

func TestRefreshToken_Usability(t *testing.T) {
	now := time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)
	rt := RefreshToken{ExpiresAt: now.Add(2 * time.Hour)}

	assert.True(t, rt.IsUsable(now))
	assert.Equal(t, 2*time.Hour, rt.TimeRemaining(now))

	rt.IsRevoked = true
	assert.False(t, rt.IsUsable(now))

	rt.IsRevoked = false
	assert.False(t, rt.IsUsable(now.Add(3*time.Hour)))
	assert.Equal(t, time.Duration(0), rt.TimeRemaining(now.Add(3*time.Hour)))
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleAdmin))
	assert.True(t, IsValidRole(RoleSuperAdmin))
	assert.False(t, IsValidRole("customer"))
}
