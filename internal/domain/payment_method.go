package domain

import "strings"

// PaymentMethod is the rail label stored on a donation.
type PaymentMethod string

const (
	MethodWave           PaymentMethod = "Wave"
	MethodOrangeMoney    PaymentMethod = "OM"
	MethodMTNMomo        PaymentMethod = "MTN Momo"
	MethodMoov           PaymentMethod = "Moov"
	MethodVisaMastercard PaymentMethod = "Visa Mastercard"
)

// Mobile money provider codes accepted by the gateway.
const (
	ProviderWave   = "wave"
	ProviderOrange = "orange"
	ProviderMTN    = "mtn"
)

var providerMethods = map[string]PaymentMethod{
	ProviderWave:   MethodWave,
	ProviderOrange: MethodOrangeMoney,
	ProviderMTN:    MethodMTNMomo,
}

// NormalizeProvider lowercases and trims a provider code and reports whether
// it is on the allow-list. Moov is a known payment method but the gateway does
// not accept it as a mobile money provider.
func NormalizeProvider(provider string) (string, bool) {
	p := strings.ToLower(strings.TrimSpace(provider))
	_, ok := providerMethods[p]
	return p, ok
}

// SupportedProviders lists accepted provider codes in display order.
func SupportedProviders() []string {
	return []string{ProviderWave, ProviderOrange, ProviderMTN}
}

// MethodForProvider maps a normalized provider code to its payment method.
func MethodForProvider(provider string) (PaymentMethod, bool) {
	m, ok := providerMethods[provider]
	return m, ok
}

// RequiresOTP reports whether charges through provider need an OTP step.
func RequiresOTP(provider string) bool {
	return provider == ProviderOrange
}
