package middleware

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
)

// SignatureConfig describes an HMAC signature scheme over the raw request body.
type SignatureConfig struct {
	// Header holds the hex-encoded digest, e.g. "x-paystack-signature".
	Header string
	// Secret is the shared key. An empty secret rejects every request.
	Secret string
	// Hash constructs the digest function. Defaults to SHA-512.
	Hash func() hash.Hash
}

// ComputeSignature returns the lowercase hex HMAC of body under cfg.
func (cfg SignatureConfig) ComputeSignature(body []byte) string {
	h := cfg.Hash
	if h == nil {
		h = sha512.New
	}
	mac := hmac.New(h, []byte(cfg.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid reports whether signature matches body, in constant time.
func (cfg SignatureConfig) Valid(body []byte, signature string) bool {
	if cfg.Secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(cfg.ComputeSignature(body))
	return hmac.Equal(got, want)
}

// VerifySignature rejects requests whose signature header does not match the
// HMAC of the exact body bytes. It must run after PreserveRawBody.
func VerifySignature(cfg SignatureConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(reason string) {
				logger.WarnContext(r.Context(), "webhook signature rejected",
					slog.String("reason", reason),
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ClientIP(r)),
				)
				httputil.WriteError(w, r, apperrors.TokenError(http.StatusUnauthorized,
					apperrors.CodeInvalidSignature, "invalid signature"), logger)
			}

			if cfg.Secret == "" {
				reject("secret not configured")
				return
			}

			signature := r.Header.Get(cfg.Header)
			if signature == "" {
				reject("missing signature header")
				return
			}

			body, ok := RawBodyFromContext(r.Context())
			if !ok {
				reject("raw body unavailable")
				return
			}

			if !cfg.Valid(body, signature) {
				reject("signature mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
