package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
)

const (
	Issuer          = "wedding-donation-api"
	Audience        = "wedding-donation-admin"
	TokenTypeAccess = "access"
)

// Claims represents the JWT claims for an administrator access token.
type Claims struct {
	AdminID string `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Type    string `json:"type"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates access tokens. Validation is stateless.
type JWTManager struct {
	secret       []byte
	accessExpiry time.Duration
	now          func() time.Time
}

// NewJWTManager creates a new JWT manager with the given secret and access token lifetime.
func NewJWTManager(secret string, accessExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:       []byte(secret),
		accessExpiry: accessExpiry,
		now:          time.Now,
	}
}

// AccessExpiry returns the configured access token lifetime.
func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// GenerateAccessToken creates a signed access token for the administrator.
func (m *JWTManager) GenerateAccessToken(adminID, email, role string) (string, error) {
	now := m.now().UTC()
	claims := &Claims{
		AdminID: adminID,
		Email:   email,
		Role:    role,
		Type:    TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken checks signature, issuer, audience, expiry and type.
// Expired tokens yield TOKEN_EXPIRED; anything else wrong yields TOKEN_INVALID.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenExpired, "access token expired")
		}
		return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenInvalid, "invalid access token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != TokenTypeAccess || claims.AdminID == "" {
		return nil, apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenInvalid, "invalid access token")
	}

	return claims, nil
}
