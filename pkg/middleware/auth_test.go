package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/WeddingDonations/pkg/errors"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
)

func staticAuthenticator(p *Principal, err error) Authenticator {
	return func(context.Context, string) (*Principal, error) {
		return p, err
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h := Auth(staticAuthenticator(nil, nil))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeTokenMissing, errorCode(t, rec))
}

func TestAuth_PropagatesAuthenticatorCode(t *testing.T) {
	authErr := apperrors.TokenError(http.StatusUnauthorized, apperrors.CodeTokenExpired, "access token expired")
	h := Auth(staticAuthenticator(nil, authErr))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apperrors.CodeTokenExpired, errorCode(t, rec))
}

func TestAuth_StoresPrincipal(t *testing.T) {
	p := &Principal{AdminID: "adm-1", Email: "admin@wedding.test", Role: "super_admin"}

	var gotID, gotRole, gotEmail string
	h := Auth(staticAuthenticator(p, nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = AdminIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotEmail = EmailFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "adm-1", gotID)
	assert.Equal(t, "super_admin", gotRole)
	assert.Equal(t, "admin@wedding.test", gotEmail)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole("super_admin")(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	admin := req.WithContext(WithPrincipal(req.Context(), &Principal{AdminID: "1", Role: "admin"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	super := req.WithContext(WithPrincipal(req.Context(), &Principal{AdminID: "2", Role: "super_admin"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, super)
	assert.Equal(t, http.StatusOK, rec.Code)
}
