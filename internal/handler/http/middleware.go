package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
	"github.com/utafrali/WeddingDonations/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that are not declared as JSON.
// Bodyless POSTs (logout with only a refresh cookie, for instance) pass.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuthenticator bridges the bearer middleware to AuthService.Authenticate,
// which checks the JWT and then the admin's current active flag.
func adminAuthenticator(svc AuthService) middleware.Authenticator {
	return func(ctx context.Context, token string) (*middleware.Principal, error) {
		admin, err := svc.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{AdminID: admin.ID, Email: admin.Email, Role: admin.Role}, nil
	}
}

// RequireSuperAdmin lets only super administrators through. It must run after
// the bearer auth middleware.
func RequireSuperAdmin(next http.Handler) http.Handler {
	return middleware.RequireRole(domain.RoleSuperAdmin)(next)
}

func sessionMeta(r *http.Request) domain.SessionMetadata {
	return domain.SessionMetadata{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}
}
