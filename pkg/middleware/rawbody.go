package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/utafrali/WeddingDonations/pkg/httputil"
)

type rawBodyKey struct{}

// PreserveRawBody buffers the request body (up to limit bytes), stores the
// exact bytes in the context, and replaces r.Body with a fresh reader over the
// same bytes. Handlers can then JSON-decode the body as usual while
// signature checks read RawBodyFromContext.
func PreserveRawBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				status := http.StatusBadRequest
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					status = http.StatusRequestEntityTooLarge
				}
				httputil.WriteJSON(w, status, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "unable to read request body"},
				})
				return
			}
			_ = r.Body.Close()

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), rawBodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RawBodyFromContext returns the bytes captured by PreserveRawBody.
func RawBodyFromContext(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(rawBodyKey{}).([]byte)
	return b, ok
}
