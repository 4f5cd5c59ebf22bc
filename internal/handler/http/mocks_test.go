package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/WeddingDonations/internal/domain"
	"github.com/utafrali/WeddingDonations/internal/service"
	"github.com/utafrali/WeddingDonations/pkg/health"
	"github.com/utafrali/WeddingDonations/pkg/httputil"
	"github.com/utafrali/WeddingDonations/pkg/pagination"
)

// ============================================================================
// Mock Services
// ============================================================================

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, in service.LoginInput) (*domain.Admin, *domain.TokenPair, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.Admin), args.Get(1).(*domain.TokenPair), args.Error(2)
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string, meta domain.SessionMetadata) (*domain.TokenPair, error) {
	args := m.Called(ctx, refreshToken, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *mockAuthService) LogoutAll(ctx context.Context, adminID string) (int64, error) {
	args := m.Called(ctx, adminID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, adminID string, in service.ChangePasswordInput) error {
	args := m.Called(ctx, adminID, in)
	return args.Error(0)
}

func (m *mockAuthService) Me(ctx context.Context, adminID string) (*domain.Admin, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Admin), args.Error(1)
}

func (m *mockAuthService) ListSessions(ctx context.Context, adminID string) ([]service.Session, error) {
	args := m.Called(ctx, adminID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.Session), args.Error(1)
}

func (m *mockAuthService) RevokeSession(ctx context.Context, adminID, sessionID string) error {
	args := m.Called(ctx, adminID, sessionID)
	return args.Error(0)
}

func (m *mockAuthService) Authenticate(ctx context.Context, accessToken string) (*domain.Admin, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Admin), args.Error(1)
}

func (m *mockAuthService) CreateAdmin(ctx context.Context, in service.CreateAdminInput) (*domain.Admin, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Admin), args.Error(1)
}

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) InitializeCard(ctx context.Context, in service.InitializeCardInput) (*service.CardPayment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CardPayment), args.Error(1)
}

func (m *mockPaymentService) InitializeMobileMoney(ctx context.Context, in service.InitializeMobileMoneyInput) (*service.MobileMoneyPayment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MobileMoneyPayment), args.Error(1)
}

func (m *mockPaymentService) SubmitOTP(ctx context.Context, in service.SubmitOTPInput) (*service.PaymentStatus, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PaymentStatus), args.Error(1)
}

func (m *mockPaymentService) Verify(ctx context.Context, reference string) (*service.PaymentStatus, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PaymentStatus), args.Error(1)
}

func (m *mockPaymentService) HandleWebhook(ctx context.Context, ev service.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockPaymentService) HandleCallback(ctx context.Context, reference, trxref string) string {
	args := m.Called(ctx, reference, trxref)
	return args.String(0)
}

func (m *mockPaymentService) ListDonations(ctx context.Context, p pagination.Params) (pagination.Page[domain.Donation], error) {
	args := m.Called(ctx, p)
	return args.Get(0).(pagination.Page[domain.Donation]), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testWebhookSecret = "sk_test_wedding"
	adminToken        = "admin-access-token"
	superAdminToken   = "super-access-token"
)

var (
	testAdmin = &domain.Admin{
		ID: "9b2f6c1e-0d7a-4a51-8f8e-3c1d2b4a5e60", Name: "Fatou", Email: "fatou@mariage.example.com",
		Role: domain.RoleAdmin, IsActive: true,
	}
	testSuperAdmin = &domain.Admin{
		ID: "1c0e5a7b-6f2d-4e3a-9b8c-7d6e5f4a3b21", Name: "Moussa", Email: "moussa@mariage.example.com",
		Role: domain.RoleSuperAdmin, IsActive: true,
	}
)

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type routerOption func(*RouterConfig)

func withAuthLimit(rps float64, burst int) routerOption {
	return func(c *RouterConfig) { c.AuthLimit = RateLimit{RPS: rps, Burst: burst} }
}

// newTestRouter builds the production router around mocks. Admin and super
// admin bearer tokens are pre-registered with the auth mock.
func newTestRouter(t *testing.T, opts ...routerOption) (http.Handler, *mockAuthService, *mockPaymentService) {
	t.Helper()
	authSvc := new(mockAuthService)
	paySvc := new(mockPaymentService)

	authSvc.On("Authenticate", mock.Anything, adminToken).Return(testAdmin, nil).Maybe()
	authSvc.On("Authenticate", mock.Anything, superAdminToken).Return(testSuperAdmin, nil).Maybe()

	cfg := RouterConfig{
		ServiceName:   "wedding-donations-test",
		Auth:          authSvc,
		Payments:      paySvc,
		Health:        health.NewHandler(),
		Logger:        handlerTestLogger(),
		CORSOrigins:   []string{"https://mariage.example.com"},
		WebhookSecret: testWebhookSecret,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewRouter(cfg), authSvc, paySvc
}

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func withBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error, rec.Body.String())
	return resp.Error.Code
}

func dataMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decodeResponse(t, rec)
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, rec.Body.String())
	return m
}
