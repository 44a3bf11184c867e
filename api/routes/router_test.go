package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepmood/prepmood-backend/api/controllers"
	"github.com/prepmood/prepmood-backend/api/middleware"
	"github.com/prepmood/prepmood-backend/internal/claims"
	"github.com/prepmood/prepmood-backend/internal/refunds"
	"github.com/prepmood/prepmood-backend/internal/warranties"
	pkgAuth "github.com/prepmood/prepmood-backend/pkg/auth"
	"github.com/prepmood/prepmood-backend/pkg/config"
	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
	"github.com/prepmood/prepmood-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "pm:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

// Embedding the service interfaces lets each stub override only what a test calls.
type stubWarranties struct {
	warranties.Service
}

func (stubWarranties) Lookup(ctx context.Context, publicID string) (*warranties.PublicView, error) {
	return &warranties.PublicView{PublicID: publicID, Status: enums.WarrantyStatusIssued}, nil
}

type stubClaims struct {
	claims.Service
}

func (stubClaims) VerifyGuestAccess(ctx context.Context, orderID uuid.UUID, token string) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "guest access token invalid")
}

type countingRefunds struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRefunds) Refund(ctx context.Context, input refunds.Input) (*refunds.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &refunds.Result{RefundEventID: input.IdempotencyKey, WarrantyPublicID: input.WarrantyPublicID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "prepmood-test", ExpirationMinutes: 5},
		RateLimit: config.RateLimitConfig{
			GuestWindow:     time.Minute,
			GuestIPLimit:    100,
			GuestOrderLimit: 1,
		},
		Fulfillment: config.FulfillmentConfig{PaymentCallbackSecret: "callback"},
	}
}

func newTestRouter(t *testing.T, store Store, svc Services) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "router-test", Level: logger.ParseLevel("error")})
	return NewRouter(cfg, logg, store, map[string]controllers.Pinger{"db": stubPinger{}}, svc), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "someone@example.com",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, newMemoryStore(), Services{})
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := do(router, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestPublicWarrantyLookupNeedsNoToken(t *testing.T) {
	router, _ := newTestRouter(t, newMemoryStore(), Services{Warranties: stubWarranties{}})
	resp := do(router, httptest.NewRequest(http.MethodGet, "/api/warranties/PM-W-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAccountRoutesRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t, newMemoryStore(), Services{})
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/invoices/me"},
		{http.MethodPost, "/api/orders/" + uuid.NewString() + "/claim"},
		{http.MethodPost, "/api/warranties/PM-W-1/activate"},
		{http.MethodPost, "/api/warranties/transfer/accept"},
		{http.MethodGet, "/api/orders/" + uuid.NewString() + "/status"},
	}
	for _, tc := range cases {
		resp := do(router, httptest.NewRequest(tc.method, tc.path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t, newMemoryStore(), Services{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/refunds", strings.NewReader(`{}`))
	if resp := do(router, req); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/refunds", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, cfg, enums.RoleCustomer))
	if resp := do(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestAdminRefundReplaysByIdempotencyKey(t *testing.T) {
	refundSvc := &countingRefunds{}
	router, cfg := newTestRouter(t, newMemoryStore(), Services{Refunds: refundSvc})
	token := bearer(t, cfg, enums.RoleAdmin)
	body := `{"warranty_public_id":"PM-W-1","reason":"damaged in transit"}`

	req := httptest.NewRequest(http.MethodPost, "/api/admin/refunds", strings.NewReader(body))
	req.Header.Set("Authorization", token)
	if resp := do(router, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400 got %d", resp.Code)
	}

	var first, second *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/refunds", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", "refund-abc")
		resp := do(router, req)
		if i == 0 {
			first = resp
		} else {
			second = resp
		}
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs")
	}
	if refundSvc.calls != 1 {
		t.Fatalf("expected one refund, got %d", refundSvc.calls)
	}
}

func TestGuestOrderRoutesAreRateLimitedPerOrder(t *testing.T) {
	router, _ := newTestRouter(t, newMemoryStore(), Services{Claims: stubClaims{}})
	orderID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID+"/status", nil)
	req.Header.Set(middleware.GuestTokenHeader, "guess-1")
	if resp := do(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID+"/status", nil)
	req.Header.Set(middleware.GuestTokenHeader, "guess-2")
	if resp := do(router, req); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}
