package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"goflare.io/issuance"
	"goflare.io/issuance/config"
	"goflare.io/issuance/handlers"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/models"
	"goflare.io/issuance/ratelimit"
)

type stubIssuer struct {
	issuance.Issuer
	coupons map[string]string
}

func (s *stubIssuer) GetIssuedCoupon(_ context.Context, paymentID string) (*models.Coupon, error) {
	code, ok := s.coupons[paymentID]
	if !ok {
		return nil, issuance.ErrCouponNotFound
	}
	return &models.Coupon{Code: code}, nil
}

type stubLimiter struct {
	calls  []string
	result *ratelimit.Result
	err    error
}

func (l *stubLimiter) Check(_ context.Context, key string) (*ratelimit.Result, error) {
	l.calls = append(l.calls, key)
	return l.result, l.err
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) http.Handler {
	t.Helper()
	issuer := &stubIssuer{coupons: map[string]string{"pay_1": "A10"}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Allocation(metrics.AllocationAllocated)

	s := NewServer(&config.Config{},
		handlers.NewCouponHandler(issuer),
		handlers.NewWebhookHandler(issuer),
		handlers.NewHealthHandler(),
		issuer, limiter, reg, m, nil, zaptest.NewLogger(t))
	return s.Handler()
}

func do(h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coupon_allocations_total{result="allocated"} 1`)
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	h := newTestServer(t, nil)

	for _, path := range []string{"/nope", "/api/unknown"} {
		rec := do(h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "API endpoint not found", body["message"])
	}
}

func TestCouponRouteThroughServer(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(h, http.MethodGet, "/api/coupon/pay_1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"coupon":"A10"`)

	rec = do(h, http.MethodGet, "/api/coupon/pay_2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitHeadersAndDenial(t *testing.T) {
	reset := time.UnixMilli(1_700_000_060_000)
	limiter := &stubLimiter{result: &ratelimit.Result{Allowed: true, Limit: 5, Remaining: 4, ResetAt: reset}}
	h := newTestServer(t, limiter)

	rec := do(h, http.MethodGet, "/api/coupon/pay_1", map[string]string{"X-Real-IP": "9.9.9.9"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060000", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"9.9.9.9"}, limiter.calls)

	limiter.result = &ratelimit.Result{Allowed: false, Limit: 5, Remaining: 0, ResetAt: reset}
	rec = do(h, http.MethodGet, "/api/coupon/pay_1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests. Please try again in a minute."}`, rec.Body.String())

	// limits apply to coupon routes only
	calls := len(limiter.calls)
	rec = do(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, limiter.calls, calls)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	h := newTestServer(t, limiter)

	rec := do(h, http.MethodGet, "/api/coupon/pay_1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 1.1.1.1 , 2.2.2.2")
	assert.Equal(t, "1.1.1.1", clientIP(req))

	req.Header.Set("X-Real-IP", "3.3.3.3")
	assert.Equal(t, "3.3.3.3", clientIP(req))

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = ""
	assert.Equal(t, "", clientIP(bare))
	assert.False(t, strings.Contains(clientIP(req), ","))
}
