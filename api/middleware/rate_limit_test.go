package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/campusmart/campusmart-backend/pkg/redis"
)

func TestRateLimitBlocksPerIP(t *testing.T) {
	policy := RateLimitPolicy{Name: "verify", Window: time.Minute, Limit: 2}
	handler := RateLimit(policy, pkgredis.NewLocalCounter(), nil)(okHandler())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/payments/verify?reference=ref", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("1.2.3.4:1000").Code)
	assert.Equal(t, http.StatusOK, send("1.2.3.4:1001").Code)

	blocked := send("1.2.3.4:1002")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("5.6.7.8:1000").Code, "other clients keep their own budget")
}

func TestRateLimitPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", " 41.58.1.2 , 10.0.0.1")
	assert.Equal(t, "41.58.1.2", clientIP(req))
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{Name: "verify"}, failingCounter{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitStoreFailure(t *testing.T) {
	policy := RateLimitPolicy{Name: "verify", Window: time.Minute, Limit: 5}
	handler := RateLimit(policy, failingCounter{}, nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingCounter struct{}

func (failingCounter) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (failingCounter) RateLimitKey(scope string, parts ...string) string {
	return scope
}
