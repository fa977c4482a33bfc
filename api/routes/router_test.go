package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-backend/api/controllers"
	"github.com/campusmart/campusmart-backend/internal/users"
	pkgAuth "github.com/campusmart/campusmart-backend/pkg/auth"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	pkgredis "github.com/campusmart/campusmart-backend/pkg/redis"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type roleResolver map[uuid.UUID]enums.UserRole

func (r roleResolver) Resolve(_ context.Context, userID uuid.UUID) (users.Identity, error) {
	return users.Identity{UserID: userID, Role: r[userID]}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev, Port: "0"},
		JWT: config.JWTConfig{Secret: "router-test-secret-key", Issuer: "campusmart", ExpirationMinutes: 30},
		Paystack: config.PaystackConfig{
			VerifyRateLimit:  2,
			VerifyRateWindow: time.Minute,
		},
	}
}

func newTestRouter(t *testing.T, resolver roleResolver, pingers map[string]controllers.Pinger) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.NewMarketplace(reg)
	return NewRouter(Dependencies{
		Config:      testConfig(),
		Pingers:     pingers,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Verifier:    testVerifier(t),
		Resolver:    resolver,
		RateCounter: pkgredis.NewLocalCounter(),
	})
}

func testVerifier(t *testing.T) *pkgAuth.Verifier {
	t.Helper()
	v, err := pkgAuth.NewVerifier(testConfig().JWT)
	require.NoError(t, err)
	return v
}

func bearer(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := testVerifier(t).Issue(userID, role, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(router http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, roleResolver{}, map[string]controllers.Pinger{"db": stubPinger{}})
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready", "").Code)

	down := newTestRouter(t, roleResolver{}, map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("refused")}})
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/health/ready", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, roleResolver{}, nil)
	rec := serve(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t, roleResolver{}, nil)
	rec := serve(router, http.MethodGet, "/api/v1/wallet", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGates(t *testing.T) {
	buyer, rider, admin := uuid.New(), uuid.New(), uuid.New()
	resolver := roleResolver{buyer: enums.UserRoleUser, rider: enums.UserRoleRider, admin: enums.UserRoleAdmin}
	router := newTestRouter(t, resolver, nil)

	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/v1/riders/available-orders", bearer(t, buyer, enums.UserRoleUser)).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/v1/admin/disputes", bearer(t, buyer, enums.UserRoleUser)).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/v1/admin/disputes", bearer(t, rider, enums.UserRoleRider)).Code)

	// unwired services answer INTERNAL once the gates pass
	assert.Equal(t, http.StatusInternalServerError, serve(router, http.MethodGet, "/api/v1/riders/available-orders", bearer(t, rider, enums.UserRoleRider)).Code)
	assert.Equal(t, http.StatusInternalServerError, serve(router, http.MethodGet, "/api/v1/admin/disputes", bearer(t, admin, enums.UserRoleAdmin)).Code)
}

func TestPaymentsVerifyIsPublicAndRateLimited(t *testing.T) {
	router := newTestRouter(t, roleResolver{}, nil)
	for i := 0; i < 2; i++ {
		rec := serve(router, http.MethodGet, "/payments/verify?reference=abc", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, "reaches the handler without auth")
	}
	rec := serve(router, http.MethodGet, "/payments/verify?reference=abc", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
