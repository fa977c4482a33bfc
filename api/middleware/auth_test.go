package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/campusmart/campusmart-backend/pkg/auth"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
)

var testVerifier = mustVerifier(config.JWTConfig{Secret: "middleware-test-secret", Issuer: "issuer", ExpirationMinutes: 60})

func mustVerifier(cfg config.JWTConfig) *auth.Verifier {
	v, err := auth.NewVerifier(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testVerifier, stubResolver{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testVerifier, stubResolver{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthReportsExpiredToken(t *testing.T) {
	token, err := testVerifier.Issue(uuid.New(), enums.UserRoleUser, time.Now().Add(-3*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	handler := Auth(testVerifier, stubResolver{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "token expired") {
		t.Fatalf("expected expiry message, got %s", resp.Body.String())
	}
}

func TestAuthSeedsResolvedIdentity(t *testing.T) {
	userID := uuid.New()
	// the stored role wins over the one embedded in the token
	token := mintTestToken(t, userID, enums.UserRoleUser)
	resolver := stubResolver{identity: users.Identity{UserID: userID, Role: enums.UserRoleRider}}

	var captured users.Identity
	var ok bool
	handler := Auth(testVerifier, resolver, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, ok = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !ok {
		t.Fatal("expected identity in context")
	}
	if captured.UserID != userID || captured.Role != enums.UserRoleRider {
		t.Fatalf("unexpected identity %+v", captured)
	}
}

func TestAuthPropagatesResolverRejection(t *testing.T) {
	token := mintTestToken(t, uuid.New(), enums.UserRoleUser)
	resolver := stubResolver{err: pkgerrors.New(pkgerrors.CodeForbidden, "account suspended")}
	handler := Auth(testVerifier, resolver, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleRider, enums.UserRoleAdmin)(okHandler())

	cases := []struct {
		role enums.UserRole
		want int
	}{
		{enums.UserRoleRider, http.StatusOK},
		{enums.UserRoleAdmin, http.StatusOK},
		{enums.UserRoleUser, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), users.Identity{UserID: uuid.New(), Role: tc.role}))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}
}

func TestIdentityFromContextRequiresBothFields(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield an identity")
	}
	ctx := WithIdentity(context.Background(), users.Identity{UserID: uuid.New(), Role: "owner"})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("unknown role must not yield an identity")
	}
	ctx = WithIdentity(context.Background(), users.Identity{Role: enums.UserRoleUser})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("missing user id must not yield an identity")
	}
	if UserIDFromContext(ctx) != "" {
		t.Fatal("anonymous context must have no user id")
	}
}

func mintTestToken(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := testVerifier.Issue(userID, role, time.Now())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type stubResolver struct {
	identity users.Identity
	err      error
}

func (s stubResolver) Resolve(_ context.Context, userID uuid.UUID) (users.Identity, error) {
	if s.err != nil {
		return users.Identity{}, s.err
	}
	if s.identity.UserID == uuid.Nil {
		return users.Identity{UserID: userID, Role: enums.UserRoleUser}, nil
	}
	return s.identity, nil
}
