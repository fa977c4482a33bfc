package middleware

import (
	"context"

	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/google/uuid"
)

type identityKey struct{}

// WithIdentity stores the resolved actor for downstream handlers.
func WithIdentity(ctx context.Context, identity users.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the actor seeded by Auth. Identities without
// a user id or with an unknown role are treated as absent.
func IdentityFromContext(ctx context.Context) (users.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(users.Identity)
	if !ok || identity.UserID == uuid.Nil || !identity.Role.IsValid() {
		return users.Identity{}, false
	}
	return identity, true
}

// UserIDFromContext is the caller's id as a string, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.UserID.String()
	}
	return ""
}
