package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity is the authenticated actor handed to services.
type Identity struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor holds the admin role.
func (i Identity) IsAdmin() bool { return i.Role == enums.UserRoleAdmin }

// IsRider reports whether the actor holds the rider role.
func (i Identity) IsRider() bool { return i.Role == enums.UserRoleRider }

// Resolver turns token claims into a live identity, rejecting unknown or
// suspended accounts. The stored role wins over the role in the token.
type Resolver struct {
	repo *Repository
}

// NewResolver builds a resolver over the users repository.
func NewResolver(repo *Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &Resolver{repo: repo}, nil
}

// Resolve loads the user and returns the identity used for authorization.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Identity, error) {
	if userID == uuid.Nil {
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	user, err := r.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.IsSuspended {
		return Identity{}, pkgerrors.New(pkgerrors.CodeForbidden, "account suspended")
	}
	return Identity{UserID: user.ID, Role: user.Role}, nil
}
