package users

import (
	"context"
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/db/dbtest"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIDsAfterPagesInIDOrder(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	for i := 0; i < 5; i++ {
		dbtest.SeedUser(t, conn, enums.UserRoleUser, "0", "0")
	}

	ctx := context.Background()
	var seen []uuid.UUID
	cursor := uuid.Nil
	for {
		page, err := repo.ListIDsAfter(ctx, cursor, 2)
		require.NoError(t, err)
		seen = append(seen, page...)
		if len(page) < 2 {
			break
		}
		cursor = page[len(page)-1]
	}
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1].String(), seen[i].String())
	}
}

func TestListIDsByRole(t *testing.T) {
	conn := dbtest.Open(t).DB()
	admin := dbtest.SeedUser(t, conn, enums.UserRoleAdmin, "0", "0")
	dbtest.SeedUser(t, conn, enums.UserRoleRider, "0", "0")

	ids, err := NewRepository(conn).ListIDsByRole(context.Background(), enums.UserRoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin.ID}, ids)
}

func TestSuspensionPenaltyLocksAccountOut(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	resolver, err := NewResolver(repo)
	require.NoError(t, err)

	seller := dbtest.SeedUser(t, conn, enums.UserRoleUser, "0", "0")
	admin := dbtest.SeedUser(t, conn, enums.UserRoleAdmin, "0", "0")
	ctx := context.Background()

	identity, err := resolver.Resolve(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.UserRoleUser, identity.Role)

	require.NoError(t, repo.AddPenalty(ctx, &models.Penalty{
		UserID: seller.ID, Type: enums.PenaltyTypeWarning, Points: enums.PenaltyTypeWarning.Points(),
		Reason: "late handover", IssuedBy: admin.ID,
	}))
	_, err = resolver.Resolve(ctx, seller.ID)
	require.NoError(t, err)

	require.NoError(t, repo.AddPenalty(ctx, &models.Penalty{
		UserID: seller.ID, Type: enums.PenaltyTypeSuspension, Points: enums.PenaltyTypeSuspension.Points(),
		Reason: "repeated no-shows", IssuedBy: admin.ID,
	}))
	stored := dbtest.ReloadUser(t, conn, seller.ID)
	assert.True(t, stored.IsSuspended)
	assert.Equal(t, enums.PenaltyTypeWarning.Points()+enums.PenaltyTypeSuspension.Points(), stored.PenaltyPoints)

	_, err = resolver.Resolve(ctx, seller.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = resolver.Resolve(ctx, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}
