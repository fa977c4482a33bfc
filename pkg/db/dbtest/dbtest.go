// Package dbtest boots isolated in-memory SQLite databases carrying the full
// marketplace schema for package tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/db"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open returns a client over a fresh database. A single pooled connection
// serializes concurrent transactions the way row locks would on Postgres.
func Open(t testing.TB) *db.Client {
	t.Helper()

	conn, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return db.Wrap(conn, 5*time.Second, 5*time.Second)
}

// SeedUser inserts a user with the given role and balances.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.UserRole, available, pending string) *models.User {
	t.Helper()
	user := &models.User{
		Email:            uuid.NewString() + "@campus.test",
		FullName:         "Test " + string(role),
		Role:             role,
		AvailableBalance: decimal.RequireFromString(available),
		PendingBalance:   decimal.RequireFromString(pending),
	}
	require.NoError(t, conn.Create(user).Error)
	return user
}

// SeedProduct inserts an active product for the seller.
func SeedProduct(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, name, price string, qty int) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID: sellerID,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		IsActive: true,
	}
	require.NoError(t, conn.Create(product).Error)
	return product
}

// ReloadUser re-reads the user so balance assertions see committed values.
func ReloadUser(t testing.TB, conn *gorm.DB, id uuid.UUID) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, conn.First(&user, "id = ?", id).Error)
	return &user
}

// Dec parses a decimal literal.
func Dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
