package reservation

import (
	"context"
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/db/dbtest"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestReserveStock(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	ctx := context.Background()
	seller := dbtest.SeedUser(t, conn, enums.UserRoleUser, "0", "0")
	productA := dbtest.SeedProduct(t, conn, seller.ID, "Kettle", "1500", 5)
	productB := dbtest.SeedProduct(t, conn, seller.ID, "Toaster", "2000", 1)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return ReserveStock(ctx, tx, []StockRequest{
			{ProductID: productA.ID, Name: productA.Name, Qty: 3},
			{ProductID: productB.ID, Name: productB.Name, Qty: 1},
		})
	})
	if err != nil {
		t.Fatalf("reserve stock: %v", err)
	}

	var a, b models.Product
	if err := conn.First(&a, "id = ?", productA.ID).Error; err != nil {
		t.Fatalf("load product a: %v", err)
	}
	if err := conn.First(&b, "id = ?", productB.ID).Error; err != nil {
		t.Fatalf("load product b: %v", err)
	}
	if a.Quantity != 2 || b.Quantity != 0 {
		t.Fatalf("unexpected stock: a=%d b=%d", a.Quantity, b.Quantity)
	}
}

func TestReserveStockIsAllOrNothing(t *testing.T) {
	client := dbtest.Open(t)
	conn := client.DB()
	ctx := context.Background()
	seller := dbtest.SeedUser(t, conn, enums.UserRoleUser, "0", "0")
	productA := dbtest.SeedProduct(t, conn, seller.ID, "Kettle", "1500", 5)
	productB := dbtest.SeedProduct(t, conn, seller.ID, "Toaster", "2000", 1)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return ReserveStock(ctx, tx, []StockRequest{
			{ProductID: productA.ID, Name: productA.Name, Qty: 3},
			{ProductID: productB.ID, Name: productB.Name, Qty: 2},
		})
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if details["product"] != "Toaster" {
		t.Fatalf("expected the failing product to be named, got %v", details["product"])
	}

	var a models.Product
	if err := conn.First(&a, "id = ?", productA.ID).Error; err != nil {
		t.Fatalf("load product a: %v", err)
	}
	if a.Quantity != 5 {
		t.Fatalf("expected rollback to restore stock, got %d", a.Quantity)
	}
}

func TestReserveStockInvalidQty(t *testing.T) {
	client := dbtest.Open(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return ReserveStock(context.Background(), tx, []StockRequest{{ProductID: uuid.New(), Qty: 0}})
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}
