package helpers

import (
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestGroupLinesBySeller(t *testing.T) {
	t.Parallel()
	sellerA := uuid.New()
	sellerB := uuid.New()
	lines := []models.CheckoutLine{
		{ProductID: uuid.New(), SellerID: sellerA},
		{ProductID: uuid.New(), SellerID: sellerB},
		{ProductID: uuid.New(), SellerID: sellerA},
	}

	grouped := GroupLinesBySeller(lines)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(grouped))
	}
	if len(grouped[sellerA]) != 2 {
		t.Fatalf("expected 2 lines for sellerA, got %d", len(grouped[sellerA]))
	}
	if len(grouped[sellerB]) != 1 {
		t.Fatalf("expected 1 line for sellerB, got %d", len(grouped[sellerB]))
	}
}

func TestComputeSellerBreakdown(t *testing.T) {
	t.Parallel()
	seller := uuid.New()
	lines := []models.CheckoutLine{
		{SellerID: seller, UnitPrice: dec("1200.50"), Quantity: 2},
		{SellerID: seller, UnitPrice: dec("99.99"), Quantity: 1},
	}

	b := ComputeSellerBreakdown(seller, lines, config.DefaultFees())
	if !b.Subtotal.Equal(dec("2500.99")) {
		t.Fatalf("expected subtotal 2500.99, got %s", b.Subtotal)
	}
	if !b.Commission.Equal(dec("250.10")) {
		t.Fatalf("expected commission 250.10, got %s", b.Commission)
	}
	if !b.DeliveryFee.Equal(dec("560")) {
		t.Fatalf("expected delivery fee 560, got %s", b.DeliveryFee)
	}
	if !b.Total.Equal(dec("3060.99")) {
		t.Fatalf("expected total 3060.99, got %s", b.Total)
	}
}

func TestComputeBreakdownIsOrderedAndSummed(t *testing.T) {
	t.Parallel()
	sellerA := uuid.New()
	sellerB := uuid.New()
	lines := []models.CheckoutLine{
		{SellerID: sellerB, UnitPrice: dec("1000"), Quantity: 1},
		{SellerID: sellerA, UnitPrice: dec("500"), Quantity: 3},
	}

	breakdown := ComputeBreakdown(lines, config.DefaultFees())
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 breakdowns, got %d", len(breakdown))
	}
	if breakdown[0].SellerID.String() > breakdown[1].SellerID.String() {
		t.Fatal("expected breakdown ordered by seller id")
	}
	if total := SessionTotal(breakdown); !total.Equal(dec("3620")) {
		t.Fatalf("expected session total 3620, got %s", total)
	}
}

func TestValidateLine(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	product := &models.Product{ID: id, Name: "Kettle", Quantity: 2, IsActive: true}

	if err := ValidateLine(product, id, "", 2); err != nil {
		t.Fatalf("expected valid line, got %v", err)
	}

	cases := []struct {
		name    string
		product *models.Product
		qty     int
		reason  string
	}{
		{name: "missing", product: nil, qty: 1, reason: ReasonNotFound},
		{name: "inactive", product: &models.Product{ID: id, Name: "Kettle", Quantity: 2}, qty: 1, reason: ReasonInactive},
		{name: "short", product: product, qty: 3, reason: ReasonInsufficient},
	}
	for _, tc := range cases {
		err := ValidateLine(tc.product, id, "Kettle", tc.qty)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		details, ok := typed.Details().(map[string]any)
		if !ok {
			t.Fatalf("%s: expected details map", tc.name)
		}
		if details["reason"] != tc.reason {
			t.Fatalf("%s: expected reason %s, got %v", tc.name, tc.reason, details["reason"])
		}
		if details["product"] != "Kettle" {
			t.Fatalf("%s: expected product name in details, got %v", tc.name, details["product"])
		}
	}
}

func TestValidateBuyer(t *testing.T) {
	t.Parallel()
	seller := uuid.New()
	product := &models.Product{ID: uuid.New(), SellerID: seller, Name: "Chair"}
	if err := ValidateBuyer(product, uuid.New()); err != nil {
		t.Fatalf("expected other buyer to pass, got %v", err)
	}
	if err := ValidateBuyer(product, seller); err == nil {
		t.Fatal("expected seller buying own product to fail")
	}
}
