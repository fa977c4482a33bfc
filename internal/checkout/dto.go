package checkout

import (
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
)

// LineInput is one product the buyer wants.
type LineInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// InitializeInput starts a checkout for the buyer's cart.
type InitializeInput struct {
	BuyerID uuid.UUID
	Items   []LineInput
	Note    string
}

// SellerBreakdownView is the per-seller fee split shown before payment.
type SellerBreakdownView struct {
	SellerID    uuid.UUID `json:"seller_id"`
	Subtotal    string    `json:"subtotal"`
	Commission  string    `json:"commission"`
	DeliveryFee string    `json:"delivery_fee"`
	Total       string    `json:"total"`
}

// InitializeResult carries what the client needs to open the gateway popup.
type InitializeResult struct {
	Reference   string                `json:"reference"`
	Amount      string                `json:"amount"`
	AmountMinor int64                 `json:"amount_minor"`
	Breakdown   []SellerBreakdownView `json:"breakdown"`
}

// VerifyResult lists the orders a payment reference materialized.
type VerifyResult struct {
	Reference string             `json:"reference"`
	Duplicate bool               `json:"duplicate"`
	Orders    []orders.OrderView `json:"orders"`
}

func newBreakdownViews(rows []models.SellerBreakdown) []SellerBreakdownView {
	out := make([]SellerBreakdownView, 0, len(rows))
	for _, b := range rows {
		out = append(out, SellerBreakdownView{
			SellerID:    b.SellerID,
			Subtotal:    b.Subtotal.StringFixed(money.Scale),
			Commission:  b.Commission.StringFixed(money.Scale),
			DeliveryFee: b.DeliveryFee.StringFixed(money.Scale),
			Total:       b.Total.StringFixed(money.Scale),
		})
	}
	return out
}

func newVerifyResult(reference string, rows []models.Order, duplicate bool) *VerifyResult {
	result := &VerifyResult{Reference: reference, Duplicate: duplicate, Orders: make([]orders.OrderView, 0, len(rows))}
	for i := range rows {
		result.Orders = append(result.Orders, orders.NewOrderView(&rows[i]))
	}
	return result
}
