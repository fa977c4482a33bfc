package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// CheckoutLine is one cart line captured at checkout time.
type CheckoutLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// SellerBreakdown is the fee split precomputed for one seller's order.
type SellerBreakdown struct {
	SellerID    uuid.UUID       `json:"seller_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Commission  decimal.Decimal `json:"commission"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

// CheckoutSession is the server-side record a gateway reference resolves to.
type CheckoutSession struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Reference   string               `gorm:"column:reference;type:text;not null;uniqueIndex"`
	BuyerID     uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status      enums.CheckoutStatus `gorm:"column:status;type:text;not null"`
	TotalAmount decimal.Decimal      `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Lines       []CheckoutLine       `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	Breakdown   []SellerBreakdown    `gorm:"column:breakdown;type:jsonb;serializer:json;not null"`
	Note        *string              `gorm:"column:note;type:text"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	PaidAt      *time.Time           `gorm:"column:paid_at"`
}
