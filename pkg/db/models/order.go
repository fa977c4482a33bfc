package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// Order is one seller's share of a paid checkout. Money fields are fixed at creation.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string            `gorm:"column:order_number;type:text;not null;uniqueIndex"`
	PaymentID         string            `gorm:"column:payment_id;type:text;not null;uniqueIndex:idx_orders_payment_seller,priority:1;index"`
	CheckoutSessionID *uuid.UUID        `gorm:"column:checkout_session_id;type:uuid"`
	BuyerID           uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID          uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:idx_orders_payment_seller,priority:2;index"`
	RiderID           *uuid.UUID        `gorm:"column:rider_id;type:uuid;index"`
	Subtotal          decimal.Decimal   `gorm:"column:subtotal;type:numeric(14,2);not null"`
	TotalAmount       decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	PlatformComm      decimal.Decimal   `gorm:"column:platform_commission;type:numeric(14,2);not null"`
	DeliveryFee       decimal.Decimal   `gorm:"column:delivery_fee;type:numeric(14,2);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	IsDisputed        bool              `gorm:"column:is_disputed;not null;default:false"`
	BuyerNote         *string           `gorm:"column:buyer_note;type:text"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	RiderAssignedAt   *time.Time        `gorm:"column:rider_assigned_at"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	CompletedAt       *time.Time        `gorm:"column:completed_at"`
	CancelledAt       *time.Time        `gorm:"column:cancelled_at"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// SellerEscrow is the amount held for the seller at materialization: the
// order total less the platform commission and the delivery fee.
func (o *Order) SellerEscrow() decimal.Decimal {
	return o.TotalAmount.Sub(o.PlatformComm).Sub(o.DeliveryFee)
}

// OrderItem is a product line inside an order.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;type:text;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
}
