package orders

import (
	"time"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
)

// OrderItemView is the API shape of an order line.
type OrderItemView struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	UnitPrice   string    `json:"unit_price"`
	Quantity    int       `json:"quantity"`
	LineTotal   string    `json:"line_total"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID                 uuid.UUID         `json:"id"`
	OrderNumber        string            `json:"order_number"`
	PaymentReference   string            `json:"payment_reference"`
	BuyerID            uuid.UUID         `json:"buyer_id"`
	SellerID           uuid.UUID         `json:"seller_id"`
	RiderID            *uuid.UUID        `json:"rider_id,omitempty"`
	Status             enums.OrderStatus `json:"status"`
	IsDisputed         bool              `json:"is_disputed"`
	Subtotal           string            `json:"subtotal"`
	PlatformCommission string            `json:"platform_commission"`
	DeliveryFee        string            `json:"delivery_fee"`
	TotalAmount        string            `json:"total_amount"`
	BuyerNote          *string           `json:"buyer_note,omitempty"`
	Items              []OrderItemView   `json:"items"`
	CreatedAt          time.Time         `json:"created_at"`
	RiderAssignedAt    *time.Time        `json:"rider_assigned_at,omitempty"`
	DeliveredAt        *time.Time        `json:"delivered_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
}

// OrderPage is a cursor page of orders.
type OrderPage struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// AvailableOrders is the rider's job board: unclaimed deliveries plus the
// dispute pickups already assigned to them.
type AvailableOrders struct {
	Orders     []OrderView `json:"orders"`
	PickupJobs []OrderView `json:"pickup_jobs"`
}

// ConfirmResult reports the outcome of a buyer confirmation.
type ConfirmResult struct {
	Order            OrderView `json:"order"`
	AlreadyCompleted bool      `json:"already_completed"`
}

// AcceptInput claims a PENDING order for a rider.
type AcceptInput struct {
	RiderID uuid.UUID
	OrderID uuid.UUID
}

// StatusInput advances an assigned order.
type StatusInput struct {
	RiderID uuid.UUID
	OrderID uuid.UUID
	Status  enums.OrderStatus
}

// ConfirmInput is the buyer's delivery confirmation.
type ConfirmInput struct {
	BuyerID uuid.UUID
	OrderID uuid.UUID
}

// CancelInput is an admin cancellation of an unassigned order.
type CancelInput struct {
	AdminID uuid.UUID
	OrderID uuid.UUID
	Reason  string
}

// NewOrderView maps a persisted order into its API shape.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		PaymentReference:   order.PaymentID,
		BuyerID:            order.BuyerID,
		SellerID:           order.SellerID,
		RiderID:            order.RiderID,
		Status:             order.Status,
		IsDisputed:         order.IsDisputed,
		Subtotal:           order.Subtotal.StringFixed(money.Scale),
		PlatformCommission: order.PlatformComm.StringFixed(money.Scale),
		DeliveryFee:        order.DeliveryFee.StringFixed(money.Scale),
		TotalAmount:        order.TotalAmount.StringFixed(money.Scale),
		BuyerNote:          order.BuyerNote,
		Items:              make([]OrderItemView, 0, len(order.Items)),
		CreatedAt:          order.CreatedAt,
		RiderAssignedAt:    order.RiderAssignedAt,
		DeliveredAt:        order.DeliveredAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.StringFixed(money.Scale),
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal.StringFixed(money.Scale),
		})
	}
	return view
}

func newOrderViews(rows []models.Order) []OrderView {
	views := make([]OrderView, 0, len(rows))
	for i := range rows {
		views = append(views, NewOrderView(&rows[i]))
	}
	return views
}
