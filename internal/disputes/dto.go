package disputes

import (
	"time"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenInput is the buyer's claim against a delivered order.
type OpenInput struct {
	BuyerID              uuid.UUID
	OrderID              uuid.UUID
	Reason               string
	ResolutionPreference string
}

// PenaltyInput optionally punishes the buyer when a dispute is resolved.
type PenaltyInput struct {
	Type   enums.PenaltyType
	Reason string
}

// ResolveInput is a single-step admin resolution.
type ResolveInput struct {
	AdminID      uuid.UUID
	DisputeID    uuid.UUID
	Status       enums.DisputeStatus
	Resolution   string
	AdminNote    string
	RefundAmount *decimal.Decimal
	Penalty      *PenaltyInput
}

// PickupInput is one step of the refund-with-return flow.
type PickupInput struct {
	AdminID   uuid.UUID
	DisputeID uuid.UUID
	Action    enums.PickupAction
}

// PickedUpInput is the rider reporting the item collected from the buyer.
type PickedUpInput struct {
	RiderID uuid.UUID
	OrderID uuid.UUID
}

// DisputeView is the API shape of a dispute.
type DisputeView struct {
	ID                   uuid.UUID           `json:"id"`
	OrderID              uuid.UUID           `json:"order_id"`
	BuyerID              uuid.UUID           `json:"buyer_id"`
	SellerID             uuid.UUID           `json:"seller_id"`
	Reason               string              `json:"reason"`
	ResolutionPreference *string             `json:"resolution_preference,omitempty"`
	Status               enums.DisputeStatus `json:"status"`
	Resolution           *string             `json:"resolution,omitempty"`
	AdminNote            *string             `json:"admin_note,omitempty"`
	PickupStage          enums.PickupStage   `json:"pickup_stage"`
	RefundReleased       bool                `json:"refund_released"`
	RiderPaid            bool                `json:"rider_paid"`
	RefundAmount         *string             `json:"refund_amount,omitempty"`
	ProcessingFee        *string             `json:"processing_fee,omitempty"`
	CollectedAt          *time.Time          `json:"collected_at,omitempty"`
	ResolvedAt           *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
}

// DisputePage is a cursor page of disputes.
type DisputePage struct {
	Disputes   []DisputeView `json:"disputes"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// MessageView is one chat entry.
type MessageView struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderRole string    `json:"sender_role"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDisputeView maps a persisted dispute into its API shape.
func NewDisputeView(d *models.Dispute) DisputeView {
	return DisputeView{
		ID:                   d.ID,
		OrderID:              d.OrderID,
		BuyerID:              d.BuyerID,
		SellerID:             d.SellerID,
		Reason:               d.Reason,
		ResolutionPreference: d.ResolutionPreference,
		Status:               d.Status,
		Resolution:           d.Resolution,
		AdminNote:            d.AdminNote,
		PickupStage:          d.PickupStage,
		RefundReleased:       d.RefundReleased,
		RiderPaid:            d.RiderPaid,
		RefundAmount:         fixed(d.RefundAmount),
		ProcessingFee:        fixed(d.ProcessingFee),
		CollectedAt:          d.CollectedAt,
		ResolvedAt:           d.ResolvedAt,
		CreatedAt:            d.CreatedAt,
	}
}

func fixed(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.StringFixed(money.Scale)
	return &s
}

func newMessageView(m *models.DisputeMessage) MessageView {
	return MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderRole: m.SenderRole,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}
