package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// Dispute is the buyer's post-delivery claim against an order. The pickup
// stage and the two release flags drive the refund-with-return flow; the
// public status only turns terminal once both releases have happened.
type Dispute struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID              uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	BuyerID              uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	SellerID             uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Reason               string              `gorm:"column:reason;type:text;not null"`
	ResolutionPreference *string             `gorm:"column:resolution_preference;type:text"`
	Status               enums.DisputeStatus `gorm:"column:status;type:text;not null;index"`
	Resolution           *string             `gorm:"column:resolution;type:text"`
	AdminNote            *string             `gorm:"column:admin_note;type:text"`
	PickupStage          enums.PickupStage   `gorm:"column:pickup_stage;type:text;not null;default:none"`
	RefundReleased       bool                `gorm:"column:refund_released;not null;default:false"`
	RiderPaid            bool                `gorm:"column:rider_paid;not null;default:false"`
	RefundAmount         *decimal.Decimal    `gorm:"column:refund_amount;type:numeric(14,2)"`
	ProcessingFee        *decimal.Decimal    `gorm:"column:processing_fee;type:numeric(14,2)"`
	CollectedAt          *time.Time          `gorm:"column:collected_at"`
	ResolvedAt           *time.Time          `gorm:"column:resolved_at"`
	ResolvedBy           *uuid.UUID          `gorm:"column:resolved_by;type:uuid"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PickupInFlight reports whether a rider pickup has started but not fully settled.
func (d *Dispute) PickupInFlight() bool {
	if d.PickupStage == enums.PickupStageNone || d.PickupStage == "" {
		return false
	}
	return !(d.RefundReleased && d.RiderPaid)
}

// DisputeMessage is an append-only chat entry between the buyer and admins.
type DisputeMessage struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	DisputeID  uuid.UUID `gorm:"column:dispute_id;type:uuid;not null;index"`
	SenderID   uuid.UUID `gorm:"column:sender_id;type:uuid;not null"`
	SenderRole string    `gorm:"column:sender_role;type:text;not null"`
	Body       string    `gorm:"column:body;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Penalty records a punitive action; always paired with a penalty_points increment.
type Penalty struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	DisputeID *uuid.UUID        `gorm:"column:dispute_id;type:uuid"`
	Type      enums.PenaltyType `gorm:"column:type;type:text;not null"`
	Points    int               `gorm:"column:points;not null"`
	Reason    string            `gorm:"column:reason;type:text;not null"`
	IssuedBy  uuid.UUID         `gorm:"column:issued_by;type:uuid;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
