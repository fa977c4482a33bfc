package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// Withdrawal is a payout request against the available balance.
type Withdrawal struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Amount        decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	Status        enums.WithdrawalStatus `gorm:"column:status;type:text;not null"`
	BankReference *string                `gorm:"column:bank_reference;type:text"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
