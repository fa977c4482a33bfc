package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// User carries the identity fields the core needs plus the two wallet balances.
// Balances only change through the ledger.
type User struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email            string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	FullName         string          `gorm:"column:full_name;type:text;not null"`
	Role             enums.UserRole  `gorm:"column:role;type:text;not null;default:user"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(14,2);not null;default:0"`
	PendingBalance   decimal.Decimal `gorm:"column:pending_balance;type:numeric(14,2);not null;default:0"`
	PenaltyPoints    int             `gorm:"column:penalty_points;not null;default:0"`
	IsSuspended      bool            `gorm:"column:is_suspended;not null;default:false"`
	SuspendedReason  *string         `gorm:"column:suspended_reason;type:text"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Balance returns the value of the requested wallet field.
func (u *User) Balance(field enums.BalanceField) decimal.Decimal {
	if field == enums.BalanceFieldPending {
		return u.PendingBalance
	}
	return u.AvailableBalance
}
