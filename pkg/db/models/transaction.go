package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusmart/campusmart-backend/pkg/enums"
)

// Transaction is an immutable ledger entry paired with exactly one balance mutation.
type Transaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	OrderID       *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	Type          enums.TransactionType `gorm:"column:type;type:text;not null"`
	BalanceField  enums.BalanceField    `gorm:"column:balance_field;type:text;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Description   string                `gorm:"column:description;type:text;not null"`
	Reference     string                `gorm:"column:reference;type:text;not null;uniqueIndex"`
	BalanceBefore decimal.Decimal       `gorm:"column:balance_before;type:numeric(14,2);not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(14,2);not null"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// SignedAmount returns the amount with the sign the entry applies to its balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type.Sign() < 0 {
		return t.Amount.Neg()
	}
	return t.Amount
}
