package ledger

import (
	"time"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletView is the wallet summary returned to the owner.
type WalletView struct {
	UserID           uuid.UUID       `json:"user_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
}

func newWalletView(user *models.User) *WalletView {
	return &WalletView{
		UserID:           user.ID,
		AvailableBalance: user.AvailableBalance,
		PendingBalance:   user.PendingBalance,
	}
}

// TransactionView is a ledger entry as exposed over the API.
type TransactionView struct {
	ID            uuid.UUID             `json:"id"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	Type          enums.TransactionType `json:"type"`
	BalanceField  enums.BalanceField    `json:"balance_field"`
	Amount        decimal.Decimal       `json:"amount"`
	Description   string                `json:"description"`
	Reference     string                `json:"reference"`
	BalanceBefore decimal.Decimal       `json:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	CreatedAt     time.Time             `json:"created_at"`
}

func newTransactionView(row models.Transaction) TransactionView {
	return TransactionView{
		ID:            row.ID,
		OrderID:       row.OrderID,
		Type:          row.Type,
		BalanceField:  row.BalanceField,
		Amount:        row.Amount,
		Description:   row.Description,
		Reference:     row.Reference,
		BalanceBefore: row.BalanceBefore,
		BalanceAfter:  row.BalanceAfter,
		CreatedAt:     row.CreatedAt,
	}
}

// TransactionPage is one cursor page of ledger entries, newest first.
type TransactionPage struct {
	Transactions []TransactionView `json:"transactions"`
	NextCursor   string            `json:"next_cursor,omitempty"`
}

// Reconciliation compares stored balances against a replay of the ledger.
type Reconciliation struct {
	UserID            uuid.UUID       `json:"user_id"`
	Entries           int             `json:"entries"`
	StoredAvailable   decimal.Decimal `json:"stored_available"`
	StoredPending     decimal.Decimal `json:"stored_pending"`
	ReplayedAvailable decimal.Decimal `json:"replayed_available"`
	ReplayedPending   decimal.Decimal `json:"replayed_pending"`
	Consistent        bool            `json:"consistent"`
}
