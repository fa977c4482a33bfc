package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campusmart/campusmart-backend/pkg/db"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BalanceChange describes one signed mutation of one wallet balance.
type BalanceChange struct {
	UserID      uuid.UUID
	Field       enums.BalanceField
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Reference   string
	Description string
	OrderID     *uuid.UUID
	// Overdraft lets a dispute clawback drive the balance below zero. The
	// entry is still recorded and the overdraft is logged for audit.
	Overdraft bool
}

// Service is the only writer of wallet balances.
type Service interface {
	ApplyBalanceChange(ctx context.Context, tx *gorm.DB, change BalanceChange) (*models.Transaction, error)
	Wallet(ctx context.Context, userID uuid.UUID) (*WalletView, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
	Replay(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
	RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.Marketplace
}

// NewService wires a ledger service with the provided collaborators.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.Marketplace) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: m}, nil
}

// Reference builds the conventional entry reference {orderNumber}-{ROLE}-{EVENT}.
func Reference(orderNumber, role, event string) string {
	return fmt.Sprintf("%s-%s-%s", orderNumber, strings.ToUpper(role), strings.ToUpper(event))
}

// ApplyBalanceChange locks the user row, applies the signed amount to the
// named balance and appends the matching ledger entry. It must run inside the
// caller's transaction so the mutation commits or rolls back with the rest of
// the unit of work.
func (s *service) ApplyBalanceChange(ctx context.Context, tx *gorm.DB, change BalanceChange) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance change requires a transaction")
	}
	if err := validateChange(change); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.LockUser(ctx, change.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found").
				WithDetails(map[string]any{"user_id": change.UserID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock user")
	}

	amount := money.Round(change.Amount)
	signed := amount
	if change.Type.Sign() < 0 {
		signed = amount.Neg()
	}
	before := user.Balance(change.Field)
	after := money.Round(before.Add(signed))
	if after.IsNegative() && !change.Overdraft {
		return nil, pkgerrors.Precondition(
			fmt.Sprintf("insufficient %s balance", change.Field),
			map[string]any{
				"user_id": change.UserID,
				"field":   change.Field,
				"balance": before.StringFixed(money.Scale),
				"amount":  amount.StringFixed(money.Scale),
			},
		)
	}

	if err := repo.SetBalance(ctx, change.UserID, change.Field, after); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}

	entry := &models.Transaction{
		UserID:        change.UserID,
		OrderID:       change.OrderID,
		Type:          change.Type,
		BalanceField:  change.Field,
		Amount:        amount,
		Description:   change.Description,
		Reference:     change.Reference,
		BalanceBefore: before,
		BalanceAfter:  after,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ledger reference already recorded").
				WithDetails(map[string]any{"reference": change.Reference})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}

	if after.IsNegative() {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   change.UserID.String(),
			"field":     string(change.Field),
			"reference": change.Reference,
			"balance":   after.StringFixed(money.Scale),
		})
		s.logg.Warn(logCtx, "balance overdrawn by clawback")
	}

	s.metrics.LedgerEntry(string(change.Type), string(change.Field), amount.InexactFloat64())
	return entry, nil
}

func validateChange(change BalanceChange) error {
	switch {
	case change.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	case !change.Field.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid balance field %q", change.Field))
	case !change.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", change.Type))
	case !change.Amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	case strings.TrimSpace(change.Reference) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	return nil
}

func (s *service) Wallet(ctx context.Context, userID uuid.UUID) (*WalletView, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	if user.AvailableBalance.IsNegative() || user.PendingBalance.IsNegative() {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":           user.ID.String(),
			"available_balance": user.AvailableBalance.StringFixed(money.Scale),
			"pending_balance":   user.PendingBalance.StringFixed(money.Scale),
		})
		s.logg.Warn(logCtx, "negative wallet balance")
	}
	return newWalletView(user), nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListTransactions(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page := &TransactionPage{Transactions: make([]TransactionView, 0, len(rows))}
	for _, row := range rows {
		page.Transactions = append(page.Transactions, newTransactionView(row))
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// Replay recomputes both balances from the user's ledger entries and reports
// whether they agree with the stored columns.
func (s *service) Replay(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	rows, err := s.repo.AllTransactions(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger")
	}

	replayed := ReplayEntries(rows)
	rec := &Reconciliation{
		UserID:            userID,
		Entries:           len(rows),
		StoredAvailable:   user.AvailableBalance,
		StoredPending:     user.PendingBalance,
		ReplayedAvailable: replayed[enums.BalanceFieldAvailable],
		ReplayedPending:   replayed[enums.BalanceFieldPending],
	}
	rec.Consistent = rec.StoredAvailable.Equal(rec.ReplayedAvailable) && rec.StoredPending.Equal(rec.ReplayedPending)
	if !rec.Consistent {
		s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "ledger replay drift detected")
	}
	return rec, nil
}

// ReplayEntries sums signed entry amounts per balance field.
func ReplayEntries(rows []models.Transaction) map[enums.BalanceField]decimal.Decimal {
	totals := map[enums.BalanceField]decimal.Decimal{
		enums.BalanceFieldAvailable: decimal.Zero,
		enums.BalanceFieldPending:   decimal.Zero,
	}
	for _, row := range rows {
		totals[row.BalanceField] = totals[row.BalanceField].Add(row.SignedAmount())
	}
	return totals
}

func (s *service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.Withdrawal, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !money.Round(amount).Equal(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount has too many decimal places")
	}

	var withdrawal *models.Withdrawal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		w := &models.Withdrawal{
			ID:     uuid.New(),
			UserID: userID,
			Amount: amount,
			Status: enums.WithdrawalStatusRequested,
		}
		if _, err := s.ApplyBalanceChange(ctx, tx, BalanceChange{
			UserID:      userID,
			Field:       enums.BalanceFieldAvailable,
			Type:        enums.TransactionTypeWithdrawal,
			Amount:      amount,
			Reference:   Reference("WDR-"+w.ID.String(), "USER", "WITHDRAWAL"),
			Description: "Withdrawal request",
		}); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).CreateWithdrawal(ctx, w); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record withdrawal")
		}
		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "withdrawal requested")
	return withdrawal, nil
}
