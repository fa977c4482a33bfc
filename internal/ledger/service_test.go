package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/campusmart/campusmart-backend/pkg/db"
	"github.com/campusmart/campusmart-backend/pkg/db/dbtest"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(NewRepository(client.DB()), client, logger.New(logger.Options{Output: io.Discard}), nil)
	require.NoError(t, err)
	return svc, client
}

func apply(t *testing.T, svc Service, client *db.Client, change BalanceChange) error {
	t.Helper()
	return client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := svc.ApplyBalanceChange(context.Background(), tx, change)
		return err
	})
}

func TestApplyBalanceChangePairsEntryWithMutation(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "0", "0")

	require.NoError(t, apply(t, svc, client, BalanceChange{
		UserID: user.ID, Field: enums.BalanceFieldPending, Type: enums.TransactionTypeEscrow,
		Amount: dbtest.Dec("1440"), Reference: "CM1-SELLER-ESCROW", Description: "escrow",
	}))
	require.NoError(t, apply(t, svc, client, BalanceChange{
		UserID: user.ID, Field: enums.BalanceFieldPending, Type: enums.TransactionTypeDebit,
		Amount: dbtest.Dec("1440"), Reference: "CM1-SELLER-ESCROW-RELEASE", Description: "release",
	}))
	require.NoError(t, apply(t, svc, client, BalanceChange{
		UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit,
		Amount: dbtest.Dec("1440"), Reference: "CM1-SELLER-RELEASE", Description: "release",
	}))

	reloaded := dbtest.ReloadUser(t, client.DB(), user.ID)
	assert.True(t, reloaded.AvailableBalance.Equal(dbtest.Dec("1440")), "available %s", reloaded.AvailableBalance)
	assert.True(t, reloaded.PendingBalance.IsZero(), "pending %s", reloaded.PendingBalance)

	var entries []models.Transaction
	require.NoError(t, client.DB().Where("user_id = ?", user.ID).Order("created_at ASC").Find(&entries).Error)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.BalanceAfter.Sub(e.BalanceBefore).Equal(e.SignedAmount()), "entry %s before/after mismatch", e.Reference)
	}
}

func TestApplyBalanceChangeRejectsNegativeResult(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "100", "0")

	err := apply(t, svc, client, BalanceChange{
		UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeDebit,
		Amount: dbtest.Dec("100.01"), Reference: "X-USER-DEBIT", Description: "too much",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	reloaded := dbtest.ReloadUser(t, client.DB(), user.ID)
	assert.True(t, reloaded.AvailableBalance.Equal(dbtest.Dec("100")))
	var count int64
	require.NoError(t, client.DB().Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyBalanceChangeOverdraftRecordsEntry(t *testing.T) {
	svc, client := newTestService(t)
	seller := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "0", "300")

	require.NoError(t, apply(t, svc, client, BalanceChange{
		UserID: seller.ID, Field: enums.BalanceFieldPending, Type: enums.TransactionTypeDebit,
		Amount: dbtest.Dec("900"), Reference: "CM3-SELLER-REFUND", Description: "refund", Overdraft: true,
	}))

	reloaded := dbtest.ReloadUser(t, client.DB(), seller.ID)
	assert.True(t, reloaded.PendingBalance.Equal(dbtest.Dec("-600")), "pending %s", reloaded.PendingBalance)

	var entry models.Transaction
	require.NoError(t, client.DB().First(&entry, "reference = ?", "CM3-SELLER-REFUND").Error)
	assert.True(t, entry.BalanceBefore.Equal(dbtest.Dec("300")))
	assert.True(t, entry.BalanceAfter.Equal(dbtest.Dec("-600")))
}

func TestApplyBalanceChangeDuplicateReferenceRollsBack(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "0", "0")
	change := BalanceChange{
		UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit,
		Amount: dbtest.Dec("560"), Reference: "CM2-RIDER-RELEASE", Description: "rider pay",
	}

	require.NoError(t, apply(t, svc, client, change))
	err := apply(t, svc, client, change)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)

	reloaded := dbtest.ReloadUser(t, client.DB(), user.ID)
	assert.True(t, reloaded.AvailableBalance.Equal(dbtest.Dec("560")), "second credit must roll back, got %s", reloaded.AvailableBalance)
}

func TestApplyBalanceChangeValidation(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "0", "0")

	cases := map[string]BalanceChange{
		"missing user": {Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit, Amount: dbtest.Dec("1"), Reference: "r"},
		"bad field":    {UserID: user.ID, Field: "savings", Type: enums.TransactionTypeCredit, Amount: dbtest.Dec("1"), Reference: "r"},
		"bad type":     {UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: "GIFT", Amount: dbtest.Dec("1"), Reference: "r"},
		"zero amount":  {UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit, Amount: dbtest.Dec("0"), Reference: "r"},
		"missing ref":  {UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit, Amount: dbtest.Dec("1")},
	}
	for name, change := range cases {
		t.Run(name, func(t *testing.T) {
			err := apply(t, svc, client, change)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := svc.ApplyBalanceChange(context.Background(), nil, cases["zero amount"])
	assert.Error(t, err)
}

func TestApplyBalanceChangeUnknownUser(t *testing.T) {
	svc, client := newTestService(t)
	err := apply(t, svc, client, BalanceChange{
		UserID: uuid.New(), Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit,
		Amount: dbtest.Dec("1"), Reference: "ghost",
	})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestReplayReconstructsBalances(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleRider, "0", "0")

	steps := []BalanceChange{
		{Field: enums.BalanceFieldPending, Type: enums.TransactionTypeEscrow, Amount: dbtest.Dec("560"), Reference: "A-RIDER-ESCROW"},
		{Field: enums.BalanceFieldPending, Type: enums.TransactionTypeEscrow, Amount: dbtest.Dec("560"), Reference: "B-RIDER-ESCROW"},
		{Field: enums.BalanceFieldPending, Type: enums.TransactionTypeDebit, Amount: dbtest.Dec("560"), Reference: "A-RIDER-ESCROW-RELEASE"},
		{Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit, Amount: dbtest.Dec("560"), Reference: "A-RIDER-RELEASE"},
		{Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeWithdrawal, Amount: dbtest.Dec("60.50"), Reference: "W-USER-WITHDRAWAL"},
	}
	for _, step := range steps {
		step.UserID = user.ID
		step.Description = "step"
		require.NoError(t, apply(t, svc, client, step))
	}

	rec, err := svc.Replay(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 5, rec.Entries)
	assert.True(t, rec.ReplayedAvailable.Equal(dbtest.Dec("499.50")), "available %s", rec.ReplayedAvailable)
	assert.True(t, rec.ReplayedPending.Equal(dbtest.Dec("560")), "pending %s", rec.ReplayedPending)
}

func TestReplayDetectsDrift(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "25", "0")

	rec, err := svc.Replay(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
}

func TestWalletDoesNotClampNegativeBalances(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "10", "-5")

	view, err := svc.Wallet(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, view.PendingBalance.Equal(dbtest.Dec("-5")))
	assert.True(t, view.AvailableBalance.Equal(dbtest.Dec("10")))

	_, err = svc.Wallet(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestRequestWithdrawal(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "1000", "0")

	w, err := svc.RequestWithdrawal(context.Background(), user.ID, dbtest.Dec("400"))
	require.NoError(t, err)
	assert.Equal(t, enums.WithdrawalStatusRequested, w.Status)

	reloaded := dbtest.ReloadUser(t, client.DB(), user.ID)
	assert.True(t, reloaded.AvailableBalance.Equal(dbtest.Dec("600")))

	var entry models.Transaction
	require.NoError(t, client.DB().Where("user_id = ?", user.ID).First(&entry).Error)
	assert.Equal(t, enums.TransactionTypeWithdrawal, entry.Type)
	assert.Equal(t, "WDR-"+w.ID.String()+"-USER-WITHDRAWAL", entry.Reference)

	_, err = svc.RequestWithdrawal(context.Background(), user.ID, dbtest.Dec("600.01"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))

	var withdrawals int64
	require.NoError(t, client.DB().Model(&models.Withdrawal{}).Count(&withdrawals).Error)
	assert.EqualValues(t, 1, withdrawals)

	_, err = svc.RequestWithdrawal(context.Background(), user.ID, dbtest.Dec("1.001"))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestListTransactionsPaginates(t *testing.T) {
	svc, client := newTestService(t)
	user := dbtest.SeedUser(t, client.DB(), enums.UserRoleUser, "0", "0")
	for i := 0; i < 3; i++ {
		require.NoError(t, apply(t, svc, client, BalanceChange{
			UserID: user.ID, Field: enums.BalanceFieldAvailable, Type: enums.TransactionTypeCredit,
			Amount: dbtest.Dec("1"), Reference: uuid.NewString(), Description: "credit",
		}))
	}

	page, err := svc.ListTransactions(context.Background(), user.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.NotEmpty(t, page.NextCursor)

	_, err = svc.ListTransactions(context.Background(), user.ID, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestReference(t *testing.T) {
	assert.Equal(t, "CM123-SELLER-ESCROW-RELEASE", Reference("CM123", "seller", "escrow-release"))
}
