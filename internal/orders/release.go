package orders

import (
	"context"
	"fmt"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// release records what a payout moved so notifications can be sent after commit.
type release struct {
	sellerShare decimal.Decimal
	clawedBack  decimal.Decimal
	riderID     *uuid.UUID
	riderFee    decimal.Decimal
}

// SellerShare is the seller's net proceeds: the order total less the platform
// commission and, when a rider carried the order, the delivery fee.
func SellerShare(order *models.Order) decimal.Decimal {
	share := order.TotalAmount.Sub(order.PlatformComm)
	if order.RiderID != nil {
		share = share.Sub(order.DeliveryFee)
	}
	return money.Round(share)
}

// releaseEscrow completes a DELIVERED order and moves the seller's and the
// rider's escrow from pending to available. A dispute refund already taken
// from the seller's pending balance is netted off the seller's release. It
// must run inside tx; any failure rolls back the status change together with
// the balances.
func (s *service) releaseEscrow(ctx context.Context, tx *gorm.DB, order *models.Order) (*release, error) {
	repo := s.repo.WithTx(tx)
	moved, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusDelivered, enums.OrderStatusCompleted, map[string]any{
		"completed_at": s.now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
	}
	if !moved {
		return nil, pkgerrors.Precondition("Order is not awaiting confirmation", map[string]any{
			"order_id": order.ID,
		})
	}

	refunded, err := repo.RefundedToBuyer(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute refund")
	}
	out := &release{
		sellerShare: decimal.Max(decimal.Zero, money.Round(SellerShare(order).Sub(refunded))),
		clawedBack:  refunded,
	}
	changes := []ledger.BalanceChange{}
	if out.sellerShare.IsPositive() {
		changes = append(changes,
			ledger.BalanceChange{
				UserID:      order.SellerID,
				Field:       enums.BalanceFieldPending,
				Type:        enums.TransactionTypeDebit,
				Amount:      out.sellerShare,
				Reference:   ledger.Reference(order.OrderNumber, "SELLER", "ESCROW-RELEASE"),
				Description: fmt.Sprintf("Escrow released for order %s", order.OrderNumber),
				OrderID:     &order.ID,
			},
			ledger.BalanceChange{
				UserID:      order.SellerID,
				Field:       enums.BalanceFieldAvailable,
				Type:        enums.TransactionTypeCredit,
				Amount:      out.sellerShare,
				Reference:   ledger.Reference(order.OrderNumber, "SELLER", "RELEASE"),
				Description: fmt.Sprintf("Payment for order %s", order.OrderNumber),
				OrderID:     &order.ID,
			},
		)
	}
	if order.RiderID != nil && s.fees.RiderFee.IsPositive() {
		out.riderID = order.RiderID
		out.riderFee = s.fees.RiderFee
		changes = append(changes,
			ledger.BalanceChange{
				UserID:      *order.RiderID,
				Field:       enums.BalanceFieldPending,
				Type:        enums.TransactionTypeDebit,
				Amount:      out.riderFee,
				Reference:   ledger.Reference(order.OrderNumber, "RIDER", "ESCROW-RELEASE"),
				Description: fmt.Sprintf("Delivery fee escrow released for order %s", order.OrderNumber),
				OrderID:     &order.ID,
			},
			ledger.BalanceChange{
				UserID:      *order.RiderID,
				Field:       enums.BalanceFieldAvailable,
				Type:        enums.TransactionTypeCredit,
				Amount:      out.riderFee,
				Reference:   ledger.Reference(order.OrderNumber, "RIDER", "RELEASE"),
				Description: fmt.Sprintf("Delivery fee for order %s", order.OrderNumber),
				OrderID:     &order.ID,
			},
		)
	}

	for _, change := range changes {
		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, change); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *release) messages(order *models.Order) []notifications.Message {
	if r == nil {
		return nil
	}
	link := orderLink(order.ID)
	var msgs []notifications.Message
	if r.sellerShare.IsPositive() {
		msgs = append(msgs, notifications.Message{
			UserID: order.SellerID,
			Type:   enums.NotificationTypeFundsReleased,
			Title:  "Funds released",
			Body:   fmt.Sprintf("%s from order %s is now available in your wallet.", r.sellerShare.StringFixed(money.Scale), order.OrderNumber),
			Link:   link,
		})
	}
	if r.riderID != nil {
		msgs = append(msgs, notifications.Message{
			UserID: *r.riderID,
			Type:   enums.NotificationTypeFundsReleased,
			Title:  "Delivery fee released",
			Body:   fmt.Sprintf("%s for delivering order %s is now available in your wallet.", r.riderFee.StringFixed(money.Scale), order.OrderNumber),
			Link:   link,
		})
	}
	return msgs
}
