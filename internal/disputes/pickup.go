package disputes

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const pickupResolution = "Refund issued after the item was returned"

// pickupStep carries the state of one refund-with-return action through the
// transaction and the notifications sent once it commits.
type pickupStep struct {
	dispute  *models.Dispute
	order    *models.Order
	adminID  uuid.UUID
	fields   map[string]any
	messages []notifications.Message
	finished bool
}

func (s *service) Pickup(ctx context.Context, input PickupInput) (*DisputeView, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown pickup action").
			WithDetails(map[string]any{"action": input.Action})
	}

	var (
		step    *pickupStep
		updated *models.Dispute
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		dispute, err := lockDispute(ctx, repo, input.DisputeID)
		if err != nil {
			return err
		}
		if dispute.Status.IsTerminal() {
			return pkgerrors.Precondition("This dispute is already closed", map[string]any{
				"status": dispute.Status,
			})
		}
		order, err := lockOrder(ctx, s.orders.WithTx(tx), dispute.OrderID)
		if err != nil {
			return err
		}

		step = &pickupStep{dispute: dispute, order: order, adminID: input.AdminID, fields: map[string]any{}}
		switch input.Action {
		case enums.PickupActionSendRider:
			err = s.sendRider(ctx, tx, step)
		case enums.PickupActionConfirmReceived:
			err = s.confirmReceived(step)
		case enums.PickupActionReleaseRefund:
			err = s.releaseRefund(ctx, tx, step)
		case enums.PickupActionReleaseRiderPay:
			err = s.releaseRiderPay(ctx, tx, step)
		}
		if err != nil {
			return err
		}

		if err := repo.Update(ctx, dispute.ID, step.fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispute")
		}
		updated, err = repo.FindByID(ctx, dispute.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload dispute")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DisputeAction(string(input.Action))
	if step.finished {
		s.metrics.OrderTransition(string(enums.OrderStatusCancelled))
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithDisputeID(ctx, updated.ID.String()), map[string]any{
		"action":       string(input.Action),
		"pickup_stage": string(updated.PickupStage),
		"status":       string(updated.Status),
	}), "dispute pickup step applied")
	s.notifier.Notify(ctx, step.messages...)

	view := NewDisputeView(updated)
	return &view, nil
}

func (s *service) sendRider(ctx context.Context, tx *gorm.DB, step *pickupStep) error {
	dispute, order := step.dispute, step.order
	if order.RiderID == nil {
		return pkgerrors.Precondition("This order has no rider to collect the item", map[string]any{
			"order_id": order.ID,
		})
	}
	if dispute.PickupStage != enums.PickupStageNone {
		return pkgerrors.Precondition("A pickup has already been dispatched", map[string]any{
			"pickup_stage": dispute.PickupStage,
		})
	}
	if dispute.RefundReleased {
		return pkgerrors.Precondition("A refund has already been released for this dispute", nil)
	}
	if !orders.CanTransition(order.Status, enums.OrderStatusRiderAssigned, true) {
		return pkgerrors.Precondition(fmt.Sprintf("Cannot send a rider for an order that is %s", order.Status), map[string]any{
			"current_status": order.Status,
		})
	}

	moved, err := s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusRiderAssigned, map[string]any{
		"is_disputed":       true,
		"rider_assigned_at": s.now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign pickup rider")
	}
	if !moved {
		return pkgerrors.Precondition("order changed while dispatching the pickup", map[string]any{"order_id": order.ID})
	}

	if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
		UserID:      *order.RiderID,
		Field:       enums.BalanceFieldPending,
		Type:        enums.TransactionTypeEscrow,
		Amount:      s.fees.RiderFee,
		Reference:   ledger.Reference(order.OrderNumber, "RIDER", "PICKUP-ESCROW"),
		Description: fmt.Sprintf("Return pickup fee held for order %s", order.OrderNumber),
		OrderID:     &order.ID,
	}); err != nil {
		return err
	}

	step.fields["pickup_stage"] = enums.PickupStageAwaitingPickup
	step.fields["status"] = enums.DisputeStatusUnderReview
	step.messages = append(step.messages,
		notifications.Message{
			UserID: *order.RiderID,
			Type:   enums.NotificationTypePickupAssigned,
			Title:  "Return pickup assigned",
			Body: fmt.Sprintf("Collect the item for order %s from the buyer. You earn %s once it is returned.",
				order.OrderNumber, s.fees.RiderFee.StringFixed(money.Scale)),
			Link: "/orders/" + order.ID.String(),
		},
		notifications.Message{
			UserID: dispute.BuyerID,
			Type:   enums.NotificationTypeDisputeUpdate,
			Title:  "Rider on the way",
			Body:   fmt.Sprintf("A rider will collect the item for order %s.", order.OrderNumber),
			Link:   disputeLink(dispute.ID),
		},
	)
	return nil
}

func (s *service) confirmReceived(step *pickupStep) error {
	dispute := step.dispute
	if dispute.PickupStage != enums.PickupStageAwaitingPickup {
		return pkgerrors.Precondition("No pickup is awaiting confirmation", map[string]any{
			"pickup_stage": dispute.PickupStage,
		})
	}
	if dispute.CollectedAt == nil {
		return pkgerrors.Precondition("The rider has not collected the item yet", map[string]any{
			"pickup_stage": dispute.PickupStage,
		})
	}
	step.fields["pickup_stage"] = enums.PickupStageItemReceived
	step.messages = append(step.messages, notifications.Message{
		UserID: dispute.BuyerID,
		Type:   enums.NotificationTypeDisputeUpdate,
		Title:  "Item received",
		Body:   fmt.Sprintf("We have received the returned item for order %s.", step.order.OrderNumber),
		Link:   disputeLink(dispute.ID),
	})
	return nil
}

func (s *service) releaseRefund(ctx context.Context, tx *gorm.DB, step *pickupStep) error {
	dispute, order := step.dispute, step.order
	if dispute.PickupStage != enums.PickupStageItemReceived {
		return pkgerrors.Precondition("The returned item has not been received", map[string]any{
			"pickup_stage": dispute.PickupStage,
		})
	}
	if dispute.RefundReleased {
		return pkgerrors.Precondition("The refund has already been released", nil)
	}

	fee, net, err := s.refund(ctx, tx, order, order.TotalAmount, "PICKUP-REFUND")
	if err != nil {
		return err
	}
	step.fields["refund_released"] = true
	step.fields["refund_amount"] = order.TotalAmount
	step.fields["processing_fee"] = fee
	step.messages = append(step.messages, notifications.Message{
		UserID: dispute.BuyerID,
		Type:   enums.NotificationTypeDisputeUpdate,
		Title:  "Refund released",
		Body: fmt.Sprintf("%s has been refunded to your wallet for order %s.",
			net.StringFixed(money.Scale), order.OrderNumber),
		Link: disputeLink(dispute.ID),
	})

	if dispute.RiderPaid {
		return s.finish(ctx, tx, step)
	}
	return nil
}

func (s *service) releaseRiderPay(ctx context.Context, tx *gorm.DB, step *pickupStep) error {
	dispute, order := step.dispute, step.order
	if dispute.PickupStage != enums.PickupStageItemReceived {
		return pkgerrors.Precondition("The returned item has not been received", map[string]any{
			"pickup_stage": dispute.PickupStage,
		})
	}
	if dispute.RiderPaid {
		return pkgerrors.Precondition("The rider has already been paid", nil)
	}
	if order.RiderID == nil {
		return pkgerrors.Precondition("This order has no rider to pay", nil)
	}

	changes := []ledger.BalanceChange{
		{
			UserID:      *order.RiderID,
			Field:       enums.BalanceFieldPending,
			Type:        enums.TransactionTypeDebit,
			Amount:      s.fees.RiderFee,
			Reference:   ledger.Reference(order.OrderNumber, "RIDER", "PICKUP-ESCROW-RELEASE"),
			Description: fmt.Sprintf("Return pickup escrow released for order %s", order.OrderNumber),
			OrderID:     &order.ID,
		},
		{
			UserID:      *order.RiderID,
			Field:       enums.BalanceFieldAvailable,
			Type:        enums.TransactionTypeCredit,
			Amount:      s.fees.RiderFee,
			Reference:   ledger.Reference(order.OrderNumber, "RIDER", "PICKUP-PAY"),
			Description: fmt.Sprintf("Return pickup payment for order %s", order.OrderNumber),
			OrderID:     &order.ID,
		},
	}
	for _, change := range changes {
		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, change); err != nil {
			return err
		}
	}

	step.fields["rider_paid"] = true
	step.messages = append(step.messages, notifications.Message{
		UserID: *order.RiderID,
		Type:   enums.NotificationTypeFundsReleased,
		Title:  "Pickup payment released",
		Body: fmt.Sprintf("%s for the return pickup of order %s is now available.",
			s.fees.RiderFee.StringFixed(money.Scale), order.OrderNumber),
		Link: "/orders/" + order.ID.String(),
	})

	if dispute.RefundReleased {
		return s.finish(ctx, tx, step)
	}
	return nil
}

// finish closes the dispute in the buyer's favour and cancels the order once
// both the refund and the rider payment have been released. An order that
// never completed still holds the delivery fee escrowed at accept; it is
// reversed because the goods came back and the order is cancelled.
func (s *service) finish(ctx context.Context, tx *gorm.DB, step *pickupStep) error {
	dispute, order := step.dispute, step.order
	now := s.now().UTC()

	if order.CompletedAt == nil && order.RiderID != nil && s.fees.RiderFee.IsPositive() {
		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
			UserID:      *order.RiderID,
			Field:       enums.BalanceFieldPending,
			Type:        enums.TransactionTypeDebit,
			Amount:      s.fees.RiderFee,
			Reference:   ledger.Reference(order.OrderNumber, "RIDER", "ESCROW-REVERSAL"),
			Description: fmt.Sprintf("Delivery fee escrow reversed for returned order %s", order.OrderNumber),
			OrderID:     &order.ID,
		}); err != nil {
			return err
		}
	}

	fields := map[string]any{
		"is_disputed":  false,
		"cancelled_at": now,
	}
	if orders.CanTransition(order.Status, enums.OrderStatusCancelled, true) {
		moved, err := s.orders.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel returned order")
		}
		if !moved {
			return pkgerrors.Precondition("order changed while closing the dispute", map[string]any{"order_id": order.ID})
		}
	} else {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"status":   string(order.Status),
		}), "returned order not in a cancellable state")
		if err := s.orders.WithTx(tx).Update(ctx, order.ID, map[string]any{"is_disputed": false}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear order dispute flag")
		}
	}

	step.fields["status"] = enums.DisputeStatusResolvedBuyerFavor
	step.fields["resolved_at"] = now
	step.fields["resolved_by"] = step.adminID
	if dispute.Resolution == nil {
		step.fields["resolution"] = pickupResolution
	}
	step.finished = true
	step.messages = append(step.messages,
		notifications.Message{
			UserID: dispute.BuyerID,
			Type:   enums.NotificationTypeDisputeUpdate,
			Title:  "Dispute resolved",
			Body:   fmt.Sprintf("Your dispute on order %s was resolved in your favour.", order.OrderNumber),
			Link:   disputeLink(dispute.ID),
		},
		notifications.Message{
			UserID: dispute.SellerID,
			Type:   enums.NotificationTypeDisputeUpdate,
			Title:  "Dispute resolved",
			Body:   fmt.Sprintf("The dispute on order %s was resolved in the buyer's favour after the item was returned.", order.OrderNumber),
			Link:   disputeLink(dispute.ID),
		},
	)
	return nil
}

// refund credits the buyer the amount net of the processing fee and takes the
// same net amount back from the seller's pending balance, which may overdraw
// once the escrow has already been released.
func (s *service) refund(ctx context.Context, tx *gorm.DB, order *models.Order, amount decimal.Decimal, event string) (fee, net decimal.Decimal, err error) {
	fee, net = money.SplitFee(amount, s.fees.DisputeFeeRate)
	if !net.IsPositive() {
		return fee, net, nil
	}
	if _, err = s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
		UserID:      order.BuyerID,
		Field:       enums.BalanceFieldAvailable,
		Type:        enums.TransactionTypeCredit,
		Amount:      net,
		Reference:   ledger.Reference(order.OrderNumber, "BUYER", event),
		Description: fmt.Sprintf("Dispute refund for order %s", order.OrderNumber),
		OrderID:     &order.ID,
	}); err != nil {
		return fee, net, err
	}
	if _, err = s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
		UserID:      order.SellerID,
		Field:       enums.BalanceFieldPending,
		Type:        enums.TransactionTypeDebit,
		Amount:      net,
		Reference:   ledger.Reference(order.OrderNumber, "SELLER", event),
		Description: fmt.Sprintf("Dispute refund clawback for order %s", order.OrderNumber),
		OrderID:     &order.ID,
		Overdraft:   true,
	}); err != nil {
		return fee, net, err
	}
	return fee, net, nil
}

func refundNet(d *models.Dispute) decimal.Decimal {
	if d.RefundAmount == nil {
		return decimal.Zero
	}
	if d.ProcessingFee == nil {
		return *d.RefundAmount
	}
	return money.Round(d.RefundAmount.Sub(*d.ProcessingFee))
}

func (s *service) MarkPickedUp(ctx context.Context, input PickedUpInput) (*orders.OrderView, error) {
	if input.RiderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		updated *models.Order
		dispute *models.Dispute
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		repo := s.repo.WithTx(tx)

		order, err := lockOrder(ctx, ordersRepo, input.OrderID)
		if err != nil {
			return err
		}
		if order.RiderID == nil || *order.RiderID != input.RiderID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
		}
		if !order.IsDisputed || order.Status != enums.OrderStatusRiderAssigned {
			return pkgerrors.Precondition("This order has no return pickup waiting", map[string]any{
				"current_status": order.Status,
				"is_disputed":    order.IsDisputed,
			})
		}

		dispute, err = repo.LockByOrderID(ctx, order.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock dispute")
		}
		if dispute.Status.IsTerminal() || dispute.PickupStage != enums.PickupStageAwaitingPickup || dispute.CollectedAt != nil {
			return pkgerrors.Precondition("This order has no return pickup waiting", map[string]any{
				"pickup_stage": dispute.PickupStage,
			})
		}

		now := s.now().UTC()
		moved, err := ordersRepo.UpdateStatus(ctx, order.ID, enums.OrderStatusRiderAssigned, enums.OrderStatusPickedUp, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark return picked up")
		}
		if !moved {
			return pkgerrors.Precondition("order changed while updating", map[string]any{"order_id": order.ID})
		}
		if err := repo.Update(ctx, dispute.ID, map[string]any{"collected_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record collection")
		}

		updated, err = ordersRepo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(enums.OrderStatusPickedUp))
	s.metrics.DisputeAction("picked_up")
	s.logg.Info(s.logg.WithOrderID(s.logg.WithUserID(ctx, input.RiderID.String()), updated.ID.String()), "return item collected")

	link := disputeLink(dispute.ID)
	msgs := s.adminMessages(ctx, notifications.Message{
		Type:  enums.NotificationTypeDisputeUpdate,
		Title: "Return collected",
		Body:  fmt.Sprintf("The rider collected the item for order %s. Confirm once it arrives.", updated.OrderNumber),
		Link:  "/admin" + link,
	})
	msgs = append(msgs, notifications.Message{
		UserID: updated.BuyerID,
		Type:   enums.NotificationTypeDisputeUpdate,
		Title:  "Item collected",
		Body:   fmt.Sprintf("The rider has collected the item for order %s.", updated.OrderNumber),
		Link:   link,
	})
	s.notifier.Notify(ctx, msgs...)

	view := orders.NewOrderView(updated)
	return &view, nil
}
