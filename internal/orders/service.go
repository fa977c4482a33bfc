package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const availableOrdersLimit = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Cooldown debounces repeated requests for the same key.
type Cooldown interface {
	CooldownKey(scope string, parts ...string) string
	AcquireCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Service drives an order from rider assignment through payout.
type Service interface {
	AcceptOrder(ctx context.Context, input AcceptInput) (*OrderView, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*OrderView, error)
	ConfirmDelivery(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	ListAvailable(ctx context.Context, riderID uuid.UUID) (*AvailableOrders, error)
	CancelOrder(ctx context.Context, input CancelInput) (*OrderView, error)
	Get(ctx context.Context, actor users.Identity, orderID uuid.UUID) (*OrderView, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderPage, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderPage, error)
	ListForRider(ctx context.Context, riderID uuid.UUID, params pagination.Params) (*OrderPage, error)
}

type service struct {
	repo     Repository
	ledger   ledger.Service
	tx       txRunner
	cooldown Cooldown
	notifier notifications.Notifier
	fees     config.FeesConfig
	logg     *logger.Logger
	metrics  *metrics.Marketplace
	now      func() time.Time
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(
	repo Repository,
	ledgerSvc ledger.Service,
	tx txRunner,
	cooldown Cooldown,
	notifier notifications.Notifier,
	fees config.FeesConfig,
	logg *logger.Logger,
	m *metrics.Marketplace,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cooldown == nil {
		return nil, fmt.Errorf("cooldown store required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		ledger:   ledgerSvc,
		tx:       tx,
		cooldown: cooldown,
		notifier: notifier,
		fees:     fees,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (s *service) AcceptOrder(ctx context.Context, input AcceptInput) (*OrderView, error) {
	if input.RiderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var accepted *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rider, err := repo.LockRider(ctx, input.RiderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "rider not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock rider")
		}
		if rider.Role != enums.UserRoleRider {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only riders can accept orders")
		}

		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending || order.IsDisputed || order.RiderID != nil {
			return pkgerrors.Precondition("This order is no longer available", map[string]any{
				"order_id": order.ID,
				"status":   order.Status,
			})
		}

		active, err := repo.CountActiveDeliveries(ctx, rider.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active deliveries")
		}
		if active > 0 {
			return pkgerrors.Precondition("You still have an active delivery. Complete it before accepting a new order", map[string]any{
				"active_deliveries": active,
			})
		}
		pickups, err := repo.CountPendingPickups(ctx, rider.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending pickups")
		}
		if pickups > 0 {
			return pkgerrors.Precondition("You have a dispute pickup to collect before accepting a new order", map[string]any{
				"pending_pickups": pickups,
			})
		}

		now := s.now().UTC()
		claimed, err := repo.ClaimForRider(ctx, order.ID, rider.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order")
		}
		if !claimed {
			return pkgerrors.Precondition("This order was accepted by another rider", map[string]any{
				"order_id": order.ID,
			})
		}

		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
			UserID:      rider.ID,
			Field:       enums.BalanceFieldPending,
			Type:        enums.TransactionTypeEscrow,
			Amount:      s.fees.RiderFee,
			Reference:   ledger.Reference(order.OrderNumber, "RIDER", "ESCROW"),
			Description: fmt.Sprintf("Delivery fee held for order %s", order.OrderNumber),
			OrderID:     &order.ID,
		}); err != nil {
			return err
		}

		accepted, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(enums.OrderStatusRiderAssigned))
	s.logg.Info(s.logg.WithOrderID(s.logg.WithUserID(ctx, input.RiderID.String()), accepted.ID.String()), "order accepted by rider")

	link := orderLink(accepted.ID)
	s.notifier.Notify(ctx,
		notifications.Message{
			UserID: accepted.BuyerID,
			Type:   enums.NotificationTypeOrderUpdate,
			Title:  "Rider assigned",
			Body:   fmt.Sprintf("A rider has accepted order %s.", accepted.OrderNumber),
			Link:   link,
		},
		notifications.Message{
			UserID: accepted.SellerID,
			Type:   enums.NotificationTypeOrderUpdate,
			Title:  "Rider on the way for pickup",
			Body:   fmt.Sprintf("A rider will collect order %s shortly.", accepted.OrderNumber),
			Link:   link,
		},
	)

	view := NewOrderView(accepted)
	return &view, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*OrderView, error) {
	if input.RiderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !IsRiderUpdatable(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be PICKED_UP, ON_THE_WAY or DELIVERED").
			WithDetails(map[string]any{"status": input.Status})
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.RiderID == nil || *order.RiderID != input.RiderID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order is not assigned to you")
		}
		if order.IsDisputed {
			return pkgerrors.Precondition("This order is under dispute; use the dispute pickup flow", map[string]any{
				"order_id": order.ID,
			})
		}
		next, ok := RiderSuccessor(order.Status)
		if !ok || next != input.Status {
			return pkgerrors.Precondition(fmt.Sprintf("Cannot move order from %s to %s", order.Status, input.Status), map[string]any{
				"current_status":   order.Status,
				"requested_status": input.Status,
			})
		}

		fields := map[string]any{}
		if input.Status == enums.OrderStatusDelivered {
			fields["delivered_at"] = s.now().UTC()
		}
		moved, err := repo.UpdateStatus(ctx, order.ID, order.Status, input.Status, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.Precondition("order changed while updating", map[string]any{"order_id": order.ID})
		}

		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(input.Status))
	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, updated.ID.String()), "status", string(input.Status)), "order status updated")

	msg := notifications.Message{
		UserID: updated.BuyerID,
		Type:   enums.NotificationTypeOrderUpdate,
		Title:  "Order update",
		Body:   fmt.Sprintf("Order %s is now %s.", updated.OrderNumber, humanStatus(input.Status)),
		Link:   orderLink(updated.ID),
	}
	if input.Status == enums.OrderStatusDelivered {
		msg.Type = enums.NotificationTypeOrderDelivered
		msg.Title = "Order delivered"
		msg.Body = fmt.Sprintf("Order %s has been delivered. Confirm receipt to release payment.", updated.OrderNumber)
	}
	s.notifier.Notify(ctx, msg)

	view := NewOrderView(updated)
	return &view, nil
}

func (s *service) ConfirmDelivery(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	if err := s.debounceConfirm(ctx, input); err != nil {
		return nil, err
	}

	var (
		result   *models.Order
		already  bool
		released *release
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
		}
		if order.Status == enums.OrderStatusCompleted {
			already = true
			result, err = repo.FindByID(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			return nil
		}
		if order.IsDisputed {
			return pkgerrors.Precondition("This order is under dispute and cannot be confirmed", map[string]any{
				"order_id": order.ID,
			})
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.Precondition("Order has not been delivered yet", map[string]any{
				"current_status": order.Status,
			})
		}

		released, err = s.releaseEscrow(ctx, tx, order)
		if err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if already {
		s.logg.Info(s.logg.WithOrderID(ctx, result.ID.String()), "order already completed")
		return &ConfirmResult{Order: NewOrderView(result), AlreadyCompleted: true}, nil
	}

	s.metrics.OrderTransition(string(enums.OrderStatusCompleted))
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, result.ID.String()), map[string]any{
		"seller_release": released.sellerShare.StringFixed(money.Scale),
		"refund_netted":  released.clawedBack.StringFixed(money.Scale),
	}), "escrow released")
	s.notifier.Notify(ctx, released.messages(result)...)

	return &ConfirmResult{Order: NewOrderView(result)}, nil
}

// debounceConfirm takes the per-(buyer, order) cooldown once the caller is
// known to be the buyer of a confirmable or just-completed order. Attempts
// rejected by the buyer or status guards never hold the cooldown; the locked
// checks inside the transaction stay authoritative.
func (s *service) debounceConfirm(ctx context.Context, input ConfirmInput) error {
	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != input.BuyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm delivery")
	}
	confirmable := order.Status == enums.OrderStatusDelivered && !order.IsDisputed
	if !confirmable && order.Status != enums.OrderStatusCompleted {
		return nil
	}

	key := s.cooldown.CooldownKey("confirm", input.BuyerID.String(), input.OrderID.String())
	acquired, err := s.cooldown.AcquireCooldown(ctx, key, s.fees.ConfirmCooldown)
	if err != nil {
		// the status guard still blocks a second payout
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "confirm cooldown unavailable")
		return nil
	}
	if !acquired {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "Please wait a few seconds before confirming again")
	}
	return nil
}

func (s *service) ListAvailable(ctx context.Context, riderID uuid.UUID) (*AvailableOrders, error) {
	if riderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	open, err := s.repo.ListAvailable(ctx, availableOrdersLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list available orders")
	}
	jobs, err := s.repo.ListPickupJobs(ctx, riderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pickup jobs")
	}
	return &AvailableOrders{
		Orders:     newOrderViews(open),
		PickupJobs: newOrderViews(jobs),
	}, nil
}

func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*OrderView, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled, false) || order.RiderID != nil {
			return pkgerrors.Precondition("Only unassigned pending orders can be cancelled", map[string]any{
				"current_status": order.Status,
			})
		}

		moved, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
			"cancelled_at": s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			return pkgerrors.Precondition("order changed while cancelling", map[string]any{"order_id": order.ID})
		}

		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
			UserID:      order.SellerID,
			Field:       enums.BalanceFieldPending,
			Type:        enums.TransactionTypeDebit,
			Amount:      order.SellerEscrow(),
			Reference:   ledger.Reference(order.OrderNumber, "SELLER", "ESCROW-REVERSAL"),
			Description: fmt.Sprintf("Escrow reversed for cancelled order %s", order.OrderNumber),
			OrderID:     &order.ID,
		}); err != nil {
			return err
		}
		if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
			UserID:      order.BuyerID,
			Field:       enums.BalanceFieldAvailable,
			Type:        enums.TransactionTypeCredit,
			Amount:      order.TotalAmount,
			Reference:   ledger.Reference(order.OrderNumber, "BUYER", "CANCEL-REFUND"),
			Description: fmt.Sprintf("Refund for cancelled order %s", order.OrderNumber),
			OrderID:     &order.ID,
		}); err != nil {
			return err
		}

		cancelled, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		for _, item := range cancelled.Items {
			if err := repo.Restock(ctx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(enums.OrderStatusCancelled))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": cancelled.ID.String(),
		"admin_id": input.AdminID.String(),
		"reason":   input.Reason,
	})
	s.logg.Info(logCtx, "order cancelled")

	body := fmt.Sprintf("Order %s was cancelled.", cancelled.OrderNumber)
	if input.Reason != "" {
		body = fmt.Sprintf("Order %s was cancelled: %s", cancelled.OrderNumber, input.Reason)
	}
	link := orderLink(cancelled.ID)
	s.notifier.Notify(ctx,
		notifications.Message{UserID: cancelled.BuyerID, Type: enums.NotificationTypeOrderCancelled, Title: "Order cancelled", Body: body + " Your payment has been refunded to your wallet.", Link: link},
		notifications.Message{UserID: cancelled.SellerID, Type: enums.NotificationTypeOrderCancelled, Title: "Order cancelled", Body: body, Link: link},
	)

	view := NewOrderView(cancelled)
	return &view, nil
}

func (s *service) Get(ctx context.Context, actor users.Identity, orderID uuid.UUID) (*OrderView, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !canView(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order access denied")
	}
	view := NewOrderView(order)
	return &view, nil
}

func canView(actor users.Identity, order *models.Order) bool {
	switch {
	case actor.IsAdmin():
		return true
	case order.BuyerID == actor.UserID, order.SellerID == actor.UserID:
		return true
	case order.RiderID != nil && *order.RiderID == actor.UserID:
		return true
	}
	return false
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	return s.list(ctx, Filter{BuyerID: &buyerID}, params)
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	return s.list(ctx, Filter{SellerID: &sellerID}, params)
}

func (s *service) ListForRider(ctx context.Context, riderID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	return s.list(ctx, Filter{RiderID: &riderID}, params)
}

func (s *service) list(ctx context.Context, filter Filter, params pagination.Params) (*OrderPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filter, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := &OrderPage{Orders: newOrderViews(rows)}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return order, nil
}

func orderLink(orderID uuid.UUID) string {
	return "/orders/" + orderID.String()
}

func humanStatus(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPickedUp:
		return "picked up"
	case enums.OrderStatusOnTheWay:
		return "on the way"
	case enums.OrderStatusDelivered:
		return "delivered"
	}
	return string(status)
}
