package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/internal/users"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db"
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

const (
	maxReasonLength  = 2000
	maxMessageLength = 2000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service adjudicates buyer disputes, including the refund-with-return flow.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*DisputeView, error)
	Resolve(ctx context.Context, input ResolveInput) (*DisputeView, error)
	Pickup(ctx context.Context, input PickupInput) (*DisputeView, error)
	MarkPickedUp(ctx context.Context, input PickedUpInput) (*orders.OrderView, error)
	Get(ctx context.Context, actor users.Identity, disputeID uuid.UUID) (*DisputeView, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*DisputePage, error)
	ListAdmin(ctx context.Context, status *enums.DisputeStatus, params pagination.Params) (*DisputePage, error)
	PostMessage(ctx context.Context, actor users.Identity, disputeID uuid.UUID, body string) (*MessageView, error)
	ListMessages(ctx context.Context, actor users.Identity, disputeID uuid.UUID) ([]MessageView, error)
}

type service struct {
	repo     Repository
	orders   orders.Repository
	users    *users.Repository
	ledger   ledger.Service
	tx       txRunner
	notifier notifications.Notifier
	fees     config.FeesConfig
	logg     *logger.Logger
	metrics  *metrics.Marketplace
	now      func() time.Time
}

// NewService wires the dispute service.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	usersRepo *users.Repository,
	ledgerSvc ledger.Service,
	tx txRunner,
	notifier notifications.Notifier,
	fees config.FeesConfig,
	logg *logger.Logger,
	m *metrics.Marketplace,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("disputes repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		orders:   ordersRepo,
		users:    usersRepo,
		ledger:   ledgerSvc,
		tx:       tx,
		notifier: notifier,
		fees:     fees,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*DisputeView, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}

	var (
		created *models.Dispute
		order   *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		var err error
		order, err = lockOrder(ctx, ordersRepo, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can dispute this order")
		}
		if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusCompleted {
			return pkgerrors.Precondition("Only delivered orders can be disputed", map[string]any{
				"current_status": order.Status,
			})
		}
		if order.DeliveredAt == nil || s.now().Sub(*order.DeliveredAt) > s.fees.DisputeWindow {
			return pkgerrors.Precondition("The dispute window for this order has closed", map[string]any{
				"window_days": int(s.fees.DisputeWindow.Hours() / 24),
			})
		}

		exists, err := repo.ExistsForOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing dispute")
		}
		if exists || order.IsDisputed {
			return pkgerrors.New(pkgerrors.CodeConflict, "A dispute already exists for this order")
		}

		created = &models.Dispute{
			OrderID:     order.ID,
			BuyerID:     order.BuyerID,
			SellerID:    order.SellerID,
			Reason:      reason,
			Status:      enums.DisputeStatusOpen,
			PickupStage: enums.PickupStageNone,
		}
		if pref := strings.TrimSpace(input.ResolutionPreference); pref != "" {
			created.ResolutionPreference = &pref
		}
		if err := repo.Create(ctx, created); err != nil {
			if isUnique(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "A dispute already exists for this order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute")
		}
		if err := ordersRepo.Update(ctx, order.ID, map[string]any{"is_disputed": true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order disputed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DisputeAction("open")
	s.logg.Info(s.logg.WithOrderID(s.logg.WithDisputeID(ctx, created.ID.String()), order.ID.String()), "dispute opened")

	link := disputeLink(created.ID)
	msgs := []notifications.Message{{
		UserID: order.SellerID,
		Type:   enums.NotificationTypeDisputeUpdate,
		Title:  "Dispute opened",
		Body:   fmt.Sprintf("The buyer opened a dispute on order %s.", order.OrderNumber),
		Link:   link,
	}}
	msgs = append(msgs, s.adminMessages(ctx, notifications.Message{
		Type:  enums.NotificationTypeDisputeUpdate,
		Title: "New dispute",
		Body:  fmt.Sprintf("Order %s has a new dispute: %s", order.OrderNumber, reason),
		Link:  "/admin" + link,
	})...)
	s.notifier.Notify(ctx, msgs...)

	view := NewDisputeView(created)
	return &view, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*DisputeView, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Status.IsValid() || input.Status == enums.DisputeStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be UNDER_REVIEW, a resolution, or DISMISSED").
			WithDetails(map[string]any{"status": input.Status})
	}
	if input.RefundAmount != nil {
		if !input.Status.RefundsBuyer() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refunds only apply to buyer-favour or compromise resolutions")
		}
		if !input.RefundAmount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
	}
	if input.Penalty != nil && !input.Penalty.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown penalty type")
	}

	var (
		resolved *models.Dispute
		order    *models.Order
		refunded bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		dispute, err := lockDispute(ctx, repo, input.DisputeID)
		if err != nil {
			return err
		}
		if dispute.Status.IsTerminal() {
			return pkgerrors.Precondition("This dispute is already closed", map[string]any{
				"status": dispute.Status,
			})
		}
		order, err = lockOrder(ctx, ordersRepo, dispute.OrderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		fields := map[string]any{"status": input.Status}
		if text := strings.TrimSpace(input.Resolution); text != "" {
			fields["resolution"] = text
		}
		if note := strings.TrimSpace(input.AdminNote); note != "" {
			fields["admin_note"] = note
		}

		if input.RefundAmount != nil {
			if dispute.RefundReleased {
				return pkgerrors.Precondition("A refund has already been released for this dispute", map[string]any{
					"refund_amount": dispute.RefundAmount,
				})
			}
			if dispute.PickupStage != enums.PickupStageNone {
				return pkgerrors.Precondition("A pickup is in progress; release the refund through the pickup flow", map[string]any{
					"pickup_stage": dispute.PickupStage,
				})
			}
			amount := money.Round(*input.RefundAmount)
			if amount.GreaterThan(order.TotalAmount) {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds the order total").
					WithDetails(map[string]any{"order_total": order.TotalAmount.StringFixed(money.Scale)})
			}
			fee, net, err := s.refund(ctx, tx, order, amount, "REFUND")
			if err != nil {
				return err
			}
			fields["refund_amount"] = amount
			fields["processing_fee"] = fee
			fields["refund_released"] = true
			refunded = net.IsPositive()
		}

		if input.Status.IsTerminal() {
			if dispute.PickupInFlight() {
				return pkgerrors.Precondition("Finish the pickup flow before closing this dispute", map[string]any{
					"pickup_stage":    dispute.PickupStage,
					"refund_released": dispute.RefundReleased,
					"rider_paid":      dispute.RiderPaid,
				})
			}
			fields["resolved_at"] = now
			fields["resolved_by"] = input.AdminID
			if err := ordersRepo.Update(ctx, order.ID, map[string]any{"is_disputed": false}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear order dispute flag")
			}
		}

		if err := repo.Update(ctx, dispute.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dispute")
		}

		if input.Penalty != nil {
			if err := s.users.WithTx(tx).AddPenalty(ctx, &models.Penalty{
				UserID:    dispute.BuyerID,
				DisputeID: &dispute.ID,
				Type:      input.Penalty.Type,
				Points:    input.Penalty.Type.Points(),
				Reason:    strings.TrimSpace(input.Penalty.Reason),
				IssuedBy:  input.AdminID,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record penalty")
			}
		}

		resolved, err = repo.FindByID(ctx, dispute.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload dispute")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DisputeAction("resolve")
	s.logg.Info(s.logg.WithFields(s.logg.WithDisputeID(ctx, resolved.ID.String()), map[string]any{
		"status":   string(resolved.Status),
		"admin_id": input.AdminID.String(),
	}), "dispute resolved")

	link := disputeLink(resolved.ID)
	body := fmt.Sprintf("Your dispute on order %s is now %s.", order.OrderNumber, humanStatus(resolved.Status))
	if refunded {
		body = fmt.Sprintf("%s A refund of %s has been added to your wallet.", body, refundNet(resolved).StringFixed(money.Scale))
	}
	msgs := []notifications.Message{
		{UserID: resolved.BuyerID, Type: enums.NotificationTypeDisputeUpdate, Title: "Dispute update", Body: body, Link: link},
		{
			UserID: resolved.SellerID,
			Type:   enums.NotificationTypeDisputeUpdate,
			Title:  "Dispute update",
			Body:   fmt.Sprintf("The dispute on order %s is now %s.", order.OrderNumber, humanStatus(resolved.Status)),
			Link:   link,
		},
	}
	if input.Penalty != nil {
		msgs = append(msgs, notifications.Message{
			UserID: resolved.BuyerID,
			Type:   enums.NotificationTypeAccountPenalty,
			Title:  "Account penalty",
			Body:   fmt.Sprintf("A %s was issued on your account: %s", input.Penalty.Type, input.Penalty.Reason),
		})
	}
	s.notifier.Notify(ctx, msgs...)

	view := NewDisputeView(resolved)
	return &view, nil
}

func (s *service) Get(ctx context.Context, actor users.Identity, disputeID uuid.UUID) (*DisputeView, error) {
	dispute, err := s.visibleDispute(ctx, actor, disputeID, true)
	if err != nil {
		return nil, err
	}
	view := NewDisputeView(dispute)
	return &view, nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*DisputePage, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, Filter{BuyerID: &buyerID}, params)
}

func (s *service) ListAdmin(ctx context.Context, status *enums.DisputeStatus, params pagination.Params) (*DisputePage, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown dispute status")
	}
	return s.list(ctx, Filter{Status: status}, params)
}

func (s *service) list(ctx context.Context, filter Filter, params pagination.Params) (*DisputePage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filter, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list disputes")
	}
	page := &DisputePage{Disputes: make([]DisputeView, 0, len(rows))}
	for i := range rows {
		page.Disputes = append(page.Disputes, NewDisputeView(&rows[i]))
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) PostMessage(ctx context.Context, actor users.Identity, disputeID uuid.UUID, body string) (*MessageView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}
	if len(body) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	dispute, err := s.visibleDispute(ctx, actor, disputeID, false)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsTerminal() {
		return nil, pkgerrors.Precondition("This dispute is closed", map[string]any{"status": dispute.Status})
	}

	role := "buyer"
	if actor.IsAdmin() {
		role = string(enums.UserRoleAdmin)
	}
	msg := &models.DisputeMessage{
		DisputeID:  dispute.ID,
		SenderID:   actor.UserID,
		SenderRole: role,
		Body:       body,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create dispute message")
	}

	link := disputeLink(dispute.ID)
	note := notifications.Message{
		Type:  enums.NotificationTypeDisputeMessage,
		Title: "New dispute message",
		Body:  preview(body),
		Link:  link,
	}
	if actor.IsAdmin() {
		note.UserID = dispute.BuyerID
		s.notifier.Notify(ctx, note)
	} else {
		note.Link = "/admin" + link
		s.notifier.Notify(ctx, s.adminMessages(ctx, note)...)
	}

	view := newMessageView(msg)
	return &view, nil
}

func (s *service) ListMessages(ctx context.Context, actor users.Identity, disputeID uuid.UUID) ([]MessageView, error) {
	dispute, err := s.visibleDispute(ctx, actor, disputeID, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMessages(ctx, dispute.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dispute messages")
	}
	out := make([]MessageView, 0, len(rows))
	for i := range rows {
		out = append(out, newMessageView(&rows[i]))
	}
	return out, nil
}

// visibleDispute loads the dispute when the actor is an admin or its buyer.
// Sellers may read the dispute itself but not the buyer/admin chat.
func (s *service) visibleDispute(ctx context.Context, actor users.Identity, disputeID uuid.UUID, sellerAllowed bool) (*models.Dispute, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	dispute, err := s.repo.FindByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dispute")
	}
	switch {
	case actor.IsAdmin(), dispute.BuyerID == actor.UserID:
		return dispute, nil
	case sellerAllowed && dispute.SellerID == actor.UserID:
		return dispute, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dispute access denied")
}

// adminMessages addresses msg to every admin. A lookup failure only costs the
// notification.
func (s *service) adminMessages(ctx context.Context, msg notifications.Message) []notifications.Message {
	ids, err := s.users.ListIDsByRole(ctx, enums.UserRoleAdmin)
	if err != nil {
		s.logg.Error(ctx, "list admins for notification", err)
		return nil
	}
	return notifications.Fanout(ids, msg)
}

func lockOrder(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return order, nil
}

func lockDispute(ctx context.Context, repo Repository, disputeID uuid.UUID) (*models.Dispute, error) {
	if disputeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute id required")
	}
	dispute, err := repo.LockByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock dispute")
	}
	return dispute, nil
}

func isUnique(err error) bool {
	return db.IsUniqueViolation(err)
}

func disputeLink(id uuid.UUID) string {
	return "/disputes/" + id.String()
}

func preview(body string) string {
	const limit = 140
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}

func humanStatus(status enums.DisputeStatus) string {
	switch status {
	case enums.DisputeStatusUnderReview:
		return "under review"
	case enums.DisputeStatusResolvedBuyerFavor:
		return "resolved in the buyer's favour"
	case enums.DisputeStatusResolvedSellerFavor:
		return "resolved in the seller's favour"
	case enums.DisputeStatusResolvedCompromise:
		return "resolved with a compromise"
	case enums.DisputeStatusDismissed:
		return "dismissed"
	}
	return strings.ToLower(string(status))
}
