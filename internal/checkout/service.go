package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusmart/campusmart-backend/internal/checkout/helpers"
	"github.com/campusmart/campusmart-backend/internal/checkout/reservation"
	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/campusmart/campusmart-backend/pkg/ordernumber"
	"github.com/campusmart/campusmart-backend/pkg/paystack"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxNoteLength = 500

var errDuplicatePayment = errors.New("payment reference already materialized")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentGateway resolves a reference to the gateway's view of the charge.
type PaymentGateway interface {
	Verify(ctx context.Context, reference string) (*paystack.Verification, error)
}

// Service prices checkouts and turns verified payments into orders.
type Service interface {
	Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

type service struct {
	repo     Repository
	orders   orders.Repository
	ledger   ledger.Service
	gateway  PaymentGateway
	tx       txRunner
	notifier notifications.Notifier
	fees     config.FeesConfig
	logg     *logger.Logger
	metrics  *metrics.Marketplace
	now      func() time.Time
}

// NewService wires checkout orchestration with the required dependencies.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	ledgerSvc ledger.Service,
	gateway PaymentGateway,
	tx txRunner,
	notifier notifications.Notifier,
	fees config.FeesConfig,
	logg *logger.Logger,
	m *metrics.Marketplace,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
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
		ledger:   ledgerSvc,
		gateway:  gateway,
		tx:       tx,
		notifier: notifier,
		fees:     fees,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}, nil
}

func (s *service) Initialize(ctx context.Context, input InitializeInput) (*InitializeResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	requested, err := mergeLines(input.Items)
	if err != nil {
		return nil, err
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("note must be at most %d characters", maxNoteLength))
	}

	ids := make([]uuid.UUID, 0, len(requested))
	for _, line := range requested {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	lines := make([]models.CheckoutLine, 0, len(requested))
	for _, req := range requested {
		product := products[req.ProductID]
		if err := helpers.ValidateLine(product, req.ProductID, "", req.Quantity); err != nil {
			return nil, err
		}
		if err := helpers.ValidateBuyer(product, input.BuyerID); err != nil {
			return nil, err
		}
		lines = append(lines, models.CheckoutLine{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  req.Quantity,
		})
	}

	breakdown := helpers.ComputeBreakdown(lines, s.fees)
	session := &models.CheckoutSession{
		Reference:   newReference(),
		BuyerID:     input.BuyerID,
		Status:      enums.CheckoutStatusPending,
		TotalAmount: helpers.SessionTotal(breakdown),
		Lines:       lines,
		Breakdown:   breakdown,
	}
	if note != "" {
		session.Note = &note
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"buyer_id":  input.BuyerID.String(),
		"reference": session.Reference,
		"sellers":   len(breakdown),
	})
	s.logg.Info(logCtx, "checkout session created")

	return &InitializeResult{
		Reference:   session.Reference,
		Amount:      session.TotalAmount.StringFixed(money.Scale),
		AmountMinor: money.ToMinor(session.TotalAmount),
		Breakdown:   newBreakdownViews(breakdown),
	}, nil
}

func mergeLines(items []LineInput) ([]LineInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	merged := make([]LineInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func newReference() string {
	return "CMP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Verify settles a gateway reference. A reference that already produced
// orders returns them with Duplicate set and performs no writes.
func (s *service) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	ctx = s.logg.WithReference(ctx, reference)

	if existing, err := s.existingOrders(ctx, reference); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	session, err := s.repo.FindSessionByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.PaymentVerification("unknown_reference")
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}

	if session.Status != enums.CheckoutStatusPending {
		return s.settledSession(ctx, reference)
	}

	verification, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.metrics.PaymentVerification("gateway_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify payment")
	}
	if !verification.Succeeded() {
		s.metrics.PaymentVerification("declined")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Payment was not successful").
			WithDetails(map[string]any{"reason": "payment_failed", "gateway_status": verification.Status})
	}
	if !verification.MatchesAmount(session.TotalAmount) {
		s.metrics.PaymentVerification("amount_mismatch")
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"expected_minor": money.ToMinor(session.TotalAmount),
			"paid_minor":     verification.AmountMinor,
		}), "payment amount mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Paid amount does not match the order total").
			WithDetails(map[string]any{"reason": "amount_mismatch"})
	}

	var created []models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.materialize(ctx, tx, session)
		return err
	})
	if errors.Is(err, errDuplicatePayment) {
		return s.settledSession(ctx, reference)
	}
	if err != nil {
		s.metrics.PaymentVerification("rejected")
		return nil, err
	}

	s.metrics.PaymentVerification("materialized")
	for range created {
		s.metrics.OrderTransition(string(enums.OrderStatusPending))
	}
	s.logg.Info(s.logg.WithField(ctx, "orders", len(created)), "payment verified and orders created")
	s.notifier.Notify(ctx, placementMessages(session, created)...)

	return newVerifyResult(reference, created, false), nil
}

func (s *service) existingOrders(ctx context.Context, reference string) (*VerifyResult, error) {
	rows, err := s.orders.FindByPaymentID(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing orders")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	s.metrics.PaymentVerification("duplicate")
	s.logg.Info(ctx, "payment reference already materialized")
	return newVerifyResult(reference, rows, true), nil
}

// settledSession resolves a reference another request already settled.
func (s *service) settledSession(ctx context.Context, reference string) (*VerifyResult, error) {
	existing, err := s.existingOrders(ctx, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment is already being processed")
}

// materialize runs inside tx: stock, orders, escrow and the session flip
// commit together.
func (s *service) materialize(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession) ([]models.Order, error) {
	repo := s.repo.WithTx(tx)
	ordersRepo := s.orders.WithTx(tx)

	current, err := repo.LockSession(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock checkout session")
	}
	if current.Status != enums.CheckoutStatusPending {
		return nil, errDuplicatePayment
	}

	locked, err := repo.LockProducts(ctx, productIDs(session.Lines))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock products")
	}
	if err := validateSessionLines(session.Lines, locked); err != nil {
		return nil, err
	}

	requests := make([]reservation.StockRequest, 0, len(session.Lines))
	for _, line := range session.Lines {
		requests = append(requests, reservation.StockRequest{ProductID: line.ProductID, Name: line.Name, Qty: line.Quantity})
	}
	if err := reservation.ReserveStock(ctx, tx, requests); err != nil {
		return nil, err
	}

	grouped := helpers.GroupLinesBySeller(session.Lines)
	created := make([]models.Order, 0, len(session.Breakdown))
	for _, breakdown := range session.Breakdown {
		order := newOrder(session, breakdown, grouped[breakdown.SellerID])
		if err := ordersRepo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err) {
				return nil, errDuplicatePayment
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if escrow := order.SellerEscrow(); escrow.IsPositive() {
			if _, err := s.ledger.ApplyBalanceChange(ctx, tx, ledger.BalanceChange{
				UserID:      order.SellerID,
				Field:       enums.BalanceFieldPending,
				Type:        enums.TransactionTypeEscrow,
				Amount:      escrow,
				Reference:   ledger.Reference(order.OrderNumber, "SELLER", "ESCROW"),
				Description: fmt.Sprintf("Payment held for order %s", order.OrderNumber),
				OrderID:     &order.ID,
			}); err != nil {
				return nil, err
			}
		}
		created = append(created, *order)
	}

	marked, err := repo.MarkSessionPaid(ctx, session.ID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark session paid")
	}
	if !marked {
		return nil, errDuplicatePayment
	}
	return created, nil
}

func newOrder(session *models.CheckoutSession, breakdown models.SellerBreakdown, lines []models.CheckoutLine) *models.Order {
	sessionID := session.ID
	order := &models.Order{
		OrderNumber:       ordernumber.New(),
		PaymentID:         session.Reference,
		CheckoutSessionID: &sessionID,
		BuyerID:           session.BuyerID,
		SellerID:          breakdown.SellerID,
		Subtotal:          breakdown.Subtotal,
		TotalAmount:       breakdown.Total,
		PlatformComm:      breakdown.Commission,
		DeliveryFee:       breakdown.DeliveryFee,
		Status:            enums.OrderStatusPending,
		BuyerNote:         session.Note,
		Items:             make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			LineTotal:   helpers.LineTotal(line),
		})
	}
	return order
}

func validateSessionLines(lines []models.CheckoutLine, products map[uuid.UUID]*models.Product) error {
	for _, line := range lines {
		if err := helpers.ValidateLine(products[line.ProductID], line.ProductID, line.Name, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func productIDs(lines []models.CheckoutLine) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func placementMessages(session *models.CheckoutSession, created []models.Order) []notifications.Message {
	total := decimal.Zero
	msgs := make([]notifications.Message, 0, len(created)+1)
	for _, order := range created {
		total = total.Add(order.TotalAmount)
		body := fmt.Sprintf("You have a new order %s worth %s.", order.OrderNumber, order.Subtotal.StringFixed(money.Scale))
		if order.BuyerNote != nil {
			body += " Buyer note: " + *order.BuyerNote
		}
		msgs = append(msgs, notifications.Message{
			UserID: order.SellerID,
			Type:   enums.NotificationTypeNewOrder,
			Title:  "New order",
			Body:   body,
			Link:   "/orders/" + order.ID.String(),
		})
	}
	msgs = append(msgs, notifications.Message{
		UserID: session.BuyerID,
		Type:   enums.NotificationTypeOrderPlaced,
		Title:  "Order placed",
		Body:   fmt.Sprintf("Payment of %s received. %d order(s) are waiting for a rider.", total.StringFixed(money.Scale), len(created)),
		Link:   "/orders?reference=" + session.Reference,
	})
	return msgs
}
