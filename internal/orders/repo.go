package orders

import (
	"context"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/campusmart/campusmart-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter narrows order listings to one party of the order.
type Filter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	RiderID  *uuid.UUID
	Status   *enums.OrderStatus
}

// Repository persists orders and the stock they touch.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) ([]models.Order, error)
	LockRider(ctx context.Context, riderID uuid.UUID) (*models.User, error)
	ClaimForRider(ctx context.Context, orderID, riderID uuid.UUID, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
	Update(ctx context.Context, orderID uuid.UUID, fields map[string]any) error
	CountActiveDeliveries(ctx context.Context, riderID uuid.UUID) (int64, error)
	CountPendingPickups(ctx context.Context, riderID uuid.UUID) (int64, error)
	ListAvailable(ctx context.Context, limit int) ([]models.Order, error)
	ListPickupJobs(ctx context.Context, riderID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, filter Filter, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error)
	Restock(ctx context.Context, productID uuid.UUID, qty int) error
	RefundedToBuyer(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID string) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("payment_id = ?", paymentID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) LockRider(ctx context.Context, riderID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", riderID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ClaimForRider assigns the rider only while the order is still PENDING and
// unassigned. The boolean is false when another rider won the race.
func (r *repository) ClaimForRider(ctx context.Context, orderID, riderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND rider_id IS NULL AND is_disputed = ?", orderID, enums.OrderStatusPending, false).
		Updates(map[string]any{
			"rider_id":          riderID,
			"status":            enums.OrderStatusRiderAssigned,
			"rider_assigned_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatus moves the order from one status to another, applying extra
// columns in the same statement. It reports false when the order was no
// longer in the expected status.
func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(fields).Error
}

func (r *repository) CountActiveDeliveries(ctx context.Context, riderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("rider_id = ? AND is_disputed = ? AND status IN ?", riderID, false, enums.ActiveDeliveryStatuses).
		Count(&count).Error
	return count, err
}

func (r *repository) pickupJobs(ctx context.Context, riderID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Joins("JOIN disputes ON disputes.order_id = orders.id").
		Where("orders.rider_id = ? AND orders.is_disputed = ?", riderID, true).
		Where("disputes.pickup_stage = ?", enums.PickupStageAwaitingPickup).
		Where("disputes.status IN ?", []enums.DisputeStatus{enums.DisputeStatusOpen, enums.DisputeStatusUnderReview})
}

func (r *repository) CountPendingPickups(ctx context.Context, riderID uuid.UUID) (int64, error) {
	var count int64
	err := r.pickupJobs(ctx, riderID).Count(&count).Error
	return count, err
}

func (r *repository) ListAvailable(ctx context.Context, limit int) ([]models.Order, error) {
	var rows []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND is_disputed = ? AND rider_id IS NULL", enums.OrderStatusPending, false).
		Order("created_at ASC, id ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPickupJobs(ctx context.Context, riderID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	if err := r.pickupJobs(ctx, riderID).
		Preload("Items").
		Select("orders.*").
		Order("orders.created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) List(ctx context.Context, filter Filter, limit int, cursor *pagination.Cursor) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filter.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.RiderID != nil {
		query = query.Where("rider_id = ?", *filter.RiderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var rows []models.Order
	if err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, limit, func(o models.Order) (time.Time, uuid.UUID) { return o.CreatedAt, o.ID })
	return page, next, nil
}

func (r *repository) Restock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty)).Error
}

// RefundedToBuyer is the net dispute refund already taken back from the
// seller's pending balance for orderID. Zero when no refund was released.
func (r *repository) RefundedToBuyer(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND refund_released = ?", orderID, true).
		Limit(1).
		Find(&dispute).Error
	if err != nil {
		return decimal.Zero, err
	}
	if dispute.ID == uuid.Nil || dispute.RefundAmount == nil {
		return decimal.Zero, nil
	}
	net := *dispute.RefundAmount
	if dispute.ProcessingFee != nil {
		net = net.Sub(*dispute.ProcessingFee)
	}
	return money.Round(net), nil
}
