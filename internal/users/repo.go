package users

import (
	"context"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads accounts and applies moderation. Balances are owned by
// the ledger package and never written here.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := new(models.User)
	if err := r.db.WithContext(ctx).Take(user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// ListIDsByRole returns every holder of role, oldest account first.
func (r *Repository) ListIDsByRole(ctx context.Context, role enums.UserRole) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", role).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListIDsAfter returns up to limit ids greater than after, ascending. Pass
// uuid.Nil for the first page.
func (r *Repository) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// AddPenalty stores the penalty row and applies its points. Suspension and
// ban penalties also flag the account, which the Resolver then rejects.
// Run it inside the dispute resolution transaction.
func (r *Repository) AddPenalty(ctx context.Context, penalty *models.Penalty) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(penalty).Error; err != nil {
		return err
	}
	changes := map[string]any{"penalty_points": gorm.Expr("penalty_points + ?", penalty.Points)}
	if penalty.Type.Suspends() {
		changes["is_suspended"] = true
		changes["suspended_reason"] = penalty.Reason
	}
	return db.Model(&models.User{}).Where("id = ?", penalty.UserID).Updates(changes).Error
}
