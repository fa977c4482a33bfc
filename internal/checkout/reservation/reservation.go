// Package reservation decrements product stock inside a materialization
// transaction.
package reservation

import (
	"context"
	"fmt"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockRequest asks for qty units of a product.
type StockRequest struct {
	ProductID uuid.UUID
	Name      string
	Qty       int
}

// ReserveStock decrements every requested product or none of them. A row is
// only decremented while it is active and still holds enough units, so two
// concurrent buyers cannot oversell the last item.
func ReserveStock(ctx context.Context, tx *gorm.DB, requests []StockRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock reservation requires a transaction")
	}
	for _, req := range requests {
		if req.ProductID == uuid.Nil || req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid stock request").
				WithDetails(map[string]any{"product_id": req.ProductID, "quantity": req.Qty})
		}
	}

	for _, req := range requests {
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND is_active = ? AND quantity >= ?", req.ProductID, true, req.Qty).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", req.Qty))
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Product %s is out of stock", req.Name)).
				WithDetails(map[string]any{
					"product_id": req.ProductID,
					"product":    req.Name,
					"reason":     "insufficient_stock",
				})
		}
	}
	return nil
}
