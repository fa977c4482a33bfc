package helpers

import (
	"fmt"

	"github.com/campusmart/campusmart-backend/pkg/db/models"
	pkgerrors "github.com/campusmart/campusmart-backend/pkg/errors"
	"github.com/google/uuid"
)

// Rejection reasons surfaced to the buyer when a line cannot be fulfilled.
const (
	ReasonNotFound     = "product_not_found"
	ReasonInactive     = "product_inactive"
	ReasonInsufficient = "insufficient_stock"
	ReasonOwnProduct   = "own_product"
)

// ValidateLine checks one requested line against the current product row.
// The returned error names the product so callers can route the buyer to it.
func ValidateLine(product *models.Product, productID uuid.UUID, name string, qty int) error {
	if product == nil {
		return rejection(productID, name, ReasonNotFound, "Product %s is no longer available")
	}
	if name == "" {
		name = product.Name
	}
	if !product.IsActive {
		return rejection(productID, name, ReasonInactive, "Product %s is no longer available")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(map[string]any{"product_id": productID, "product": name})
	}
	if product.Quantity < qty {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Only %d of %s left in stock", product.Quantity, name)).
			WithDetails(map[string]any{
				"product_id": productID,
				"product":    name,
				"reason":     ReasonInsufficient,
				"available":  product.Quantity,
			})
	}
	return nil
}

// ValidateBuyer rejects a buyer purchasing their own listing.
func ValidateBuyer(product *models.Product, buyerID uuid.UUID) error {
	if product != nil && product.SellerID == buyerID {
		return rejection(product.ID, product.Name, ReasonOwnProduct, "You cannot buy your own product %s")
	}
	return nil
}

func rejection(productID uuid.UUID, name, reason, format string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf(format, name)).
		WithDetails(map[string]any{
			"product_id": productID,
			"product":    name,
			"reason":     reason,
		})
}
