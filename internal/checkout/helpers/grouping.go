package helpers

import (
	"sort"

	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/db/models"
	"github.com/campusmart/campusmart-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupLinesBySeller groups checkout lines by the seller that owns each product.
func GroupLinesBySeller(lines []models.CheckoutLine) map[uuid.UUID][]models.CheckoutLine {
	grouped := make(map[uuid.UUID][]models.CheckoutLine, len(lines))
	for _, line := range lines {
		grouped[line.SellerID] = append(grouped[line.SellerID], line)
	}
	return grouped
}

// LineTotal is the unit price times quantity, rounded to currency scale.
func LineTotal(line models.CheckoutLine) decimal.Decimal {
	return money.Round(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
}

// ComputeSellerBreakdown prices one seller's lines: commission on the
// subtotal, a flat delivery fee, and the amount the buyer pays.
func ComputeSellerBreakdown(sellerID uuid.UUID, lines []models.CheckoutLine, fees config.FeesConfig) models.SellerBreakdown {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line))
	}
	subtotal = money.Round(subtotal)
	return models.SellerBreakdown{
		SellerID:    sellerID,
		Subtotal:    subtotal,
		Commission:  money.Fee(subtotal, fees.CommissionRate),
		DeliveryFee: money.Round(fees.RiderFee),
		Total:       money.Round(subtotal.Add(fees.RiderFee)),
	}
}

// ComputeBreakdown returns one breakdown per seller, ordered by seller id so
// materialization always creates orders in the same sequence.
func ComputeBreakdown(lines []models.CheckoutLine, fees config.FeesConfig) []models.SellerBreakdown {
	grouped := GroupLinesBySeller(lines)
	out := make([]models.SellerBreakdown, 0, len(grouped))
	for sellerID, sellerLines := range grouped {
		out = append(out, ComputeSellerBreakdown(sellerID, sellerLines, fees))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SellerID.String() < out[j].SellerID.String()
	})
	return out
}

// SessionTotal sums what the buyer pays across all sellers.
func SessionTotal(breakdown []models.SellerBreakdown) decimal.Decimal {
	total := decimal.Zero
	for _, b := range breakdown {
		total = total.Add(b.Total)
	}
	return money.Round(total)
}
