// Package money holds the decimal helpers shared by every amount in the ledger.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places kept for currency amounts.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// Round rounds to the currency scale, half away from zero.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// Fee computes round(amount × rate, 2).
func Fee(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// SplitFee returns the fee and the remainder after deducting it from amount.
func SplitFee(amount, rate decimal.Decimal) (fee, net decimal.Decimal) {
	fee = Fee(amount, rate)
	return fee, Round(amount.Sub(fee))
}

// ToMinor converts a major-unit amount to minor units (kobo, cents).
func ToMinor(amount decimal.Decimal) int64 {
	return Round(amount).Mul(hundred).IntPart()
}

// FromMinor converts minor units back to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred).Round(Scale)
}
