package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSplitFee(t *testing.T) {
	tests := []struct {
		amount string
		fee    string
		net    string
	}{
		{amount: "1000", fee: "100", net: "900"},
		{amount: "2000", fee: "200", net: "1800"},
		{amount: "333.33", fee: "33.33", net: "300"},
		{amount: "0.05", fee: "0.01", net: "0.04"},
		{amount: "12.34", fee: "1.23", net: "11.11"},
	}

	for _, tt := range tests {
		fee, net := SplitFee(d(tt.amount), d("0.10"))
		assert.True(t, fee.Equal(d(tt.fee)), "fee for %s: got %s", tt.amount, fee)
		assert.True(t, net.Equal(d(tt.net)), "net for %s: got %s", tt.amount, net)
		assert.True(t, fee.Add(net).Equal(Round(d(tt.amount))), "fee+net must equal amount for %s", tt.amount)
	}
}

func TestFeeRoundsToTwoPlaces(t *testing.T) {
	assert.Equal(t, "100.00", Fee(d("1000"), d("0.10")).StringFixed(2))
	assert.Equal(t, "0.13", Fee(d("1.25"), d("0.10")).StringFixed(2))
}

func TestMinorConversions(t *testing.T) {
	assert.Equal(t, int64(500000), ToMinor(d("5000")))
	assert.Equal(t, int64(123456), ToMinor(d("1234.56")))
	assert.True(t, FromMinor(500000).Equal(d("5000")))
	assert.True(t, FromMinor(123457).Equal(d("1234.57")))
}
