package strategy

import "github.com/shopspring/decimal"

var (
	minLot       = decimal.RequireFromString("0.01")
	lotThreshold = decimal.RequireFromString("0.001")
)

// SuggestLotSize sizes a position as balance/price*fraction, rounded to 3 decimals.
// Sizes at or below 0.001 fall back to the 0.01 minimum lot.
func SuggestLotSize(balance, price, fraction float64) decimal.Decimal {
	if price <= 0 || balance <= 0 || fraction <= 0 {
		return minLot
	}
	lot := decimal.NewFromFloat(balance).
		Div(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(fraction)).
		Round(3)
	if lot.LessThanOrEqual(lotThreshold) {
		return minLot
	}
	return lot
}
