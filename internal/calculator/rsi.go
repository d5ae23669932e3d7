package calculator

import (
	"fmt"

	"TradingStation/internal/model"
)

// CalculateRSI computes the Wilder-smoothed RSI over the given period.
// Requires at least period+1 prices, otherwise the reading is undefined.
func CalculateRSI(prices []float64, period int) (model.Reading, error) {
	if period <= 0 {
		return model.Undefined, fmt.Errorf("%w: rsi period must be positive, got %d", model.ErrInvalidInput, period)
	}
	if len(prices) < period+1 {
		return model.Undefined, nil
	}

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing for remaining prices
	p := float64(period)
	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return model.Defined(100.0), nil
	}
	rs := avgGain / avgLoss
	return model.Defined(100.0 - 100.0/(1.0+rs)), nil
}
