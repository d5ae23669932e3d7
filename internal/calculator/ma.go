package calculator

import (
	"fmt"

	"TradingStation/internal/model"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (model.Reading, error) {
	if period <= 0 {
		return model.Undefined, fmt.Errorf("%w: sma period must be positive, got %d", model.ErrInvalidInput, period)
	}
	if len(prices) < period {
		return model.Undefined, nil
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return model.Defined(sum / float64(period)), nil
}

// CalculateEMA returns the exponential moving average at the last price.
// The seed is the SMA of the first period prices, then ema = p*k + ema*(1-k) with k = 2/(period+1).
// A series shorter than period has no EMA at all.
func CalculateEMA(prices []float64, period int) (model.Reading, error) {
	if period <= 0 {
		return model.Undefined, fmt.Errorf("%w: ema period must be positive, got %d", model.ErrInvalidInput, period)
	}
	if len(prices) < period {
		return model.Undefined, nil
	}

	seed, err := CalculateSMA(prices[:period], period)
	if err != nil {
		return model.Undefined, err
	}
	ema := seed.Value

	k := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema = prices[i]*k + ema*(1-k)
	}
	return model.Defined(ema), nil
}
