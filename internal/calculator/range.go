package calculator

import (
	"errors"
	"math"

	"TradingStation/internal/model"
)

// CalculateRange scans the most recent window bars and returns the high and low.
// A window <= 0 scans the whole slice.
func CalculateRange(bars []model.Bar, window int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	n := len(bars)
	start := 0
	if window > 0 && n > window {
		start = n - window
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// CalculatePosition returns where the current price sits within [low, high] (0.0~1.0).
func CalculatePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}

// RangeOf summarises a series for display. Empty series yield the zero Range.
func RangeOf(s model.Series) model.Range {
	last, ok := s.Last()
	if !ok {
		return model.Range{}
	}
	high, low, err := CalculateRange(s.Bars, 0)
	if err != nil {
		return model.Range{}
	}
	pos, err := CalculatePosition(last.Close, high, low)
	if err != nil {
		pos = 0.5
	}
	return model.Range{High: high, Low: low, Position: pos}
}
