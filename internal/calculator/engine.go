package calculator

import (
	"fmt"
	"math"

	"TradingStation/internal/model"
)

// ValidateParams rejects non-positive periods.
func ValidateParams(p model.IndicatorParams) error {
	if p.EMAFast <= 0 || p.EMASlow <= 0 || p.RSI <= 0 {
		return fmt.Errorf("%w: periods must be positive (ema_fast=%d ema_slow=%d rsi=%d)",
			model.ErrInvalidInput, p.EMAFast, p.EMASlow, p.RSI)
	}
	return nil
}

// ValidateBars rejects non-finite or non-positive prices.
func ValidateBars(bars []model.Bar) error {
	for i, b := range bars {
		for _, v := range [4]float64{b.Open, b.High, b.Low, b.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w: bar %d at %s has price %v", model.ErrInvalidInput, i, b.Time.Format("2006-01-02 15:04"), v)
			}
		}
	}
	return nil
}

// Compute derives the indicator snapshot for the last bar of the series.
// It is a pure function of its inputs.
func Compute(series model.Series, params model.IndicatorParams) (model.IndicatorSnapshot, error) {
	snap := model.IndicatorSnapshot{Params: params}
	if err := ValidateParams(params); err != nil {
		return snap, err
	}
	if err := ValidateBars(series.Bars); err != nil {
		return snap, err
	}
	if last, ok := series.Last(); ok {
		snap.Close = last.Close
		snap.BarTime = last.Time
	}

	closes := series.Closes()

	var err error
	if snap.EMAFast, err = CalculateEMA(closes, params.EMAFast); err != nil {
		return snap, fmt.Errorf("ema fast: %w", err)
	}
	if snap.EMASlow, err = CalculateEMA(closes, params.EMASlow); err != nil {
		return snap, fmt.Errorf("ema slow: %w", err)
	}
	if snap.RSI, err = CalculateRSI(closes, params.RSI); err != nil {
		return snap, fmt.Errorf("rsi: %w", err)
	}
	return snap, nil
}
