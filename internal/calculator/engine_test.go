package calculator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradingStation/internal/model"
)

func seriesFromCloses(closes ...float64) model.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Time:  start.AddDate(0, 0, i),
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
		}
	}
	return model.Series{Key: model.InstrumentKey{Ticker: "TEST", Timeframe: model.Timeframe1d}, Bars: bars}
}

func linear(from, to float64, n int) []float64 {
	out := make([]float64, n)
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestCalculateEMA(t *testing.T) {
	// seed = avg(1,2,3) = 2, k = 0.5, each later step lands one below the close
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	ema, err := CalculateEMA(prices, 3)
	require.NoError(t, err)
	require.True(t, ema.Defined)
	assert.InDelta(t, 9.0, ema.Value, 1e-9)
}

func TestCalculateEMA_SeedOnly(t *testing.T) {
	ema, err := CalculateEMA([]float64{2, 4, 6}, 3)
	require.NoError(t, err)
	assert.Equal(t, model.Defined(4), ema)
}

func TestCalculateEMA_ConstantSeries(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 42
	}
	ema, err := CalculateEMA(prices, 21)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, ema.Value, 1e-9)
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
	}{
		{"all gains", []float64{1, 2, 3, 4, 5}, 3, 100},
		{"all losses", []float64{5, 4, 3, 2, 1}, 3, 0},
		// seed gain/loss 0.5/0.5, then +1 -> 0.75/0.25, then -1 -> 0.375/0.625
		{"wilder smoothing", []float64{10, 11, 10, 11, 10}, 2, 37.5},
		{"flat", []float64{3, 3, 3, 3}, 2, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi, err := CalculateRSI(tt.prices, tt.period)
			require.NoError(t, err)
			require.True(t, rsi.Defined)
			assert.InDelta(t, tt.want, rsi.Value, 1e-9)
		})
	}
}

func TestInsufficientDataIsUndefined(t *testing.T) {
	prices := []float64{1, 2, 3, 4}

	ema, err := CalculateEMA(prices, 5)
	require.NoError(t, err)
	assert.False(t, ema.Defined)

	// RSI needs period+1 prices
	rsi, err := CalculateRSI(prices, 4)
	require.NoError(t, err)
	assert.False(t, rsi.Defined)

	sma, err := CalculateSMA(prices, 5)
	require.NoError(t, err)
	assert.False(t, sma.Defined)
}

func TestNonPositivePeriod(t *testing.T) {
	_, err := CalculateEMA([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = CalculateRSI([]float64{1, 2}, -1)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = CalculateSMA([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestCompute(t *testing.T) {
	params := model.IndicatorParams{EMAFast: 9, EMASlow: 21, RSI: 14}

	t.Run("short series leaves everything undefined", func(t *testing.T) {
		snap, err := Compute(seriesFromCloses(linear(100, 105, 8)...), params)
		require.NoError(t, err)
		assert.False(t, snap.EMAFast.Defined)
		assert.False(t, snap.EMASlow.Defined)
		assert.False(t, snap.RSI.Defined)
		assert.False(t, snap.Complete())
	})

	t.Run("partial warm-up", func(t *testing.T) {
		snap, err := Compute(seriesFromCloses(linear(100, 110, 15)...), params)
		require.NoError(t, err)
		assert.True(t, snap.EMAFast.Defined)
		assert.False(t, snap.EMASlow.Defined)
		assert.True(t, snap.RSI.Defined)
	})

	t.Run("rising series", func(t *testing.T) {
		series := seriesFromCloses(linear(100, 130, 30)...)
		snap, err := Compute(series, params)
		require.NoError(t, err)
		require.True(t, snap.Complete())
		assert.Greater(t, snap.EMAFast.Value, snap.EMASlow.Value)
		assert.Greater(t, snap.RSI.Value, 70.0)
		assert.InDelta(t, 130.0, snap.Close, 1e-9)
		assert.Equal(t, series.Bars[29].Time, snap.BarTime)
	})

	t.Run("empty series", func(t *testing.T) {
		snap, err := Compute(model.Series{}, params)
		require.NoError(t, err)
		assert.False(t, snap.Complete())
	})
}

func TestCompute_Deterministic(t *testing.T) {
	params := model.IndicatorParams{EMAFast: 5, EMASlow: 20, RSI: 7}
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i)*0.1
	}
	series := seriesFromCloses(closes...)

	first, err := Compute(series, params)
	require.NoError(t, err)
	second, err := Compute(series, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompute_RejectsBadInput(t *testing.T) {
	params := model.IndicatorParams{EMAFast: 9, EMASlow: 21, RSI: 14}

	tests := []struct {
		name   string
		series model.Series
		params model.IndicatorParams
	}{
		{"nan close", seriesFromCloses(1, 2, math.NaN(), 4), params},
		{"inf close", seriesFromCloses(1, math.Inf(1)), params},
		{"zero close", seriesFromCloses(1, 0, 3), params},
		{"negative close", seriesFromCloses(1, -2, 3), params},
		{"zero period", seriesFromCloses(1, 2, 3), model.IndicatorParams{EMAFast: 0, EMASlow: 21, RSI: 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.series, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidInput))
		})
	}
}

func TestRangeOf(t *testing.T) {
	series := seriesFromCloses(100, 120, 110)
	r := RangeOf(series)
	assert.InDelta(t, 121.2, r.High, 1e-9)
	assert.InDelta(t, 99.0, r.Low, 1e-9)
	assert.InDelta(t, (110-99.0)/(121.2-99.0), r.Position, 1e-9)

	assert.Equal(t, model.Range{}, RangeOf(model.Series{}))
}

func TestCalculatePosition_Bounds(t *testing.T) {
	pos, err := CalculatePosition(50, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 0.5, pos)

	pos, err = CalculatePosition(150, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos)

	_, err = CalculatePosition(1, 1, 2)
	assert.Error(t, err)
}
