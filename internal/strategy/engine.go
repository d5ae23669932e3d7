package strategy

import "TradingStation/internal/model"

// RSI bounds that decide whether a crossover still has room to run.
const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// Classify maps an indicator snapshot to a signal.
//
// Rules, first match wins:
//  1. any indicator undefined -> Neutral
//  2. emaFast > emaSlow and rsi < 70 -> Bullish
//  3. emaFast < emaSlow and rsi > 30 -> Bearish
//  4. otherwise -> Neutral
//
// Equal EMAs satisfy neither crossover condition.
func Classify(snap model.IndicatorSnapshot) model.Signal {
	if !snap.Complete() {
		return model.SignalNeutral
	}
	fast, slow, rsi := snap.EMAFast.Value, snap.EMASlow.Value, snap.RSI.Value

	switch {
	case fast > slow && rsi < RSIOverbought:
		return model.SignalBullish
	case fast < slow && rsi > RSIOversold:
		return model.SignalBearish
	default:
		return model.SignalNeutral
	}
}

// Verdict returns the human-readable explanation of a signal.
func Verdict(sig model.Signal) string {
	switch sig {
	case model.SignalBullish:
		return "Bullish signal: positive moving-average cross with RSI room to rise."
	case model.SignalBearish:
		return "Bearish signal: negative moving-average cross."
	default:
		return "Neutral: waiting for indicator confirmation."
	}
}
