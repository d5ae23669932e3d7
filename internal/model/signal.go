package model

import "time"

// Signal is the discrete market verdict.
type Signal string

const (
	SignalNeutral Signal = "NEUTRAL"
	SignalBullish Signal = "BULLISH"
	SignalBearish Signal = "BEARISH"
)

// Score maps the signal to 1, 0 or -1 for gauges.
func (s Signal) Score() float64 {
	switch s {
	case SignalBullish:
		return 1
	case SignalBearish:
		return -1
	default:
		return 0
	}
}

// ParseSignal converts a stored value back into a Signal. Unknown values map to Neutral.
func ParseSignal(s string) Signal {
	switch Signal(s) {
	case SignalBullish:
		return SignalBullish
	case SignalBearish:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// AlertState is the dedup state kept per instrument.
type AlertState struct {
	Key             InstrumentKey `json:"key"`
	LastSignal      Signal        `json:"last_signal"`
	LastChangedAt   time.Time     `json:"last_changed_at"`
	LastEvaluatedAt time.Time     `json:"last_evaluated_at"`
}

// InitialAlertState is the startup baseline for an instrument.
func InitialAlertState(key InstrumentKey) AlertState {
	return AlertState{Key: key, LastSignal: SignalNeutral}
}

// Delivery is the outcome of one sink for one notification.
type Delivery struct {
	Sink     string        `json:"sink"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the sink accepted the notification.
func (d Delivery) OK() bool { return d.Error == "" }

// DispatchResult describes what the dispatcher did for one evaluation.
type DispatchResult struct {
	Key            InstrumentKey `json:"key"`
	Previous       Signal        `json:"previous"`
	Current        Signal        `json:"current"`
	Transition     bool          `json:"transition"`
	Notified       bool          `json:"notified"`
	NotificationID string        `json:"notification_id,omitempty"`
	Deliveries     []Delivery    `json:"deliveries,omitempty"`
}

// Failures counts sinks that rejected the notification.
func (r DispatchResult) Failures() int {
	n := 0
	for _, d := range r.Deliveries {
		if !d.OK() {
			n++
		}
	}
	return n
}

// Range is the high/low envelope of a series and where the last close sits in it.
type Range struct {
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Position float64 `json:"position"` // 0.0 ~ 1.0
}

// Evaluation is the per-pass tuple handed to the presentation layer.
type Evaluation struct {
	Key         InstrumentKey     `json:"key"`
	Series      Series            `json:"series"`
	Snapshot    IndicatorSnapshot `json:"snapshot"`
	Signal      Signal            `json:"signal"`
	Verdict     string            `json:"verdict"`
	Dispatch    DispatchResult    `json:"dispatch"`
	Range       Range             `json:"range"`
	LotSize     string            `json:"lot_size,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
	Error       string            `json:"error,omitempty"`
}

// Failed reports whether the pass stopped before a signal was produced.
func (e Evaluation) Failed() bool { return e.Error != "" }
