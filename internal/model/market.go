package model

import (
	"fmt"
	"time"
)

// Timeframe is the bar interval of a series.
type Timeframe string

const (
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
	Timeframe1d Timeframe = "1d"
)

// Valid reports whether t is one of the supported timeframes.
func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe1h, Timeframe4h, Timeframe1d:
		return true
	}
	return false
}

// Duration returns the length of one bar.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseTimeframe converts a config string into a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	t := Timeframe(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unsupported timeframe %q", ErrInvalidInput, s)
	}
	return t, nil
}

// InstrumentKey identifies one (ticker, timeframe) evaluation target.
type InstrumentKey struct {
	Ticker    string    `json:"ticker"`
	Timeframe Timeframe `json:"timeframe"`
}

func (k InstrumentKey) String() string {
	return k.Ticker + ":" + string(k.Timeframe)
}

// Bar represents a single OHLC sample.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// Series is an ordered run of bars for one instrument.
type Series struct {
	Key       InstrumentKey `json:"key"`
	Bars      []Bar         `json:"bars"`
	FetchedAt time.Time     `json:"fetched_at"`
	// Stale is set when the store served an expired entry after a failed refresh.
	Stale bool `json:"stale,omitempty"`
}

func (s Series) Len() int { return len(s.Bars) }

// Last returns the most recent bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes extracts the close prices in order.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Clone returns a copy whose bar slice is not shared with s.
func (s Series) Clone() Series {
	out := s
	if s.Bars != nil {
		out.Bars = make([]Bar, len(s.Bars))
		copy(out.Bars, s.Bars)
	}
	return out
}
