package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Reading is an indicator value that is undefined until the warm-up window is filled.
type Reading struct {
	Value   float64
	Defined bool
}

// Defined returns a defined Reading.
func Defined(v float64) Reading { return Reading{Value: v, Defined: true} }

// Undefined is the zero Reading.
var Undefined = Reading{}

func (r Reading) String() string {
	if !r.Defined {
		return "n/a"
	}
	return strconv.FormatFloat(r.Value, 'f', 2, 64)
}

// MarshalJSON encodes an undefined reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Defined(v)
	return nil
}

// IndicatorParams are the periods used to derive a snapshot.
type IndicatorParams struct {
	EMAFast int `json:"ema_fast"`
	EMASlow int `json:"ema_slow"`
	RSI     int `json:"rsi"`
}

// IndicatorSnapshot holds the indicator triple aligned to the last bar of a series.
type IndicatorSnapshot struct {
	Params  IndicatorParams `json:"params"`
	EMAFast Reading         `json:"ema_fast"`
	EMASlow Reading         `json:"ema_slow"`
	RSI     Reading         `json:"rsi"`
	Close   float64         `json:"close"`
	BarTime time.Time       `json:"bar_time"`
}

// Complete reports whether every indicator is defined.
func (s IndicatorSnapshot) Complete() bool {
	return s.EMAFast.Defined && s.EMASlow.Defined && s.RSI.Defined
}
