package collector

import (
	"time"

	"TradingStation/internal/model"
)

// aggregateBars folds ascending bars into buckets of the given width aligned to the Unix epoch.
func aggregateBars(bars []model.Bar, bucket time.Duration) []model.Bar {
	var out []model.Bar
	for _, b := range bars {
		start := b.Time.Truncate(bucket)
		if n := len(out); n > 0 && out[n-1].Time.Equal(start) {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		b.Time = start
		out = append(out, b)
	}
	return out
}
