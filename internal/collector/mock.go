package collector

import (
	"context"
	"sync"
	"time"

	"TradingStation/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	Bars  []model.Bar
	Err   error

	mu    sync.Mutex
	calls int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(ctx context.Context, _ string, tf model.Timeframe, lookback time.Duration) ([]model.Bar, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Bars != nil {
		return m.Bars, nil
	}
	count := int(lookback / tf.Duration())
	if count > 2000 {
		count = 2000
	}
	return generateMockBars(m.Price, tf, count), nil
}

// Calls reports how many times Fetch was invoked.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func generateMockBars(basePrice float64, tf model.Timeframe, count int) []model.Bar {
	if basePrice <= 0 {
		basePrice = 100
	}
	end := time.Now().Truncate(tf.Duration())
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   end.Add(-time.Duration(count-i) * tf.Duration()),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
