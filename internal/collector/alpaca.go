package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"TradingStation/internal/model"
)

// AlpacaFetcher implements Fetcher on the Alpaca market data API.
type AlpacaFetcher struct {
	client *marketdata.Client
}

// NewAlpacaFetcher creates a fetcher. An empty baseURL uses the SDK default.
func NewAlpacaFetcher(apiKey, apiSecret, baseURL string) *AlpacaFetcher {
	return &AlpacaFetcher{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

func alpacaTimeFrame(tf model.Timeframe) marketdata.TimeFrame {
	switch tf {
	case model.Timeframe1h:
		return marketdata.OneHour
	case model.Timeframe4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour)
	default:
		return marketdata.OneDay
	}
}

type alpacaResult struct {
	bars []marketdata.Bar
	err  error
}

// Fetch runs the SDK call in a goroutine so ctx still bounds it.
func (f *AlpacaFetcher) Fetch(ctx context.Context, ticker string, tf model.Timeframe, lookback time.Duration) ([]model.Bar, error) {
	end := time.Now()
	req := marketdata.GetBarsRequest{
		TimeFrame: alpacaTimeFrame(tf),
		Start:     end.Add(-lookback),
		End:       end,
	}

	done := make(chan alpacaResult, 1)
	go func() {
		bars, err := f.client.GetBars(ticker, req)
		done <- alpacaResult{bars: bars, err: err}
	}()

	var res alpacaResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("alpaca fetch: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("alpaca fetch: %w", res.err)
	}

	bars := make([]model.Bar, 0, len(res.bars))
	for _, b := range res.bars {
		bars = append(bars, model.Bar{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	return bars, nil
}
