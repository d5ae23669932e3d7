package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"TradingStation/internal/model"
)

// Fetcher defines the interface for fetching market data.
// Implementations return bars in ascending time order covering roughly the trailing lookback.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string, tf model.Timeframe, lookback time.Duration) ([]model.Bar, error)
	Name() string
}

// newHTTPClient builds a client with a hard timeout and optional proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
