package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"TradingStation/internal/model"
)

const (
	binanceBaseURL  = "https://api.binance.com"
	binanceKlineMax = 1000
	binanceMaxPages = 20
)

// BinanceFetcher implements Fetcher on the Binance spot klines endpoint.
type BinanceFetcher struct {
	Client  *http.Client
	BaseURL string
}

// NewBinanceFetcher creates a new Binance fetcher.
func NewBinanceFetcher(proxyURL string, timeout time.Duration) *BinanceFetcher {
	return &BinanceFetcher{
		Client:  newHTTPClient(proxyURL, timeout),
		BaseURL: binanceBaseURL,
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

var binanceAliases = map[string]string{
	"BTC":    "BTCUSDT",
	"ETH":    "ETHUSDT",
	"EURUSD": "EURUSDT",
	"GBPUSD": "GBPUSDT",
}

// BinanceSymbol maps a watchlist ticker to a Binance spot symbol.
func BinanceSymbol(ticker string) string {
	t := strings.ToUpper(ticker)
	if s, ok := binanceAliases[t]; ok {
		return s
	}
	if base, ok := strings.CutSuffix(t, "-USD"); ok {
		return base + "USDT"
	}
	return t
}

// Fetch pages forward from now-lookback until the window is covered.
func (f *BinanceFetcher) Fetch(ctx context.Context, ticker string, tf model.Timeframe, lookback time.Duration) ([]model.Bar, error) {
	symbol := BinanceSymbol(ticker)
	end := time.Now()
	cursor := end.Add(-lookback)

	var bars []model.Bar
	for page := 0; page < binanceMaxPages; page++ {
		chunk, err := f.fetchKlines(ctx, symbol, string(tf), cursor)
		if err != nil {
			return nil, err
		}
		bars = append(bars, chunk...)
		if len(chunk) < binanceKlineMax {
			break
		}
		cursor = chunk[len(chunk)-1].Time.Add(tf.Duration())
		if !cursor.Before(end) {
			break
		}
	}
	return bars, nil
}

func (f *BinanceFetcher) fetchKlines(ctx context.Context, symbol, interval string, start time.Time) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(binanceKlineMax))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: status %d, body: %s", resp.StatusCode, string(body))
	}

	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("binance decode: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKlineRow decodes [openTime, open, high, low, close, volume, ...].
func parseKlineRow(row []any) (model.Bar, error) {
	if len(row) < 6 {
		return model.Bar{}, fmt.Errorf("short kline row (%d fields)", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return model.Bar{}, fmt.Errorf("kline open time is %T", row[0])
	}
	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return model.Bar{}, fmt.Errorf("kline field %d is %T", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
