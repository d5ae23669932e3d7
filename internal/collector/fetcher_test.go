package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradingStation/internal/model"
)

func TestBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC":     "BTCUSDT",
		"eth":     "ETHUSDT",
		"EURUSD":  "EURUSDT",
		"GBPUSD":  "GBPUSDT",
		"SOL-USD": "SOLUSDT",
		"BNBUSDT": "BNBUSDT",
	}
	for in, want := range cases {
		assert.Equal(t, want, BinanceSymbol(in), in)
	}
}

func TestBinanceFetcher_Fetch(t *testing.T) {
	var gotSymbol, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		fmt.Fprint(w, `[
			[1704067200000,"42000.1","42500.0","41800.0","42300.5","12.5",1704153599999,"0",1,"0","0","0"],
			[1704153600000,"42300.5","43000.0","42100.0","42900.0","10.0",1704239999999,"0",1,"0","0","0"]
		]`)
	}))
	defer srv.Close()

	f := NewBinanceFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	bars, err := f.Fetch(context.Background(), "BTC", model.Timeframe1d, 48*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "1d", gotInterval)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 42300.5, bars[0].Close)
	assert.Equal(t, 43000.0, bars[1].High)
	assert.Equal(t, 10.0, bars[1].Volume)
}

func TestBinanceFetcher_Pages(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		count := binanceKlineMax
		if n > 1 {
			count = 5
		}
		rows := make([]string, count)
		for i := range rows {
			ts := start + int64(i)*time.Hour.Milliseconds()
			rows[i] = fmt.Sprintf(`[%d,"1","2","0.5","1.5","3"]`, ts)
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	f := NewBinanceFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	bars, err := f.Fetch(context.Background(), "ETH", model.Timeframe1h, 2000*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, bars, binanceKlineMax+5)
}

func TestBinanceFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	f := NewBinanceFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), "NOPE", model.Timeframe1d, 24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestParseKlineRow(t *testing.T) {
	_, err := parseKlineRow([]any{float64(1), "1", "2"})
	assert.Error(t, err)

	_, err = parseKlineRow([]any{float64(1), "x", "2", "3", "4", "5"})
	assert.Error(t, err)
}

const yahooBody = `{"chart":{"result":[{"timestamp":[1704067200,1704153600,1704240000],
"indicators":{"quote":[{"open":[10,null,12],"high":[11,null,13],"low":[9,null,11],"close":[10.5,null,12.5],"volume":[100,null,300]}]}}],"error":null}}`

func TestYahooFetcher_Fetch(t *testing.T) {
	var gotPath, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInterval = r.URL.Query().Get("interval")
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		assert.NotEmpty(t, r.URL.Query().Get("period2"))
		fmt.Fprint(w, yahooBody)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	bars, err := f.Fetch(context.Background(), "SPX500", model.Timeframe1d, 30*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
	assert.Equal(t, "1d", gotInterval)
	require.Len(t, bars, 2, "null bar skipped")
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 300.0, bars[1].Volume)
}

func TestYahooFetcher_FourHourAggregates(t *testing.T) {
	var gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInterval = r.URL.Query().Get("interval")
		// 00:00, 01:00, 04:00 UTC on 2024-01-01
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1704067200,1704070800,1704081600],
"indicators":{"quote":[{"open":[1,2,3],"high":[1.5,2.5,3.5],"low":[0.5,1.5,2.5],"close":[1.2,2.2,3.2],"volume":[1,1,1]}]}}],"error":null}}`)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	bars, err := f.Fetch(context.Background(), "AAPL", model.Timeframe4h, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "60m", gotInterval)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.2, bars[0].Close)
	assert.Equal(t, 2.5, bars[0].High)
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	f := NewYahooFetcher("", 5*time.Second)
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), "ZZZZ", model.Timeframe1d, 24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")
}
