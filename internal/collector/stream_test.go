package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"TradingStation/internal/model"
)

func TestParseKlineEvent(t *testing.T) {
	raw := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1704067200000,"o":"1.0","h":"2.0","l":"0.5","c":"1.5","v":"7","x":true}}`)
	bar, closed, err := parseKlineEvent(raw)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 1.5, bar.Close)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bar.Time)

	_, _, err = parseKlineEvent([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
}

func TestKlineStream_ReportsClosedCandles(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		got     []model.Bar
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"k":{"t":1704067200000,"o":"1","h":"2","l":"0.5","c":"1.1","v":"1","x":false}}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"k":{"t":1704067200000,"o":"1","h":"2","l":"0.5","c":"1.4","v":"1","x":true}}`))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	key := model.InstrumentKey{Ticker: "BTC", Timeframe: model.Timeframe1h}
	received := make(chan struct{}, 1)

	stream := NewKlineStream(StreamConfig{BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, key,
		func(_ context.Context, k model.InstrumentKey, bar model.Bar) {
			assert.Equal(t, key, k)
			mu.Lock()
			got = append(got, bar)
			mu.Unlock()
			received <- struct{}{}
		}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stream.Run(ctx)
		close(done)
	}()

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("no closed candle received")
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, 1.4, got[0].Close)
	assert.Equal(t, "/btcusdt@kline_1h", gotPath)
}
