package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"TradingStation/internal/model"
)

const binanceStreamURL = "wss://stream.binance.com:9443/ws"

// StreamConfig holds configuration for the kline stream.
type StreamConfig struct {
	// BaseURL of the stream endpoint; the "/<symbol>@kline_<tf>" path is appended.
	BaseURL string
	// ReconnectDelay is the initial delay before reconnection attempts. Defaults to 2s.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *StreamConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = binanceStreamURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// ClosedBarFunc receives every closed candle for the stream's key.
type ClosedBarFunc func(ctx context.Context, key model.InstrumentKey, bar model.Bar)

// KlineStream follows the Binance kline stream for one instrument and reports closed candles.
type KlineStream struct {
	cfg     StreamConfig
	key     model.InstrumentKey
	onClose ClosedBarFunc
	log     *zap.Logger
}

// NewKlineStream creates a stream for key.
func NewKlineStream(cfg StreamConfig, key model.InstrumentKey, onClose ClosedBarFunc, log *zap.Logger) *KlineStream {
	cfg.defaults()
	return &KlineStream{cfg: cfg, key: key, onClose: onClose, log: log}
}

func (s *KlineStream) url() string {
	return fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(s.cfg.BaseURL, "/"),
		strings.ToLower(BinanceSymbol(s.key.Ticker)), s.key.Timeframe)
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (s *KlineStream) Run(ctx context.Context) {
	delay := s.cfg.ReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.runOnce(ctx)
		if err == nil {
			return
		}
		s.log.Warn("kline stream disconnected",
			zap.Stringer("key", s.key),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

// runOnce returns nil only when ctx was cancelled.
func (s *KlineStream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info("kline stream connected", zap.Stringer("key", s.key))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		bar, closed, err := parseKlineEvent(raw)
		if err != nil {
			s.log.Debug("kline parse error", zap.Error(err), zap.ByteString("raw", raw))
			continue
		}
		if closed {
			s.onClose(ctx, s.key, bar)
		}
	}
}

type klineEvent struct {
	Kline struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

func parseKlineEvent(raw []byte) (model.Bar, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return model.Bar{}, false, err
	}
	k := ev.Kline
	if k.OpenTime == 0 {
		return model.Bar{}, false, fmt.Errorf("not a kline event")
	}
	var vals [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Bar{}, false, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i] = v
	}
	return model.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, k.Closed, nil
}
