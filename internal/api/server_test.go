package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"TradingStation/internal/metrics"
	"TradingStation/internal/model"
)

var btc = model.InstrumentKey{Ticker: "BTC", Timeframe: model.Timeframe1d}

type fakeBoard struct {
	evals      []model.Evaluation
	refreshKey *model.InstrumentKey
	force      bool
	err        error
}

func (b *fakeBoard) Latest() []model.Evaluation { return b.evals }

func (b *fakeBoard) LatestFor(key model.InstrumentKey) (model.Evaluation, bool) {
	for _, ev := range b.evals {
		if ev.Key == key {
			return ev, true
		}
	}
	return model.Evaluation{}, false
}

func (b *fakeBoard) Refresh(_ context.Context, key *model.InstrumentKey, force bool) ([]model.Evaluation, error) {
	b.refreshKey = key
	b.force = force
	if b.err != nil {
		return nil, b.err
	}
	return b.evals, nil
}

type fakeAlerts struct {
	states []model.AlertState
	err    error
}

func (a fakeAlerts) States(context.Context) ([]model.AlertState, error) { return a.states, a.err }

func sampleEvaluation() model.Evaluation {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Evaluation{
		Key: btc,
		Series: model.Series{Key: btc, Bars: []model.Bar{
			{Time: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		}},
		Snapshot: model.IndicatorSnapshot{
			EMAFast: model.Defined(10),
			EMASlow: model.Undefined,
			RSI:     model.Defined(55),
			Close:   1.5,
		},
		Signal:  model.SignalNeutral,
		Verdict: "Neutral: waiting for indicator confirmation.",
	}
}

func newTestServer(board *fakeBoard, alerts fakeAlerts) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewServer(board, alerts, reg, zap.NewNop()), reg
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&fakeBoard{}, fakeAlerts{})
	rec := do(t, s.Routes(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListEvaluations(t *testing.T) {
	s, _ := newTestServer(&fakeBoard{evals: []model.Evaluation{sampleEvaluation()}}, fakeAlerts{})
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/api/evaluations")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "NEUTRAL", got[0]["signal"])
	snap := got[0]["snapshot"].(map[string]any)
	assert.Nil(t, snap["ema_slow"], "undefined readings encode as null")
	assert.Equal(t, 55.0, snap["rsi"])
	assert.Nil(t, got[0]["series"].(map[string]any)["bars"])

	rec = do(t, h, http.MethodGet, "/api/evaluations?bars=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got[0]["series"].(map[string]any)["bars"], 1)
}

func TestGetEvaluation(t *testing.T) {
	s, _ := newTestServer(&fakeBoard{evals: []model.Evaluation{sampleEvaluation()}}, fakeAlerts{})
	h := s.Routes()

	rec := do(t, h, http.MethodGet, "/api/evaluations/BTC/1d")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verdict":"Neutral: waiting for indicator confirmation."`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/evaluations/ETH/1d").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/evaluations/BTC/15m").Code)
}

func TestRefresh(t *testing.T) {
	board := &fakeBoard{evals: []model.Evaluation{sampleEvaluation()}}
	s, _ := newTestServer(board, fakeAlerts{})
	h := s.Routes()

	rec := do(t, h, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, board.refreshKey)
	assert.False(t, board.force)

	rec = do(t, h, http.MethodPost, "/api/refresh?ticker=BTC&timeframe=1d&force=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, board.refreshKey)
	assert.Equal(t, btc, *board.refreshKey)
	assert.True(t, board.force)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/refresh?ticker=BTC&timeframe=2h").Code)

	board.err = fmt.Errorf("%w: unknown instrument ETH:1d", model.ErrInvalidInput)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/refresh?ticker=ETH&timeframe=1d").Code)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/refresh").Code)
}

func TestListAlerts(t *testing.T) {
	s, _ := newTestServer(&fakeBoard{}, fakeAlerts{})
	rec := do(t, s.Routes(), http.MethodGet, "/api/alerts")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s, _ = newTestServer(&fakeBoard{}, fakeAlerts{states: []model.AlertState{model.InitialAlertState(btc)}})
	rec = do(t, s.Routes(), http.MethodGet, "/api/alerts")
	assert.Contains(t, rec.Body.String(), `"last_signal":"NEUTRAL"`)

	s, _ = newTestServer(&fakeBoard{}, fakeAlerts{err: errors.New("disk I/O error")})
	rec = do(t, s.Routes(), http.MethodGet, "/api/alerts")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Signal.WithLabelValues("BTC", "1d").Set(1)

	s := NewServer(&fakeBoard{}, fakeAlerts{}, reg, zap.NewNop())
	rec := do(t, s.Routes(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `station_signal{ticker="BTC",timeframe="1d"} 1`))
}
