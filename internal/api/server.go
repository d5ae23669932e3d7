// Package api exposes the latest evaluations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"TradingStation/internal/model"
)

// Evaluations is the latest-results board plus the manual trigger.
type Evaluations interface {
	Latest() []model.Evaluation
	LatestFor(key model.InstrumentKey) (model.Evaluation, bool)
	Refresh(ctx context.Context, key *model.InstrumentKey, force bool) ([]model.Evaluation, error)
}

// AlertStates lists the dispatcher's dedup state.
type AlertStates interface {
	States(ctx context.Context) ([]model.AlertState, error)
}

type Server struct {
	evals    Evaluations
	alerts   AlertStates
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// NewServer creates the HTTP boundary over the evaluation board and the dispatcher state.
func NewServer(evals Evaluations, alerts AlertStates, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{evals: evals, alerts: alerts, gatherer: gatherer, log: log}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/evaluations", s.handleListEvaluations)
		r.Get("/evaluations/{ticker}/{timeframe}", s.handleGetEvaluation)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/alerts", s.handleListAlerts)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withBars drops the bar slices unless the client asked for them with ?bars=true.
func withBars(r *http.Request, evals []model.Evaluation) []model.Evaluation {
	if keep, _ := strconv.ParseBool(r.URL.Query().Get("bars")); keep {
		return evals
	}
	out := make([]model.Evaluation, len(evals))
	for i, ev := range evals {
		ev.Series.Bars = nil
		out[i] = ev
	}
	return out
}

func (s *Server) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, withBars(r, s.evals.Latest()))
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	tf, err := model.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := model.InstrumentKey{Ticker: chi.URLParam(r, "ticker"), Timeframe: tf}
	ev, ok := s.evals.LatestFor(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no evaluation for "+key.String())
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))

	var key *model.InstrumentKey
	if ticker := q.Get("ticker"); ticker != "" {
		tf, err := model.ParseTimeframe(q.Get("timeframe"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		key = &model.InstrumentKey{Ticker: ticker, Timeframe: tf}
	}

	evals, err := s.evals.Refresh(r.Context(), key, force)
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, withBars(r, evals))
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	states, err := s.alerts.States(r.Context())
	if err != nil {
		s.log.Error("list alert states", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "alert state unavailable")
		return
	}
	if states == nil {
		states = []model.AlertState{}
	}
	s.writeJSON(w, http.StatusOK, states)
}
