package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"TradingStation/internal/alert"
	"TradingStation/internal/calculator"
	"TradingStation/internal/collector"
	"TradingStation/internal/metrics"
	"TradingStation/internal/model"
	"TradingStation/internal/notifier"
	"TradingStation/internal/strategy"
)

// NoDataMessage prefixes the error of an evaluation whose fetch failed or came back empty.
const NoDataMessage = "no data, verify instrument"

// ErrSuperseded is returned when a newer trigger for the same instrument cancelled this evaluation.
var ErrSuperseded = errors.New("evaluation superseded")

// Target is one configured instrument.
type Target struct {
	Key    model.InstrumentKey
	Params model.IndicatorParams
	Alerts bool
}

// Sizing feeds the suggested lot size shown with each evaluation.
type Sizing struct {
	Balance  float64
	Fraction float64
}

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Scheduler runs the evaluation pipeline for every target on a cron tick or on demand.
type Scheduler struct {
	Cron *cron.Cron

	bars       *collector.BarStore
	dispatcher *alert.Dispatcher
	targets    []Target
	sizing     Sizing
	metrics    *metrics.Metrics
	log        *zap.Logger
	ctx        context.Context
	now        func() time.Time

	mu        sync.Mutex
	gen       uint64
	inflight  map[model.InstrumentKey]inflight
	published map[model.InstrumentKey]uint64
	latest    map[model.InstrumentKey]model.Evaluation
}

// NewScheduler creates a new Scheduler. ctx bounds every cron-triggered pass.
func NewScheduler(ctx context.Context, bars *collector.BarStore, d *alert.Dispatcher, targets []Target, sizing Sizing, m *metrics.Metrics, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		bars:       bars,
		dispatcher: d,
		targets:    targets,
		sizing:     sizing,
		metrics:    m,
		log:        log,
		ctx:        ctx,
		now:        time.Now,
		inflight:   make(map[model.InstrumentKey]inflight),
		published:  make(map[model.InstrumentKey]uint64),
		latest:     make(map[model.InstrumentKey]model.Evaluation),
	}
}

// RegisterAll registers the periodic evaluation pass.
func (s *Scheduler) RegisterAll(spec string) error {
	if _, err := s.Cron.AddFunc(spec, func() { s.RunAll(s.ctx) }); err != nil {
		return fmt.Errorf("register evaluation task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Int("instruments", len(s.targets)))
}

// Stop stops the cron scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Targets returns the configured instruments.
func (s *Scheduler) Targets() []Target {
	return append([]Target(nil), s.targets...)
}

func (s *Scheduler) target(key model.InstrumentKey) (Target, bool) {
	for _, t := range s.targets {
		if t.Key == key {
			return t, true
		}
	}
	return Target{}, false
}

// RunAll evaluates every target concurrently and returns the evaluations that completed,
// in target order.
func (s *Scheduler) RunAll(ctx context.Context) []model.Evaluation {
	s.log.Info("running evaluation pass", zap.Int("instruments", len(s.targets)))
	results := make([]*model.Evaluation, len(s.targets))

	var g errgroup.Group
	g.SetLimit(8)
	for i, t := range s.targets {
		g.Go(func() error {
			ev, err := s.Trigger(ctx, t.Key)
			if err == nil {
				results[i] = &ev
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Evaluation, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Trigger evaluates one instrument now. A pending evaluation of the same instrument is cancelled
// and returns ErrSuperseded. Completed evaluations, including failed fetches, are published to the
// latest-results board.
func (s *Scheduler) Trigger(ctx context.Context, key model.InstrumentKey) (model.Evaluation, error) {
	t, ok := s.target(key)
	if !ok {
		return model.Evaluation{}, fmt.Errorf("%w: unknown instrument %s", model.ErrInvalidInput, key)
	}

	runCtx, gen := s.begin(ctx, key)
	defer s.end(key, gen)

	ev := s.Evaluate(runCtx, t)
	if runCtx.Err() != nil {
		// a delivered transition is reported even if a newer trigger arrived meanwhile
		if !ev.Dispatch.Notified {
			if ctx.Err() == nil {
				s.metrics.Evaluations.WithLabelValues("superseded").Inc()
				return ev, ErrSuperseded
			}
			return ev, ctx.Err()
		}
		s.metrics.Evaluations.WithLabelValues("ok").Inc()
	}

	s.publish(key, gen, ev)
	return ev, nil
}

// publish records ev unless a newer trigger for key has already been published.
func (s *Scheduler) publish(key model.InstrumentKey, gen uint64, ev model.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.published[key] {
		return
	}
	s.published[key] = gen
	s.latest[key] = ev
}

func (s *Scheduler) begin(parent context.Context, key model.InstrumentKey) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(parent)
	s.inflight[key] = inflight{gen: s.gen, cancel: cancel}
	return ctx, s.gen
}

func (s *Scheduler) end(key model.InstrumentKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.inflight[key]; ok && cur.gen == gen {
		cur.cancel()
		delete(s.inflight, key)
	}
}

// Evaluate runs fetch, compute, classify and dispatch for one target.
func (s *Scheduler) Evaluate(ctx context.Context, t Target) model.Evaluation {
	ev := model.Evaluation{Key: t.Key, EvaluatedAt: s.now()}
	fields := []zap.Field{zap.String("ticker", t.Key.Ticker), zap.String("timeframe", string(t.Key.Timeframe))}

	series, err := s.bars.Get(ctx, t.Key)
	if err != nil {
		if errors.Is(err, model.ErrDataUnavailable) {
			ev.Error = NoDataMessage + ": " + err.Error()
			s.outcome(ctx, "no_data")
			s.log.Warn(NoDataMessage, append(fields, zap.Error(err))...)
		} else {
			ev.Error = err.Error()
			s.outcome(ctx, "error")
			s.log.Error("fetch bars", append(fields, zap.Error(err))...)
		}
		return ev
	}
	ev.Series = series
	ev.Range = calculator.RangeOf(series)

	snap, err := calculator.Compute(series, t.Params)
	if err != nil {
		ev.Error = err.Error()
		s.outcome(ctx, "invalid")
		s.log.Error("compute indicators", append(fields, zap.Error(err))...)
		return ev
	}
	ev.Snapshot = snap
	ev.Signal = strategy.Classify(snap)
	ev.Verdict = strategy.Verdict(ev.Signal)
	ev.LotSize = strategy.SuggestLotSize(s.sizing.Balance, snap.Close, s.sizing.Fraction).String()

	res, err := s.dispatcher.Evaluate(ctx, alert.Request{
		Key:      t.Key,
		Signal:   ev.Signal,
		Enabled:  t.Alerts,
		Snapshot: snap,
		Verdict:  ev.Verdict,
	})
	if err != nil {
		ev.Error = err.Error()
		s.outcome(ctx, "error")
		s.log.Error("dispatch signal", append(fields, zap.Error(err))...)
		return ev
	}
	ev.Dispatch = res

	s.metrics.Signal.WithLabelValues(t.Key.Ticker, string(t.Key.Timeframe)).Set(ev.Signal.Score())
	s.outcome(ctx, "ok")
	s.log.Info("instrument evaluated", append(fields,
		zap.String("signal", string(ev.Signal)),
		zap.Stringer("ema_fast", snap.EMAFast),
		zap.Stringer("ema_slow", snap.EMASlow),
		zap.Stringer("rsi", snap.RSI),
		zap.Bool("stale", series.Stale),
		zap.Bool("notified", res.Notified))...)
	return ev
}

// outcome counts a finished pass; cancelled ones are counted by Trigger.
func (s *Scheduler) outcome(ctx context.Context, label string) {
	if ctx.Err() != nil {
		return
	}
	s.metrics.Evaluations.WithLabelValues(label).Inc()
}

// Latest returns the most recent evaluation of every instrument, in target order.
func (s *Scheduler) Latest() []model.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Evaluation, 0, len(s.latest))
	for _, t := range s.targets {
		if ev, ok := s.latest[t.Key]; ok {
			out = append(out, ev)
		}
	}
	return out
}

// LatestFor returns the most recent evaluation of key.
func (s *Scheduler) LatestFor(key model.InstrumentKey) (model.Evaluation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.latest[key]
	return ev, ok
}

// OnClosedBar applies a closed candle from the live stream and re-evaluates the instrument.
func (s *Scheduler) OnClosedBar(ctx context.Context, key model.InstrumentKey, bar model.Bar) {
	if err := s.bars.Merge(ctx, key, bar); err != nil {
		s.log.Warn("merge closed bar", zap.Stringer("key", key), zap.Error(err))
		return
	}
	if _, err := s.Trigger(ctx, key); err != nil && !errors.Is(err, ErrSuperseded) {
		s.log.Warn("stream-triggered evaluation", zap.Stringer("key", key), zap.Error(err))
	}
}

// Refresh re-evaluates one instrument, or all of them when key is nil. With force the cached
// bars are dropped first so the pass refetches.
func (s *Scheduler) Refresh(ctx context.Context, key *model.InstrumentKey, force bool) ([]model.Evaluation, error) {
	if key == nil {
		if force {
			for _, t := range s.targets {
				if err := s.bars.Invalidate(ctx, t.Key); err != nil {
					return nil, fmt.Errorf("invalidate %s: %w", t.Key, err)
				}
			}
		}
		return s.RunAll(ctx), nil
	}

	if _, ok := s.target(*key); !ok {
		return nil, fmt.Errorf("%w: unknown instrument %s", model.ErrInvalidInput, *key)
	}
	if force {
		if err := s.bars.Invalidate(ctx, *key); err != nil {
			return nil, fmt.Errorf("invalidate %s: %w", *key, err)
		}
	}
	ev, err := s.Trigger(ctx, *key)
	if err != nil {
		return nil, err
	}
	return []model.Evaluation{ev}, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd, _, _ := strings.Cut(strings.TrimSpace(command), "@")
	switch strings.ToLower(cmd) {
	case "/refresh":
		return notifier.FormatStatus(s.RunAll(ctx))
	case "/status":
		return notifier.FormatStatus(s.Latest())
	default:
		return "Available commands:\n• /refresh - evaluate every instrument now\n• /status - latest signal per instrument"
	}
}
