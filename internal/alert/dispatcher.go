// Package alert turns classified signals into at-most-once notifications per transition.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"TradingStation/internal/keylock"
	"TradingStation/internal/metrics"
	"TradingStation/internal/model"
	"TradingStation/internal/notifier"
)

const defaultSinkTimeout = 10 * time.Second

// Request is one evaluation handed to the dispatcher.
type Request struct {
	Key      model.InstrumentKey
	Signal   model.Signal
	Enabled  bool
	Snapshot model.IndicatorSnapshot
	Verdict  string
}

// Dispatcher tracks the last emitted signal per instrument and notifies sinks on transitions.
type Dispatcher struct {
	store       StateStore
	sinks       []notifier.Sink
	sinkTimeout time.Duration
	locks       *keylock.Locker
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

// NewDispatcher creates a dispatcher over store. A nil store means a MemoryStore and a
// non-positive sinkTimeout falls back to 10s.
func NewDispatcher(store StateStore, sinks []notifier.Sink, sinkTimeout time.Duration, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if store == nil {
		store = NewMemoryStore()
	}
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}
	return &Dispatcher{
		store:       store,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
		locks:       keylock.New(),
		metrics:     m,
		log:         log,
		now:         time.Now,
	}
}

// Evaluate commits the new state for req.Key and, on an enabled transition, notifies every sink once.
// If ctx is done before the commit nothing changes. Once committed, delivery runs to completion
// under per-sink timeouts and sink failures are reported in the result, never as an error.
func (d *Dispatcher) Evaluate(ctx context.Context, req Request) (model.DispatchResult, error) {
	unlock := d.locks.Lock(req.Key.String())
	defer unlock()

	state, ok, err := d.store.Load(ctx, req.Key)
	if err != nil {
		return model.DispatchResult{}, fmt.Errorf("dispatch %s: %w", req.Key, err)
	}
	if !ok {
		state = model.InitialAlertState(req.Key)
	}

	result := model.DispatchResult{
		Key:        req.Key,
		Previous:   state.LastSignal,
		Current:    req.Signal,
		Transition: state.LastSignal != req.Signal,
	}
	notify := result.Transition && req.Enabled

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("dispatch %s: %w", req.Key, err)
	}

	now := d.now()
	next := state
	next.LastEvaluatedAt = now
	if notify {
		next.LastSignal = req.Signal
		next.LastChangedAt = now
	}
	if err := d.store.Save(context.WithoutCancel(ctx), next); err != nil {
		return result, fmt.Errorf("dispatch %s: %w", req.Key, err)
	}

	if !notify {
		return result, nil
	}

	d.metrics.Transitions.WithLabelValues(string(req.Signal)).Inc()
	n := notifier.Notification{
		ID:       uuid.NewString(),
		Key:      req.Key,
		Previous: result.Previous,
		Current:  req.Signal,
		Snapshot: req.Snapshot,
		Message:  notifier.TransitionMessage(req.Key, result.Previous, req.Signal, req.Verdict),
		At:       now,
	}
	result.Notified = true
	result.NotificationID = n.ID
	result.Deliveries = d.fanOut(context.WithoutCancel(ctx), n)

	d.log.Info("signal transition dispatched",
		zap.String("ticker", req.Key.Ticker),
		zap.String("timeframe", string(req.Key.Timeframe)),
		zap.String("previous", string(result.Previous)),
		zap.String("signal", string(req.Signal)),
		zap.String("notification_id", n.ID),
		zap.Int("sinks", len(result.Deliveries)),
		zap.Int("failures", result.Failures()))
	return result, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, n notifier.Notification) []model.Delivery {
	deliveries := make([]model.Delivery, len(d.sinks))
	var wg sync.WaitGroup
	for i, sink := range d.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliveries[i] = d.deliver(ctx, sink, n)
		}()
	}
	wg.Wait()
	return deliveries
}

func (d *Dispatcher) deliver(ctx context.Context, sink notifier.Sink, n notifier.Notification) (del model.Delivery) {
	sctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
	defer cancel()

	start := time.Now()
	del.Sink = sink.Name()
	defer func() {
		if r := recover(); r != nil {
			d.fail(&del, n, fmt.Errorf("panic: %v", r))
		}
		del.Duration = time.Since(start)
	}()

	if err := sink.Notify(sctx, n); err != nil {
		d.fail(&del, n, err)
		return del
	}
	d.metrics.Notifications.WithLabelValues(del.Sink, "ok").Inc()
	return del
}

func (d *Dispatcher) fail(del *model.Delivery, n notifier.Notification, err error) {
	err = fmt.Errorf("%w: %s: %w", model.ErrSinkDelivery, del.Sink, err)
	del.Error = err.Error()
	d.metrics.Notifications.WithLabelValues(del.Sink, "error").Inc()
	d.log.Warn("sink delivery failed",
		zap.String("sink", del.Sink),
		zap.Stringer("key", n.Key),
		zap.String("notification_id", n.ID),
		zap.Error(err))
}

// State returns the current dedup state for key, or the Neutral baseline if none is stored.
func (d *Dispatcher) State(ctx context.Context, key model.InstrumentKey) (model.AlertState, error) {
	st, ok, err := d.store.Load(ctx, key)
	if err != nil {
		return model.AlertState{}, err
	}
	if !ok {
		return model.InitialAlertState(key), nil
	}
	return st, nil
}

// States lists every stored alert state.
func (d *Dispatcher) States(ctx context.Context) ([]model.AlertState, error) {
	return d.store.List(ctx)
}
