package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"TradingStation/internal/keylock"
	"TradingStation/internal/metrics"
	"TradingStation/internal/model"
)

// StoreConfig controls freshness and the fetch window.
type StoreConfig struct {
	TTL          time.Duration
	Lookback     time.Duration
	FetchTimeout time.Duration
	// ServeStale returns the expired entry, marked Stale, when a refresh fails.
	ServeStale bool
}

// BarStore caches the latest series per (ticker, timeframe) and refetches only after TTL.
type BarStore struct {
	fetcher Fetcher
	cache   Cache
	cfg     StoreConfig
	locks   *keylock.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewBarStore creates a BarStore. A nil cache means an in-process MemoryCache.
func NewBarStore(fetcher Fetcher, cache Cache, cfg StoreConfig, m *metrics.Metrics, log *zap.Logger) *BarStore {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 365 * 24 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &BarStore{
		fetcher: fetcher,
		cache:   cache,
		cfg:     cfg,
		locks:   keylock.New(),
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Get returns the series for key, fetching upstream only when the cached entry is absent or expired.
func (s *BarStore) Get(ctx context.Context, key model.InstrumentKey) (model.Series, error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	entry, ok, err := s.cache.Load(ctx, key)
	if err != nil {
		s.log.Warn("cache load failed, treating as miss", zap.Stringer("key", key), zap.Error(err))
		ok = false
	}
	if ok && entry.Valid(s.now(), s.cfg.TTL) {
		s.metrics.CacheRequests.WithLabelValues("hit").Inc()
		return entry.Series.Clone(), nil
	}
	s.metrics.CacheRequests.WithLabelValues("miss").Inc()

	series, err := s.refresh(ctx, key)
	if err != nil {
		if ok && s.cfg.ServeStale {
			s.metrics.CacheRequests.WithLabelValues("stale").Inc()
			s.log.Warn("refresh failed, serving stale series",
				zap.Stringer("key", key),
				zap.Time("fetched_at", entry.FetchedAt),
				zap.Error(err))
			out := entry.Series.Clone()
			out.Stale = true
			return out, nil
		}
		return model.Series{}, err
	}

	if err := s.cache.Store(ctx, CacheEntry{Key: key, Series: series, FetchedAt: series.FetchedAt}); err != nil {
		s.log.Warn("cache store failed", zap.Stringer("key", key), zap.Error(err))
	}
	return series.Clone(), nil
}

func (s *BarStore) refresh(ctx context.Context, key model.InstrumentKey) (model.Series, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	bars, err := s.fetcher.Fetch(fetchCtx, key.Ticker, key.Timeframe, s.cfg.Lookback)
	s.metrics.FetchDuration.WithLabelValues(s.fetcher.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return model.Series{}, fmt.Errorf("fetch %s from %s: %w: %w", key, s.fetcher.Name(), model.ErrDataUnavailable, err)
	}

	bars = normalizeBars(bars)
	if len(bars) == 0 {
		return model.Series{}, fmt.Errorf("fetch %s from %s: %w: no bars returned", key, s.fetcher.Name(), model.ErrDataUnavailable)
	}

	s.log.Info("series refreshed",
		zap.Stringer("key", key),
		zap.String("provider", s.fetcher.Name()),
		zap.Int("bars", len(bars)))
	return model.Series{Key: key, Bars: bars, FetchedAt: s.now()}, nil
}

// Merge applies a closed bar from a live stream to a present entry.
// A bar with the same timestamp as the last one replaces it, a newer bar is appended, older bars are ignored.
// The entry keeps its FetchedAt, so freshness is still driven by the TTL.
func (s *BarStore) Merge(ctx context.Context, key model.InstrumentKey, bar model.Bar) error {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	entry, ok, err := s.cache.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return nil
	}

	bars := entry.Series.Clone().Bars
	last, hasLast := entry.Series.Last()
	switch {
	case !hasLast || bar.Time.After(last.Time):
		bars = append(bars, bar)
	case bar.Time.Equal(last.Time):
		bars[len(bars)-1] = bar
	default:
		return nil
	}

	entry.Series.Bars = bars
	if err := s.cache.Store(ctx, entry); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Invalidate drops the entry for key so the next Get refetches.
func (s *BarStore) Invalidate(ctx context.Context, key model.InstrumentKey) error {
	unlock := s.locks.Lock(key.String())
	defer unlock()
	return s.cache.Delete(ctx, key)
}

// normalizeBars sorts ascending and keeps the last bar for any repeated timestamp.
func normalizeBars(bars []model.Bar) []model.Bar {
	if len(bars) == 0 {
		return nil
	}
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	n := 0
	for i := range out {
		if n > 0 && out[i].Time.Equal(out[n-1].Time) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}
