package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"TradingStation/internal/alert"
	"TradingStation/internal/api"
	"TradingStation/internal/collector"
	"TradingStation/internal/config"
	"TradingStation/internal/logger"
	"TradingStation/internal/metrics"
	"TradingStation/internal/notifier"
	"TradingStation/internal/scheduler"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("config validation", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("station stopped with error", zap.Error(err))
	}
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case "binance":
		f := collector.NewBinanceFetcher(cfg.Proxy, cfg.FetchTimeout())
		if cfg.DataSource.BaseURL != "" {
			f.BaseURL = cfg.DataSource.BaseURL
		}
		return f
	case "alpaca":
		return collector.NewAlpacaFetcher(cfg.DataSource.APIKey, cfg.DataSource.APISecret, cfg.DataSource.BaseURL)
	case "mock":
		return &collector.MockFetcher{Price: 100}
	default:
		f := collector.NewYahooFetcher(cfg.Proxy, cfg.FetchTimeout())
		if cfg.DataSource.BaseURL != "" {
			f.BaseURL = cfg.DataSource.BaseURL
		}
		return f
	}
}

func newStateStore(cfg *config.Config, log *zap.Logger) (alert.StateStore, error) {
	switch cfg.Alerts.StateBackend {
	case "file":
		return alert.OpenFileStore(cfg.Alerts.StateFile)
	case "sqlite":
		return alert.OpenSQLiteStore(cfg.Alerts.SQLitePath, log)
	default:
		return alert.NewMemoryStore(), nil
	}
}

func newSinks(cfg *config.Config, tn *notifier.TelegramNotifier, log *zap.Logger) ([]notifier.Sink, func()) {
	var sinks []notifier.Sink
	cleanup := func() {}
	for _, name := range cfg.Alerts.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notifier.NewLogSink(log.Named("alert")))
		case "bell":
			sinks = append(sinks, notifier.NewBellSink(os.Stderr))
		case "telegram":
			sinks = append(sinks, tn)
		case "webhook":
			sinks = append(sinks, notifier.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Email, cfg.SinkTimeout()))
		case "kafka":
			ks := notifier.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			sinks = append(sinks, ks)
			cleanup = func() {
				if err := ks.Close(); err != nil {
					log.Warn("close kafka writer", zap.Error(err))
				}
			}
		}
	}
	return sinks, cleanup
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("TradingStation starting", zap.String("provider", cfg.DataSource.Provider))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Bar cache: Redis when configured, otherwise in-process
	var cache collector.Cache
	if cfg.Cache.Redis.Addr != "" {
		rc, err := collector.NewRedisCache(ctx, collector.RedisConfig{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			Retention: time.Duration(cfg.Cache.Redis.RetentionHours) * time.Hour,
		})
		if err != nil {
			log.Warn("redis cache unavailable, using memory cache", zap.Error(err))
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	fetcher := newFetcher(cfg)
	bars := collector.NewBarStore(fetcher, cache, collector.StoreConfig{
		TTL:          cfg.TTL(),
		Lookback:     cfg.Lookback(),
		FetchTimeout: cfg.FetchTimeout(),
		ServeStale:   cfg.Cache.ServeStale,
	}, m, log.Named("bars"))

	store, err := newStateStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open alert state: %w", err)
	}
	defer store.Close()

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, cfg.Alerts.Retries, log.Named("telegram"))
	sinks, closeSinks := newSinks(cfg, tn, log)
	defer closeSinks()
	dispatcher := alert.NewDispatcher(store, sinks, cfg.SinkTimeout(), m, log.Named("dispatcher"))

	var targets []scheduler.Target
	for _, inst := range cfg.Instruments() {
		targets = append(targets, scheduler.Target{Key: inst.Key(), Params: inst.Params(), Alerts: inst.Alerts()})
	}
	sched := scheduler.NewScheduler(ctx, bars, dispatcher, targets,
		scheduler.Sizing{Balance: cfg.Sizing.Balance, Fraction: cfg.Sizing.Fraction}, m, log.Named("scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Telegram.Polling && cfg.Telegram.BotToken != "" {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if cfg.DataSource.Stream {
		for _, t := range targets {
			stream := collector.NewKlineStream(collector.StreamConfig{BaseURL: cfg.DataSource.StreamURL},
				t.Key, sched.OnClosedBar, log.Named("stream"))
			go stream.Run(ctx)
		}
		log.Info("kline streams started", zap.Int("instruments", len(targets)))
	}

	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, evaluating now")
		go sched.RunAll(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(sched, dispatcher, reg, log.Named("api")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, stopping")
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	log.Info("TradingStation stopped")
	return nil
}
