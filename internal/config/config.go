package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TradingStation/internal/model"
)

// Instrument is one (ticker, timeframe) evaluation target with its indicator periods.
type Instrument struct {
	Ticker        string `yaml:"ticker" env:"TICKER"`
	Timeframe     string `yaml:"timeframe" env:"TIMEFRAME"`
	EMAFastPeriod int    `yaml:"ema_fast_period" env:"EMA_FAST_PERIOD"`
	EMASlowPeriod int    `yaml:"ema_slow_period" env:"EMA_SLOW_PERIOD"`
	RSIPeriod     int    `yaml:"rsi_period" env:"RSI_PERIOD"`
	AlertsEnabled *bool  `yaml:"alerts_enabled" env:"ALERTS_ENABLED"`
}

func (i Instrument) Key() model.InstrumentKey {
	return model.InstrumentKey{Ticker: i.Ticker, Timeframe: model.Timeframe(i.Timeframe)}
}

func (i Instrument) Params() model.IndicatorParams {
	return model.IndicatorParams{EMAFast: i.EMAFastPeriod, EMASlow: i.EMASlowPeriod, RSI: i.RSIPeriod}
}

// Alerts reports whether transitions for this instrument notify the sinks.
func (i Instrument) Alerts() bool {
	return i.AlertsEnabled == nil || *i.AlertsEnabled
}

// Config holds all application configuration.
type Config struct {
	Instrument Instrument   `yaml:"instrument"`
	Watchlist  []Instrument `yaml:"watchlist"`

	DataSource struct {
		Provider       string `yaml:"provider" env:"DATA_PROVIDER"` // yahoo | binance | alpaca | mock
		BaseURL        string `yaml:"base_url" env:"DATA_BASE_URL"`
		APIKey         string `yaml:"api_key" env:"DATA_API_KEY"`
		APISecret      string `yaml:"api_secret" env:"DATA_API_SECRET"`
		LookbackDays   int    `yaml:"lookback_days" env:"DATA_LOOKBACK_DAYS"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"DATA_TIMEOUT_SECONDS"`
		Stream         bool   `yaml:"stream" env:"DATA_STREAM"`
		StreamURL      string `yaml:"stream_url" env:"DATA_STREAM_URL"`
	} `yaml:"data_source"`

	Cache struct {
		TTLSeconds int  `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS"`
		ServeStale bool `yaml:"serve_stale" env:"CACHE_SERVE_STALE"`
		Redis      struct {
			Addr           string `yaml:"addr" env:"REDIS_ADDR"`
			Password       string `yaml:"password" env:"REDIS_PASSWORD"`
			DB             int    `yaml:"db" env:"REDIS_DB"`
			RetentionHours int    `yaml:"retention_hours" env:"REDIS_RETENTION_HOURS"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Alerts struct {
		Sinks              []string `yaml:"sinks" env:"ALERT_SINKS" envSeparator:","`
		SinkTimeoutSeconds int      `yaml:"sink_timeout_seconds" env:"ALERT_SINK_TIMEOUT_SECONDS"`
		Retries            int      `yaml:"retries" env:"ALERT_RETRIES"`
		StateBackend       string   `yaml:"state_backend" env:"ALERT_STATE_BACKEND"` // memory | file | sqlite
		StateFile          string   `yaml:"state_file" env:"ALERT_STATE_FILE"`
		SQLitePath         string   `yaml:"sqlite_path" env:"SQLITE_PATH"`
	} `yaml:"alerts"`

	Telegram struct {
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
		Polling  bool   `yaml:"polling" env:"TELEGRAM_POLLING"`
	} `yaml:"telegram"`

	Webhook struct {
		URL   string `yaml:"url" env:"WEBHOOK_URL"`
		Email string `yaml:"email" env:"WEBHOOK_EMAIL"`
	} `yaml:"webhook"`

	Kafka struct {
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	} `yaml:"kafka"`

	Schedule struct {
		Cron       string `yaml:"cron" env:"CRON_EVALUATE"`
		RunOnStart bool   `yaml:"run_on_start" env:"RUN_ON_START"`
	} `yaml:"schedule"`

	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	Sizing struct {
		Balance  float64 `yaml:"balance" env:"SIZING_BALANCE"`
		Fraction float64 `yaml:"fraction" env:"SIZING_FRACTION"`
	} `yaml:"sizing"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Proxy string `yaml:"proxy" env:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then a .env file if present, then environment overrides,
// then fills defaults for anything still unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (i *Instrument) applyDefaults() {
	if i.Timeframe == "" {
		i.Timeframe = string(model.Timeframe1d)
	}
	if i.EMAFastPeriod == 0 {
		i.EMAFastPeriod = 9
	}
	if i.EMASlowPeriod == 0 {
		i.EMASlowPeriod = 21
	}
	if i.RSIPeriod == 0 {
		i.RSIPeriod = 14
	}
}

func (c *Config) applyDefaults() {
	if c.Instrument.Ticker == "" && len(c.Watchlist) == 0 {
		c.Instrument.Ticker = "BTC-USD"
	}
	c.Instrument.applyDefaults()
	for i := range c.Watchlist {
		c.Watchlist[i].applyDefaults()
	}

	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.LookbackDays == 0 {
		c.DataSource.LookbackDays = 365
	}
	if c.DataSource.TimeoutSeconds == 0 {
		c.DataSource.TimeoutSeconds = 30
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Cache.Redis.RetentionHours == 0 {
		c.Cache.Redis.RetentionHours = 24
	}
	if len(c.Alerts.Sinks) == 0 {
		c.Alerts.Sinks = []string{"log", "bell", "webhook"}
	}
	if c.Alerts.SinkTimeoutSeconds == 0 {
		c.Alerts.SinkTimeoutSeconds = 10
	}
	if c.Alerts.StateBackend == "" {
		c.Alerts.StateBackend = "memory"
	}
	if c.Alerts.StateFile == "" {
		c.Alerts.StateFile = "data/alert_state.json"
	}
	if c.Alerts.SQLitePath == "" {
		c.Alerts.SQLitePath = "data/trading_station.db"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "signal-transitions"
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 */5 * * * *"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Sizing.Balance == 0 {
		c.Sizing.Balance = 1000
	}
	if c.Sizing.Fraction == 0 {
		c.Sizing.Fraction = 0.1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Instruments returns the primary instrument followed by the watchlist.
func (c *Config) Instruments() []Instrument {
	var out []Instrument
	if c.Instrument.Ticker != "" {
		out = append(out, c.Instrument)
	}
	return append(out, c.Watchlist...)
}

func (c *Config) TTL() time.Duration          { return time.Duration(c.Cache.TTLSeconds) * time.Second }
func (c *Config) Lookback() time.Duration     { return time.Duration(c.DataSource.LookbackDays) * 24 * time.Hour }
func (c *Config) FetchTimeout() time.Duration { return time.Duration(c.DataSource.TimeoutSeconds) * time.Second }
func (c *Config) SinkTimeout() time.Duration  { return time.Duration(c.Alerts.SinkTimeoutSeconds) * time.Second }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func inRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid("%s must be between %d and %d, got %d", name, lo, hi, v)
	}
	return nil
}

func (i Instrument) validate(field string) error {
	if strings.TrimSpace(i.Ticker) == "" {
		return invalid("%s.ticker is required", field)
	}
	if _, err := model.ParseTimeframe(i.Timeframe); err != nil {
		return fmt.Errorf("%s.timeframe: %w", field, err)
	}
	if err := inRange(field+".ema_fast_period", i.EMAFastPeriod, 5, 50); err != nil {
		return err
	}
	if err := inRange(field+".ema_slow_period", i.EMASlowPeriod, 20, 200); err != nil {
		return err
	}
	return inRange(field+".rsi_period", i.RSIPeriod, 5, 30)
}

var knownSinks = map[string]bool{"log": true, "bell": true, "telegram": true, "webhook": true, "kafka": true}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	if c.Instrument.Ticker == "" && len(c.Watchlist) == 0 {
		return invalid("at least one instrument is required")
	}
	seen := make(map[model.InstrumentKey]bool)
	check := func(field string, inst Instrument) error {
		if err := inst.validate(field); err != nil {
			return err
		}
		if seen[inst.Key()] {
			return invalid("duplicate instrument %s", inst.Key())
		}
		seen[inst.Key()] = true
		return nil
	}
	if c.Instrument.Ticker != "" {
		if err := check("instrument", c.Instrument); err != nil {
			return err
		}
	}
	for n, inst := range c.Watchlist {
		if err := check(fmt.Sprintf("watchlist[%d]", n), inst); err != nil {
			return err
		}
	}

	switch c.DataSource.Provider {
	case "yahoo", "binance", "mock":
	case "alpaca":
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return invalid("data_source.api_key and api_secret are required for alpaca")
		}
	default:
		return invalid("unknown data_source.provider %q", c.DataSource.Provider)
	}
	if c.DataSource.Stream && c.DataSource.Provider != "binance" {
		return invalid("data_source.stream requires the binance provider, got %q", c.DataSource.Provider)
	}
	if c.DataSource.LookbackDays <= 0 {
		return invalid("data_source.lookback_days must be positive")
	}
	if c.Cache.TTLSeconds <= 0 {
		return invalid("cache.ttl_seconds must be positive")
	}
	if c.Alerts.SinkTimeoutSeconds <= 0 {
		return invalid("alerts.sink_timeout_seconds must be positive")
	}

	if c.Alerts.Retries < 0 {
		return invalid("alerts.retries must not be negative, got %d", c.Alerts.Retries)
	}
	for _, s := range c.Alerts.Sinks {
		if !knownSinks[s] {
			return invalid("unknown alert sink %q", s)
		}
	}
	if c.HasSink("telegram") && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return invalid("telegram.bot_token and telegram.chat_id are required for the telegram sink")
	}
	if c.HasSink("kafka") && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers is required for the kafka sink")
	}

	switch c.Alerts.StateBackend {
	case "memory", "file", "sqlite":
	default:
		return invalid("unknown alerts.state_backend %q", c.Alerts.StateBackend)
	}

	if c.Sizing.Balance <= 0 {
		return invalid("sizing.balance must be positive")
	}
	if c.Sizing.Fraction <= 0 || c.Sizing.Fraction > 1 {
		return invalid("sizing.fraction must be in (0, 1]")
	}
	return nil
}

// HasSink reports whether name is among the enabled sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Alerts.Sinks {
		if s == name {
			return true
		}
	}
	return false
}
