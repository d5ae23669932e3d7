package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogSink is the visual sink: one structured log line per transition.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates the visual sink on log.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.log.Info(n.Message,
		zap.String("notification_id", n.ID),
		zap.String("ticker", n.Key.Ticker),
		zap.String("timeframe", string(n.Key.Timeframe)),
		zap.String("previous", string(n.Previous)),
		zap.String("signal", string(n.Current)),
		zap.Stringer("ema_fast", n.Snapshot.EMAFast),
		zap.Stringer("ema_slow", n.Snapshot.EMASlow),
		zap.Stringer("rsi", n.Snapshot.RSI),
	)
	return nil
}
