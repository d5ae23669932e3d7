package notifier

import (
	"context"
	"time"

	"TradingStation/internal/model"
)

// Notification is the message fanned out to every sink on a signal transition.
type Notification struct {
	ID       string                  `json:"id"`
	Key      model.InstrumentKey     `json:"key"`
	Previous model.Signal            `json:"previous"`
	Current  model.Signal            `json:"current"`
	Snapshot model.IndicatorSnapshot `json:"snapshot"`
	Message  string                  `json:"message"`
	At       time.Time               `json:"at"`
}

// Sink delivers a notification somewhere. Implementations must honour ctx.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}
