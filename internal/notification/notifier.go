// Package notification delivers alert events to external channels
// (webhooks, Telegram, Kafka, Redis streams) behind a simple dispatch
// interface, with bounded retries and a circuit breaker per sink.
package notification

import (
	"context"

	"github.com/rs/zerolog"

	"tibcore/internal/model"
)

// Sink is the interface for all delivery backends.
type Sink interface {
	// Name identifies the sink in delivery-status records and metrics.
	Name() string

	// Dispatch delivers one alert event. Returns an error on failure;
	// retries are the dispatcher's business.
	Dispatch(ctx context.Context, ev model.AlertEvent) error
}

// LogSink writes alerts to the log (useful for development).
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-based sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Dispatch(_ context.Context, ev model.AlertEvent) error {
	s.log.Info().
		Str("event_id", ev.ID).
		Str("rule_id", ev.RuleID).
		Str("instrument", ev.Instrument).
		Str("severity", string(ev.Severity)).
		Msg(ev.Message)
	return nil
}
