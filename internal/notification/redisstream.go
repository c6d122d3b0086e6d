package notification

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"tibcore/internal/model"
)

const (
	alertStreamKey = "tib:alerts"
	// ~1 day of heavy alerting; trimmed approximately on each XADD.
	alertStreamMaxLen = 20000
)

// RedisStreamSink appends alert events to a Redis stream for downstream
// consumers.
type RedisStreamSink struct {
	client *goredis.Client
}

// NewRedisStreamSink creates a Redis stream sink on an existing client.
func NewRedisStreamSink(client *goredis.Client) *RedisStreamSink {
	return &RedisStreamSink{client: client}
}

func (r *RedisStreamSink) Name() string { return "redis_stream" }

func (r *RedisStreamSink) Dispatch(ctx context.Context, ev model.AlertEvent) error {
	err := r.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: alertStreamKey,
		MaxLen: alertStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":         ev.ID,
			"rule_id":    ev.RuleID,
			"instrument": ev.Instrument,
			"severity":   string(ev.Severity),
			"payload":    string(ev.JSON()),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis stream: xadd: %w", err)
	}
	return nil
}
