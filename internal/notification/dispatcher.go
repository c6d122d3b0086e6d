package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tibcore/internal/bus"
	"tibcore/internal/model"
)

// DispatcherConfig tunes queueing and retry behavior.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

func (c *DispatcherConfig) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 8 * time.Second
	}
	if c.BreakerMaxFailures <= 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerResetTimeout <= 0 {
		c.BreakerResetTimeout = 10 * time.Second
	}
}

// Dispatcher fans alert events out to every configured sink with bounded
// exponential-backoff retries. Exhausted retries produce a failed delivery
// status; rule evaluation state is never rolled back for a delivery
// failure.
type Dispatcher struct {
	cfg      DispatcherConfig
	sinks    []Sink
	breakers []*CircuitBreaker
	queue    chan model.AlertEvent
	status   *bus.FanOut[model.DeliveryStatus]
	log      zerolog.Logger

	// Metrics hooks (optional).
	OnDelivered    func(sink string)
	OnFailed       func(sink string)
	OnLatency      func(sink string, elapsed time.Duration)
	OnQueueDrop    func()
	OnBreakerState func(sink string, state State)
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks []Sink, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	cfg.defaults()
	d := &Dispatcher{
		cfg:      cfg,
		sinks:    sinks,
		breakers: make([]*CircuitBreaker, len(sinks)),
		queue:    make(chan model.AlertEvent, cfg.QueueSize),
		status:   bus.New[model.DeliveryStatus](cfg.QueueSize),
		log:      log,
	}
	for i, sink := range sinks {
		name := sink.Name()
		cb := NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
		cb.OnStateChange = func(from, to State) {
			d.log.Warn().Str("sink", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
			if d.OnBreakerState != nil {
				d.OnBreakerState(name, to)
			}
		}
		d.breakers[i] = cb
	}
	return d
}

// Enqueue hands an event to the dispatcher without blocking. A full queue
// drops the event and reports it; delivery loss is never silent.
func (d *Dispatcher) Enqueue(ev model.AlertEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.log.Error().Str("event_id", ev.ID).Msg("dispatch queue full, dropping alert")
		if d.OnQueueDrop != nil {
			d.OnQueueDrop()
		}
		return false
	}
}

// Status returns a subscription to delivery-status events.
func (d *Dispatcher) Status() <-chan model.DeliveryStatus {
	return d.status.Subscribe()
}

// QueueDepth returns the number of alerts waiting for a worker.
func (d *Dispatcher) QueueDepth() int { return len(d.queue) }

// QueueCap returns the dispatch queue capacity.
func (d *Dispatcher) QueueCap() int { return cap(d.queue) }

// StatusStats reports fill levels of the status subscriber channels, used
// for saturation gauges.
func (d *Dispatcher) StatusStats() []bus.ChannelStat {
	return d.status.ChannelStats()
}

// Run starts the delivery workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-d.queue:
					d.deliver(ctx, ev)
				}
			}
		}()
	}
	wg.Wait()
}

// deliver pushes one event to every sink, retrying each independently.
func (d *Dispatcher) deliver(ctx context.Context, ev model.AlertEvent) {
	for i, sink := range d.sinks {
		d.deliverTo(ctx, sink, d.breakers[i], ev)
	}
}

func (d *Dispatcher) deliverTo(ctx context.Context, sink Sink, cb *CircuitBreaker, ev model.AlertEvent) {
	start := time.Now()
	backoff := d.cfg.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := cb.Execute(func() error {
			return sink.Dispatch(ctx, ev)
		})
		if err == nil {
			if d.OnDelivered != nil {
				d.OnDelivered(sink.Name())
			}
			if d.OnLatency != nil {
				d.OnLatency(sink.Name(), time.Since(start))
			}
			d.status.Publish(model.DeliveryStatus{
				EventID:   ev.ID,
				Sink:      sink.Name(),
				Attempts:  attempt,
				Delivered: true,
				TS:        time.Now().UTC(),
			})
			return
		}
		lastErr = err

		if attempt < d.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				attempt++ // count the abandoned attempt in the status record
				lastErr = ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > d.cfg.MaxBackoff {
					backoff = d.cfg.MaxBackoff
				}
				continue
			}
		}

		// Retries exhausted or context gone: terminal failure.
		d.log.Error().
			Err(lastErr).
			Str("sink", sink.Name()).
			Str("event_id", ev.ID).
			Int("attempts", attempt).
			Msg("alert delivery failed")
		if d.OnFailed != nil {
			d.OnFailed(sink.Name())
		}
		d.status.Publish(model.DeliveryStatus{
			EventID:  ev.ID,
			Sink:     sink.Name(),
			Attempts: attempt,
			Error:    lastErr.Error(),
			TS:       time.Now().UTC(),
		})
		return
	}
}
