package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink persists event batches. Write failures are logged and the batch is
// dropped; events are observability, not state.
type Sink interface {
	WriteEvents(ctx context.Context, batch []Event) error
}

type Config struct {
	// BufferSize bounds the in-flight queue; a full queue drops new events.
	BufferSize int
	// FlushInterval is how long the writer waits to coalesce a batch.
	FlushInterval time.Duration
	// MaxBatch caps events written per sink call.
	MaxBatch int
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 64
	}
	return c
}

type Emitter struct {
	sink Sink
	cfg  Config
	ch   chan Event
	done chan struct{}
}

func NewEmitter(sink Sink, cfg Config) *Emitter {
	cfg = cfg.withDefaults()
	return &Emitter{
		sink: sink,
		cfg:  cfg,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}
}

// Emit queues an event. Never blocks; a full buffer drops the event.
func (e *Emitter) Emit(ev Event) {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	if ev.TraceID == uuid.Nil {
		ev.TraceID = uuid.New()
	}

	select {
	case e.ch <- ev:
	default:
		slog.Warn("event buffer full, dropping event", "code", ev.Code, "severity", ev.Severity)
	}
}

// Run drains the queue into the sink until ctx is cancelled, then flushes
// whatever is still buffered.
func (e *Emitter) Run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	var pending []Event
	for {
		select {
		case ev := <-e.ch:
			pending = append(pending, ev)
			if len(pending) >= e.cfg.MaxBatch {
				pending = e.flush(ctx, pending)
			}
		case <-ticker.C:
			pending = e.flush(ctx, pending)
		case <-ctx.Done():
			e.drainAndFlush(pending)
			return
		}
	}
}

// Done reports when Run has finished flushing after cancellation.
func (e *Emitter) Done() <-chan struct{} {
	return e.done
}

func (e *Emitter) flush(ctx context.Context, pending []Event) []Event {
	if len(pending) == 0 {
		return pending
	}
	if err := e.sink.WriteEvents(ctx, pending); err != nil {
		slog.Warn("failed to write event batch, dropping", "error", err, "count", len(pending))
	}
	return pending[:0]
}

func (e *Emitter) drainAndFlush(pending []Event) {
	for {
		select {
		case ev := <-e.ch:
			pending = append(pending, ev)
		default:
			if len(pending) == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := e.sink.WriteEvents(ctx, pending); err != nil {
				slog.Warn("failed to flush events on shutdown", "error", err, "count", len(pending))
			}
			return
		}
	}
}
