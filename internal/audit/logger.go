// Package audit records security events without ever slowing down or
// failing the request that produced them.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/ids"
)

// Recorder is what request-path code depends on.
type Recorder interface {
	Record(event Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(event Event)

func (f RecorderFunc) Record(event Event) { f(event) }

type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Logger queues events on a bounded channel drained by Run. When the queue
// is full the event is dropped and counted.
type Logger struct {
	queue   chan Event
	sink    Sink
	log     zerolog.Logger
	clock   clock.Clock
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

func NewLogger(sink Sink, size int, log zerolog.Logger) *Logger {
	if size <= 0 {
		size = 1024
	}
	return &Logger{
		queue: make(chan Event, size),
		sink:  sink,
		log:   log,
		clock: clock.Real(),
		done:  make(chan struct{}),
	}
}

func (l *Logger) Record(event Event) {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.clock.Now().UTC()
	}

	select {
	case l.queue <- event:
	default:
		n := l.dropped.Add(1)
		l.log.Warn().
			Str("action", string(event.Action)).
			Int64("dropped_total", n).
			Msg("audit queue full, event dropped")
	}
}

func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left within a short grace period.
func (l *Logger) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case event := <-l.queue:
			l.write(ctx, event)
		case <-ctx.Done():
			l.flush()
			return
		}
	}
}

// Done is closed once Run has returned.
func (l *Logger) Done() <-chan struct{} {
	return l.done
}

func (l *Logger) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		select {
		case event := <-l.queue:
			l.write(ctx, event)
		default:
			return
		}
	}
}

func (l *Logger) write(ctx context.Context, event Event) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := l.sink.Write(writeCtx, event); err != nil {
		l.log.Error().
			Err(err).
			Str("event_id", event.ID).
			Str("action", string(event.Action)).
			Msg("audit write failed")
	}
}
