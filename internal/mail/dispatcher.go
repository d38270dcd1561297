package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("mail queue full")

// Dispatcher is a Sender that queues messages and delivers them from Run,
// so a request never waits on a mail provider. A full queue drops the
// message.
type Dispatcher struct {
	sender  Sender
	queue   chan ResetMessage
	log     zerolog.Logger
	timeout time.Duration
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

func NewDispatcher(sender Sender, size int, log zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan ResetMessage, size),
		log:     log,
		timeout: 15 * time.Second,
		done:    make(chan struct{}),
	}
}

// SendPasswordReset enqueues msg and returns at once. The request context
// is not carried over, since delivery outlives the request.
func (d *Dispatcher) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	select {
	case d.queue <- msg:
		return nil
	default:
		n := d.dropped.Add(1)
		d.log.Warn().Int64("dropped_total", n).Msg("mail queue full, reset email dropped")
		return ErrQueueFull
	}
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued messages until ctx is cancelled, then delivers what
// is left. Each send is bounded by its own timeout.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })

	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) flush() {
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg ResetMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sender.SendPasswordReset(ctx, msg); err != nil {
		d.log.Error().Err(err).Str("to", msg.To).Msg("send reset email failed")
	}
}
