package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Write(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestLoggerDeliversEvents(t *testing.T) {
	sink := &captureSink{}
	logger := NewLogger(sink, 8, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go logger.Run(ctx)

	logger.Record(Event{Action: ActionLoginSuccess, Outcome: OutcomeSuccess, ActorID: "acc-1"})

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := sink.snapshot()[0]
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OccurredAt.IsZero())
	assert.Equal(t, "acc-1", got.ActorID)

	cancel()
	<-logger.Done()
}

func TestLoggerNeverBlocksWhenSinkIsStuck(t *testing.T) {
	release := make(chan struct{})
	stuck := SinkFunc(func(ctx context.Context, _ Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	logger := NewLogger(stuck, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go logger.Run(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			logger.Record(Event{Action: ActionAccessGranted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow sink")
	}
	assert.Greater(t, logger.Dropped(), int64(0))
	close(release)
}

func TestLoggerSwallowsSinkErrors(t *testing.T) {
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("backend down") })
	logger := NewLogger(failing, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go logger.Run(ctx)

	logger.Record(Event{Action: ActionLogout})
	cancel()

	select {
	case <-logger.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoggerFlushesOnShutdown(t *testing.T) {
	sink := &captureSink{}
	logger := NewLogger(sink, 16, zerolog.Nop())

	for i := 0; i < 5; i++ {
		logger.Record(Event{Action: ActionRefresh})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.Run(ctx)

	assert.Len(t, sink.snapshot(), 5)
}

func TestEventValuesRoundTrip(t *testing.T) {
	in := Event{
		ID:         "evt-1",
		Action:     ActionAccessDenied,
		Outcome:    OutcomeFailure,
		Code:       "TOKEN_EXPIRED",
		Metadata:   map[string]any{"reason": "expired"},
		OccurredAt: time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC),
	}
	values, err := in.Values()
	require.NoError(t, err)

	out, err := EventFromValues(values)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Code, out.Code)
	assert.True(t, in.OccurredAt.Equal(out.OccurredAt))

	_, err = EventFromValues(map[string]interface{}{"id": "x"})
	assert.Error(t, err)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	sink := &captureSink{}
	multi := MultiSink{sink, SinkFunc(func(context.Context, Event) error { return errors.New("boom") })}

	err := multi.Write(context.Background(), Event{Action: ActionLogout})
	assert.Error(t, err)
	assert.Len(t, sink.snapshot(), 1)
}
