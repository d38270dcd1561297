package mail

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatedSender struct {
	gate chan struct{}
	mu   sync.Mutex
	sent []ResetMessage
}

func (g *gatedSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return nil
}

func (g *gatedSender) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func TestDispatcherDoesNotWaitForProvider(t *testing.T) {
	sender := &gatedSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, 4, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	start := time.Now()
	require.NoError(t, d.SendPasswordReset(context.Background(), ResetMessage{To: "a@x.com", Token: "t"}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, sender.count())

	close(sender.gate)
	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sender := &gatedSender{gate: make(chan struct{})}
	d := NewDispatcher(sender, 1, zerolog.Nop())

	// Without Run nothing drains the queue.
	require.NoError(t, d.SendPasswordReset(context.Background(), ResetMessage{To: "a@x.com"}))
	assert.ErrorIs(t, d.SendPasswordReset(context.Background(), ResetMessage{To: "b@x.com"}), ErrQueueFull)
	assert.Equal(t, int64(1), d.Dropped())
}

func TestDispatcherFlushesOnShutdown(t *testing.T) {
	sender := &gatedSender{gate: make(chan struct{})}
	close(sender.gate)
	d := NewDispatcher(sender, 4, zerolog.Nop())

	require.NoError(t, d.SendPasswordReset(context.Background(), ResetMessage{To: "a@x.com"}))
	require.NoError(t, d.SendPasswordReset(context.Background(), ResetMessage{To: "b@x.com"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	<-d.Done()
	assert.Equal(t, 2, sender.count())
}
