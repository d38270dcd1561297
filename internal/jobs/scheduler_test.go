package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/kv"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/session"
)

func TestRunAllSweepsEveryJob(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := kv.NewMemory[models.Session]()
	sessions := session.NewRegistry(store, session.WithClock(clk))

	ctx := context.Background()
	_, err := sessions.Create(ctx, "acc-1", session.Origin{})
	require.NoError(t, err)
	clk.Advance(4*time.Hour + time.Second)

	calls := 0
	s := NewScheduler("0 0 */1 * * *", zerolog.Nop())
	s.Add("sessions", sessions)
	s.Add("failing", SweepFunc(func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}))

	s.RunAll()
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler("not a schedule", zerolog.Nop())
	s.Add("noop", SweepFunc(func(context.Context) (int, error) { return 0, nil }))
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler("0 0 */1 * * *", zerolog.Nop())
	s.Add("noop", SweepFunc(func(context.Context) (int, error) { return 0, nil }))
	require.NoError(t, s.Start())
	s.Stop(time.Second)
}
