package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/kv"
	"wellnesscms/api/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, *clock.Fake, *kv.Memory[models.Session]) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := kv.NewMemory[models.Session]()
	return NewRegistry(store, WithClock(clk)), clk, store
}

func TestCreateAndGet(t *testing.T) {
	reg, clk, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Create(ctx, "acc-1", Origin{IPAddress: "10.0.0.1", UserAgent: "curl"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Active)
	assert.Equal(t, clk.Now(), s.CreatedAt)

	got, err := reg.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRegeneratesCollidingID(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	n := 0
	clk := clock.NewFake(time.Now())
	reg := NewRegistry(kv.NewMemory[models.Session](), WithClock(clk), WithIDGenerator(func() string {
		id := ids[n]
		n++
		return id
	}))
	ctx := context.Background()

	first, err := reg.Create(ctx, "acc-1", Origin{})
	require.NoError(t, err)
	second, err := reg.Create(ctx, "acc-2", Origin{})
	require.NoError(t, err)

	assert.Equal(t, "dup", first.ID)
	assert.Equal(t, "fresh", second.ID)
}

func TestTouchExtendsLifetime(t *testing.T) {
	reg, clk, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Create(ctx, "acc-1", Origin{})
	require.NoError(t, err)

	clk.Advance(3 * time.Hour)
	_, err = reg.Touch(ctx, s.ID)
	require.NoError(t, err)

	clk.Advance(3 * time.Hour)
	_, err = reg.Get(ctx, s.ID)
	require.NoError(t, err, "activity 3h ago keeps the session live")

	clk.Advance(time.Hour + time.Second)
	_, err = reg.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInactive)

	_, err = reg.Touch(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInactive, "idle sessions are not revived by touch")
}

func TestRevokeIsIdempotentAndFinal(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s, err := reg.Create(ctx, "acc-1", Origin{})
	require.NoError(t, err)

	require.NoError(t, reg.Revoke(ctx, s.ID))
	require.NoError(t, reg.Revoke(ctx, s.ID))
	require.NoError(t, reg.Revoke(ctx, "never-existed"))

	_, err = reg.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInactive)

	_, err = reg.Touch(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInactive)
}

func TestRevokeAccountKeepsCurrent(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	keep, _ := reg.Create(ctx, "acc-1", Origin{})
	other, _ := reg.Create(ctx, "acc-1", Origin{})
	foreign, _ := reg.Create(ctx, "acc-2", Origin{})

	n, err := reg.RevokeAccount(ctx, "acc-1", keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = reg.Get(ctx, keep.ID)
	assert.NoError(t, err)
	_, err = reg.Get(ctx, other.ID)
	assert.ErrorIs(t, err, ErrInactive)
	_, err = reg.Get(ctx, foreign.ID)
	assert.NoError(t, err)
}

func TestListSweepsAndFilters(t *testing.T) {
	reg, clk, store := newTestRegistry(t)
	ctx := context.Background()

	old, _ := reg.Create(ctx, "acc-1", Origin{})
	clk.Advance(2 * time.Hour)
	revoked, _ := reg.Create(ctx, "acc-1", Origin{})
	require.NoError(t, reg.Revoke(ctx, revoked.ID))
	clk.Advance(2*time.Hour + time.Minute)
	fresh, _ := reg.Create(ctx, "acc-2", Origin{})

	sessions, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.ID, sessions[0].ID)
	assert.Equal(t, 1, store.Len(), "idle %s and revoked %s were removed", old.ID, revoked.ID)

	mine, err := reg.ListByAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestSweepBoundary(t *testing.T) {
	reg, clk, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, "acc-1", Origin{})
	require.NoError(t, err)

	clk.Advance(4 * time.Hour)
	removed, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	clk.Advance(time.Second)
	removed, err = reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, store.Len())
}
