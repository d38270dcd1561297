// Package session tracks live admin sessions. A bearer token is honored only
// while the session it names is live here, which is what makes logout and
// revocation take effect before the token itself expires.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/ids"
	"wellnesscms/api/internal/kv"
	"wellnesscms/api/internal/models"
)

const DefaultTTL = 4 * time.Hour

var (
	ErrNotFound = errors.New("session not found")
	ErrInactive = errors.New("session inactive")
)

type Origin struct {
	IPAddress string
	UserAgent string
}

type Registry struct {
	store kv.Store[models.Session]
	clock clock.Clock
	ttl   time.Duration
	newID func() string
	log   zerolog.Logger
}

type Option func(*Registry)

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(store kv.Store[models.Session], opts ...Option) *Registry {
	r := &Registry{
		store: store,
		clock: clock.Real(),
		ttl:   DefaultTTL,
		newID: ids.NewSessionID,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create stores a new live session for accountID and returns it.
func (r *Registry) Create(ctx context.Context, accountID string, origin Origin) (models.Session, error) {
	now := r.clock.Now()

	for attempt := 0; attempt < 3; attempt++ {
		s := models.Session{
			ID:           r.newID(),
			AccountID:    accountID,
			CreatedAt:    now,
			LastActivity: now,
			IPAddress:    origin.IPAddress,
			UserAgent:    origin.UserAgent,
			Active:       true,
		}
		err := r.store.Insert(ctx, s.ID, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, kv.ErrExists) {
			return models.Session{}, fmt.Errorf("store session: %w", err)
		}
		r.log.Warn().Str("session_id", s.ID).Msg("session id collision, regenerating")
	}
	return models.Session{}, fmt.Errorf("store session: %w", kv.ErrExists)
}

// Get returns the session if it is live.
func (r *Registry) Get(ctx context.Context, id string) (models.Session, error) {
	s, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return models.Session{}, ErrNotFound
	}
	if !s.Live(r.clock.Now(), r.ttl) {
		return models.Session{}, ErrInactive
	}
	return s, nil
}

// Touch records activity on a live session. Revoked or idle-expired
// sessions are left untouched and reported as ErrInactive.
func (r *Registry) Touch(ctx context.Context, id string) (models.Session, error) {
	now := r.clock.Now()
	s, err := r.store.Update(ctx, id, func(s models.Session) (models.Session, error) {
		if !s.Live(now, r.ttl) {
			return s, ErrInactive
		}
		s.LastActivity = now
		return s, nil
	})
	if errors.Is(err, kv.ErrNotFound) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	return s, nil
}

// Revoke marks the session inactive. Revoking an unknown or already revoked
// session is not an error.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	_, err := r.store.Update(ctx, id, func(s models.Session) (models.Session, error) {
		s.Active = false
		return s, nil
	})
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAccount revokes every session of accountID except keep, and returns
// how many were revoked.
func (r *Registry) RevokeAccount(ctx context.Context, accountID string, keep string) (int, error) {
	var targets []string
	err := r.store.Range(ctx, func(id string, s models.Session) bool {
		if s.AccountID == accountID && s.Active && id != keep {
			targets = append(targets, id)
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}
	for _, id := range targets {
		if err := r.Revoke(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(targets), nil
}

// List sweeps and then returns the live sessions, newest activity first.
func (r *Registry) List(ctx context.Context) ([]models.Session, error) {
	if _, err := r.Sweep(ctx); err != nil {
		return nil, err
	}

	now := r.clock.Now()
	var sessions []models.Session
	err := r.store.Range(ctx, func(_ string, s models.Session) bool {
		if s.Live(now, r.ttl) {
			sessions = append(sessions, s)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

// ListByAccount is List filtered to one owner.
func (r *Registry) ListByAccount(ctx context.Context, accountID string) ([]models.Session, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	owned := all[:0]
	for _, s := range all {
		if s.AccountID == accountID {
			owned = append(owned, s)
		}
	}
	return owned, nil
}

// Sweep deletes revoked sessions and those idle for longer than the TTL.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	removed, err := r.store.DeleteFunc(ctx, func(_ string, s models.Session) bool {
		return !s.Live(now, r.ttl)
	})
	if err != nil {
		return removed, fmt.Errorf("sweep sessions: %w", err)
	}
	if removed > 0 {
		r.log.Debug().Int("removed", removed).Msg("swept sessions")
	}
	return removed, nil
}
