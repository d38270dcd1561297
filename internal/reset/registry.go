// Package reset issues and redeems one-time password reset tokens.
package reset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/ids"
	"wellnesscms/api/internal/kv"
	"wellnesscms/api/internal/models"
)

const (
	DefaultTTL = 30 * time.Minute
	// 32 bytes = 256 bits of entropy.
	tokenBytes = 32
)

var (
	ErrNotFound    = errors.New("reset token not found")
	ErrAlreadyUsed = errors.New("reset token already used")
	ErrExpired     = errors.New("reset token expired")
)

type Registry struct {
	store kv.Store[models.ResetToken]
	clock clock.Clock
	ttl   time.Duration
	log   zerolog.Logger
}

func NewRegistry(store kv.Store[models.ResetToken], clk clock.Clock, ttl time.Duration, log zerolog.Logger) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{store: store, clock: clk, ttl: ttl, log: log}
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a token for accountID. Earlier unconsumed tokens of the
// same account stop working.
func (r *Registry) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	if _, err := r.Sweep(ctx); err != nil {
		r.log.Warn().Err(err).Msg("reset token sweep failed")
	}

	if _, err := r.store.DeleteFunc(ctx, func(_ string, t models.ResetToken) bool {
		return t.AccountID == accountID
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("drop previous tokens: %w", err)
	}

	token, err := ids.NewToken(tokenBytes)
	if err != nil {
		return "", time.Time{}, err
	}

	now := r.clock.Now()
	record := models.ResetToken{
		AccountID: accountID,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	if err := r.store.Insert(ctx, digest(token), record); err != nil {
		return "", time.Time{}, fmt.Errorf("store reset token: %w", err)
	}
	return token, record.ExpiresAt, nil
}

// Verify returns the owning account id of an unconsumed, unexpired token.
func (r *Registry) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}
	record, ok, err := r.store.Get(ctx, digest(token))
	if err != nil {
		return "", fmt.Errorf("load reset token: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	if err := r.check(record); err != nil {
		return "", err
	}
	return record.AccountID, nil
}

func (r *Registry) check(record models.ResetToken) error {
	if record.Consumed {
		return ErrAlreadyUsed
	}
	if record.Expired(r.clock.Now()) {
		return ErrExpired
	}
	return nil
}

// Consume burns the token. Call it only once the password write it guards
// has succeeded. Exactly one concurrent caller wins.
func (r *Registry) Consume(ctx context.Context, token string) error {
	_, err := r.store.Update(ctx, digest(token), func(record models.ResetToken) (models.ResetToken, error) {
		if record.Consumed {
			return record, ErrAlreadyUsed
		}
		record.Consumed = true
		return record, nil
	})
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Sweep removes expired and consumed tokens.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	removed, err := r.store.DeleteFunc(ctx, func(_ string, t models.ResetToken) bool {
		return t.Consumed || t.Expired(now)
	})
	if err != nil {
		return removed, fmt.Errorf("sweep reset tokens: %w", err)
	}
	if removed > 0 {
		r.log.Debug().Int("removed", removed).Msg("swept reset tokens")
	}
	return removed, nil
}
