package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/security"
	"wellnesscms/api/internal/session"
)

type Outcome string

const (
	OutcomeValid          Outcome = "valid"
	OutcomeExpired        Outcome = "expired"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeSessionInvalid Outcome = "session-invalid"
)

type Verification struct {
	Outcome Outcome
	Claims  *security.AdminClaims
	Session models.Session
}

// TokenVerifier checks a bearer token in two tiers: the signed claims,
// then the liveness of the session they name. The second tier is what
// lets logout and revocation cut off a token that has not expired yet.
type TokenVerifier struct {
	codec    *security.TokenCodec
	sessions *session.Registry
	log      zerolog.Logger
}

func NewTokenVerifier(codec *security.TokenCodec, sessions *session.Registry, log zerolog.Logger) *TokenVerifier {
	return &TokenVerifier{codec: codec, sessions: sessions, log: log}
}

// Verify never returns an error; every failure is an Outcome. A valid
// verification refreshes the session's last activity.
func (v *TokenVerifier) Verify(ctx context.Context, token string) Verification {
	claims, err := v.codec.Parse(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return Verification{Outcome: OutcomeExpired}
		}
		return Verification{Outcome: OutcomeInvalid}
	}

	s, err := v.sessions.Touch(ctx, claims.SessionID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrInactive) {
			v.log.Error().Err(err).Str("session_id", claims.SessionID).Msg("session lookup failed")
		}
		return Verification{Outcome: OutcomeSessionInvalid, Claims: claims}
	}
	if s.AccountID != claims.AccountID {
		v.log.Warn().Str("session_id", s.ID).Msg("token subject does not own its session")
		return Verification{Outcome: OutcomeSessionInvalid, Claims: claims}
	}

	return Verification{Outcome: OutcomeValid, Claims: claims, Session: s}
}
