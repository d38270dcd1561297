package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wellnesscms/api/internal/audit"
	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/mail"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/ratelimit"
	"wellnesscms/api/internal/repository"
	"wellnesscms/api/internal/reset"
	"wellnesscms/api/internal/security"
	"wellnesscms/api/internal/session"
)

type Deps struct {
	Accounts     AccountStore
	Codec        *security.TokenCodec
	Sessions     *session.Registry
	Resets       *reset.Registry
	LoginLimiter ratelimit.Limiter
	ResetLimiter ratelimit.Limiter
	Mailer       mail.Sender
	Audit        audit.Recorder
	Clock        clock.Clock
	Log          zerolog.Logger
	HashPassword func(string) ([]byte, error)
}

type AuthService struct {
	accounts     AccountStore
	credentials  *CredentialVerifier
	codec        *security.TokenCodec
	tokens       *TokenVerifier
	sessions     *session.Registry
	resets       *reset.Registry
	loginLimiter ratelimit.Limiter
	resetLimiter ratelimit.Limiter
	mailer       mail.Sender
	audit        audit.Recorder
	clock        clock.Clock
	log          zerolog.Logger
	hash         func(string) ([]byte, error)
}

func NewAuthService(deps Deps) *AuthService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.HashPassword == nil {
		deps.HashPassword = security.HashPassword
	}
	if deps.Audit == nil {
		deps.Audit = audit.RecorderFunc(func(audit.Event) {})
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NewLogSender(deps.Log)
	}
	return &AuthService{
		accounts:     deps.Accounts,
		credentials:  NewCredentialVerifier(deps.Accounts, deps.HashPassword),
		codec:        deps.Codec,
		tokens:       NewTokenVerifier(deps.Codec, deps.Sessions, deps.Log),
		sessions:     deps.Sessions,
		resets:       deps.Resets,
		loginLimiter: deps.LoginLimiter,
		resetLimiter: deps.ResetLimiter,
		mailer:       deps.Mailer,
		audit:        deps.Audit,
		clock:        deps.Clock,
		log:          deps.Log,
		hash:         deps.HashPassword,
	}
}

// Origin describes where a request came from, for sessions, throttling and
// the audit trail.
type Origin struct {
	IPAddress string
	UserAgent string
	Method    string
	Endpoint  string
}

func (o Origin) event(action audit.Action, outcome audit.Outcome) audit.Event {
	return audit.Event{
		Action:    action,
		Outcome:   outcome,
		IPAddress: o.IPAddress,
		UserAgent: o.UserAgent,
		Method:    o.Method,
		Endpoint:  o.Endpoint,
	}
}

// Principal is a fully authorized caller.
type Principal struct {
	Account models.Account
	Claims  *security.AdminClaims
	Session models.Session
}

func (p Principal) IsSuperAdmin() bool {
	return p.Account.Role == models.RoleSuperAdmin
}

type LoginInput struct {
	Email    string
	Password string
	Origin   Origin
}

type LoginResult struct {
	Account   models.Account
	Session   models.Session
	Token     string
	ExpiresAt time.Time
}

// throttle reserves one attempt against key. The returned release uncounts
// the attempt and is safe to call when nothing was reserved.
func (s *AuthService) throttle(ctx context.Context, limiter ratelimit.Limiter, key string) (func(), error) {
	noop := func() {}
	if limiter == nil {
		return noop, nil
	}
	decision, err := limiter.Allow(ctx, key)
	if err != nil {
		// An unreachable limiter backend must not lock every admin out.
		s.log.Error().Err(err).Str("key", key).Msg("rate limiter check failed")
		return noop, nil
	}
	if !decision.Allowed {
		return noop, &ThrottledError{Decision: decision}
	}
	return func() {
		if err := limiter.Release(ctx, key, decision.Reservation); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("release rate limit reservation")
		}
	}, nil
}

func loginKey(ip string) string { return "login:" + ip }
func resetKey(ip string) string { return "reset:" + ip }

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := normalizeEmail(input.Email)
	key := loginKey(input.Origin.IPAddress)

	release, err := s.throttle(ctx, s.loginLimiter, key)
	if err != nil {
		event := input.Origin.event(audit.ActionLoginThrottled, audit.OutcomeFailure)
		event.ActorEmail = email
		s.audit.Record(event)
		return LoginResult{}, err
	}

	// The reservation stays counted only for a wrong password.
	account, err := s.credentials.Verify(ctx, email, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			event := input.Origin.event(audit.ActionLoginFailure, audit.OutcomeFailure)
			event.ActorEmail = email
			s.audit.Record(event)
		} else {
			release()
		}
		return LoginResult{}, err
	}
	release()

	sess, err := s.sessions.Create(ctx, account.ID, session.Origin{
		IPAddress: input.Origin.IPAddress,
		UserAgent: input.Origin.UserAgent,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}

	token, expiresAt, err := s.codec.Issue(account, sess.ID)
	if err != nil {
		_ = s.sessions.Revoke(ctx, sess.ID)
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	now := s.clock.Now().UTC()
	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("update last login failed")
	} else {
		account.LastLoginAt = &now
	}

	event := input.Origin.event(audit.ActionLoginSuccess, audit.OutcomeSuccess)
	event.ActorID = account.ID
	event.ActorEmail = account.Email
	event.SessionID = sess.ID
	s.audit.Record(event)

	return LoginResult{
		Account:   account,
		Session:   sess,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Authorize resolves a bearer token to a principal, re-reading the account
// so role or activation changes made after issuance take effect at once.
func (s *AuthService) Authorize(ctx context.Context, token string) (Principal, *AccessError) {
	if token == "" {
		return Principal{}, accessError(CodeNoToken, "Authentication required")
	}

	v := s.tokens.Verify(ctx, token)
	switch v.Outcome {
	case OutcomeValid:
	case OutcomeExpired:
		return Principal{}, accessError(CodeTokenExpired, "Token has expired")
	case OutcomeSessionInvalid:
		return Principal{Claims: v.Claims}, accessError(CodeTokenExpired, "Session expired or revoked")
	default:
		return Principal{}, accessError(CodeInvalidToken, "Invalid token")
	}

	account, err := s.accounts.GetByID(ctx, v.Claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return Principal{Claims: v.Claims}, accessError(CodeUserNotFound, "User not found")
		}
		s.log.Error().Err(err).Str("account_id", v.Claims.AccountID).Msg("account lookup failed")
		denied := accessError(CodeInternal, "Internal server error")
		denied.Err = err
		return Principal{Claims: v.Claims}, denied
	}
	account.PasswordHash = nil

	p := Principal{Account: account, Claims: v.Claims, Session: v.Session}
	if !account.Role.IsPrivileged() {
		return p, accessError(CodeInsufficientPrivileges, "Insufficient privileges")
	}
	if !account.IsActive {
		return p, accessError(CodeAccountDeactivated, "Account is deactivated")
	}
	return p, nil
}

// Logout revokes the session named by token, if any. It never fails.
func (s *AuthService) Logout(ctx context.Context, token string, origin Origin) {
	if token == "" {
		return
	}
	v := s.tokens.Verify(ctx, token)
	if v.Claims == nil {
		return
	}
	if err := s.sessions.Revoke(ctx, v.Claims.SessionID); err != nil {
		s.log.Error().Err(err).Str("session_id", v.Claims.SessionID).Msg("logout revoke failed")
	}

	event := origin.event(audit.ActionLogout, audit.OutcomeSuccess)
	event.ActorID = v.Claims.AccountID
	event.ActorEmail = v.Claims.Email
	event.SessionID = v.Claims.SessionID
	s.audit.Record(event)
}

type RefreshResult struct {
	Account   models.Account
	Token     string
	ExpiresAt time.Time
}

// Refresh issues a new token for the same session after re-validating the
// caller's privileges.
func (s *AuthService) Refresh(ctx context.Context, token string, origin Origin) (RefreshResult, error) {
	p, denied := s.Authorize(ctx, token)
	if denied != nil {
		event := origin.event(audit.ActionRefresh, audit.OutcomeFailure)
		event.Code = string(denied.Code)
		if p.Claims != nil {
			event.ActorID = p.Claims.AccountID
			event.SessionID = p.Claims.SessionID
		}
		s.audit.Record(event)
		return RefreshResult{}, denied
	}

	newToken, expiresAt, err := s.codec.Issue(p.Account, p.Session.ID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue token: %w", err)
	}

	event := origin.event(audit.ActionRefresh, audit.OutcomeSuccess)
	event.ActorID = p.Account.ID
	event.ActorEmail = p.Account.Email
	event.SessionID = p.Session.ID
	s.audit.Record(event)

	return RefreshResult{Account: p.Account, Token: newToken, ExpiresAt: expiresAt}, nil
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	Origin          Origin
}

func (s *AuthService) ChangePassword(ctx context.Context, p Principal, input ChangePasswordInput) error {
	fail := func(err error) error {
		event := input.Origin.event(audit.ActionPasswordChange, audit.OutcomeFailure)
		event.ActorID = p.Account.ID
		event.ActorEmail = p.Account.Email
		event.SessionID = p.Session.ID
		event.Metadata = map[string]any{"reason": err.Error()}
		s.audit.Record(event)
		return err
	}

	account, err := s.accounts.GetByID(ctx, p.Account.ID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	ok, err := security.VerifyPassword(input.CurrentPassword, account.PasswordHash)
	if err != nil || !ok {
		return fail(validation("INVALID_CURRENT_PASSWORD", ErrInvalidCurrentPassword))
	}
	if err := security.ValidatePasswordPolicy(input.NewPassword); err != nil {
		return fail(validation("WEAK_PASSWORD", err))
	}
	if input.NewPassword == input.CurrentPassword {
		return fail(validation("PASSWORD_UNCHANGED", ErrPasswordUnchanged))
	}

	hash, err := s.hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	revoked, err := s.sessions.RevokeAccount(ctx, account.ID, p.Session.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("revoke other sessions failed")
	}

	event := input.Origin.event(audit.ActionPasswordChange, audit.OutcomeSuccess)
	event.ActorID = account.ID
	event.ActorEmail = account.Email
	event.SessionID = p.Session.ID
	event.Metadata = map[string]any{"revokedSessions": revoked}
	s.audit.Record(event)
	return nil
}

type ResetRequestResult struct {
	// Token is empty when no eligible account matched the email.
	Token     string
	ExpiresAt time.Time
}

// RequestReset issues and mails a reset token when email belongs to an
// active privileged account. Apart from throttling, callers cannot tell
// from the result whether the account exists.
func (s *AuthService) RequestReset(ctx context.Context, email string, origin Origin) (ResetRequestResult, error) {
	email = normalizeEmail(email)
	key := resetKey(origin.IPAddress)

	// Every request keeps its reservation, found or not.
	if _, err := s.throttle(ctx, s.resetLimiter, key); err != nil {
		event := origin.event(audit.ActionPasswordResetThrottle, audit.OutcomeFailure)
		event.ActorEmail = email
		s.audit.Record(event)
		return ResetRequestResult{}, err
	}

	event := origin.event(audit.ActionPasswordResetRequest, audit.OutcomeFailure)
	event.ActorEmail = email

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			s.log.Error().Err(err).Msg("reset request account lookup failed")
		}
		s.audit.Record(event)
		return ResetRequestResult{}, nil
	}
	if !account.Role.IsPrivileged() || !account.IsActive {
		event.ActorID = account.ID
		s.audit.Record(event)
		return ResetRequestResult{}, nil
	}

	token, expiresAt, err := s.resets.Issue(ctx, account.ID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("issue reset token failed")
		event.ActorID = account.ID
		s.audit.Record(event)
		return ResetRequestResult{}, nil
	}

	// Mailer is expected to be a mail.Dispatcher, so known and unknown
	// emails answer in the same time.
	if err := s.mailer.SendPasswordReset(ctx, mail.ResetMessage{
		To:        account.Email,
		Name:      account.Name,
		Token:     token,
		ExpiresAt: expiresAt,
	}); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("queue reset email failed")
	}

	event.Outcome = audit.OutcomeSuccess
	event.ActorID = account.ID
	s.audit.Record(event)

	return ResetRequestResult{Token: token, ExpiresAt: expiresAt}, nil
}

type ResetPasswordInput struct {
	Token       string
	NewPassword string
	Origin      Origin
}

// ResetPassword redeems a reset token. The token is consumed only after
// the new hash is stored, so a failed write leaves it usable.
func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	key := resetKey(input.Origin.IPAddress)
	release, err := s.throttle(ctx, s.resetLimiter, key)
	if err != nil {
		s.audit.Record(input.Origin.event(audit.ActionPasswordResetThrottle, audit.OutcomeFailure))
		return err
	}

	// Rejected tokens and passwords keep the reservation; anything else
	// gives it back.
	counted := false
	defer func() {
		if !counted {
			release()
		}
	}()
	fail := func(accountID string, err error) error {
		counted = true
		event := input.Origin.event(audit.ActionPasswordReset, audit.OutcomeFailure)
		event.ActorID = accountID
		event.Metadata = map[string]any{"reason": err.Error()}
		s.audit.Record(event)
		return err
	}

	accountID, err := s.resets.Verify(ctx, input.Token)
	if err != nil {
		switch {
		case errors.Is(err, reset.ErrNotFound):
			return fail("", validation("INVALID_RESET_TOKEN", err))
		case errors.Is(err, reset.ErrAlreadyUsed):
			return fail("", validation("RESET_TOKEN_USED", err))
		case errors.Is(err, reset.ErrExpired):
			return fail("", validation("RESET_TOKEN_EXPIRED", err))
		}
		return err
	}

	if err := security.ValidatePasswordPolicy(input.NewPassword); err != nil {
		return fail(accountID, validation("WEAK_PASSWORD", err))
	}

	hash, err := s.hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	if err := s.resets.Consume(ctx, input.Token); err != nil {
		if errors.Is(err, reset.ErrAlreadyUsed) || errors.Is(err, reset.ErrNotFound) {
			return fail(accountID, validation("RESET_TOKEN_USED", reset.ErrAlreadyUsed))
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	revoked, err := s.sessions.RevokeAccount(ctx, accountID, "")
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", accountID).Msg("revoke sessions after reset failed")
	}

	event := input.Origin.event(audit.ActionPasswordReset, audit.OutcomeSuccess)
	event.ActorID = accountID
	event.Metadata = map[string]any{"revokedSessions": revoked}
	s.audit.Record(event)
	return nil
}

// ListSessions returns every live session to a super admin and only the
// caller's own sessions to an admin.
func (s *AuthService) ListSessions(ctx context.Context, p Principal) ([]models.Session, error) {
	if p.IsSuperAdmin() {
		return s.sessions.List(ctx)
	}
	return s.sessions.ListByAccount(ctx, p.Account.ID)
}

// RevokeSession revokes sessionID. Admins may only revoke their own
// sessions; anything else is reported as not found.
func (s *AuthService) RevokeSession(ctx context.Context, p Principal, sessionID string, origin Origin) error {
	target, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrInactive) {
			return ErrSessionNotFound
		}
		return err
	}
	if !p.IsSuperAdmin() && target.AccountID != p.Account.ID {
		return ErrSessionNotFound
	}

	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}

	event := origin.event(audit.ActionSessionRevoke, audit.OutcomeSuccess)
	event.ActorID = p.Account.ID
	event.ActorEmail = p.Account.Email
	event.SessionID = p.Session.ID
	event.Metadata = map[string]any{"revokedSessionId": sessionID, "ownerId": target.AccountID}
	s.audit.Record(event)
	return nil
}

// SessionTTL is how long a session survives without activity.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessions.TTL()
}
