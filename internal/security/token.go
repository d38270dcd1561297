package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/models"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type AdminClaims struct {
	AccountID  string      `json:"uid"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	Privileged bool        `json:"privileged"`
	SessionID  string      `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec signs and parses admin bearer tokens. Issuer and audience are
// fixed per deployment so tokens minted for another application sharing the
// secret are refused.
type TokenCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

func NewTokenCodec(secret, issuer, audience string, ttl time.Duration, clk clock.Clock) *TokenCodec {
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenCodec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		clock:    clk,
	}
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) Issue(account models.Account, sessionID string) (string, time.Time, error) {
	now := c.clock.Now()
	expiresAt := now.Add(c.ttl)

	claims := AdminClaims{
		AccountID:  account.ID,
		Email:      account.Email,
		Role:       account.Role,
		Privileged: true,
		SessionID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates signature, issuer, audience and expiry. Failures are
// reported as ErrTokenExpired or ErrTokenInvalid.
func (c *TokenCodec) Parse(tokenStr string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || !claims.Privileged || claims.SessionID == "" || claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt == nil || claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time) > c.ttl {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
