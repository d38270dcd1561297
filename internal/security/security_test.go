package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/models"
)

var fastParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPasswordWithParams("Secret1!", fastParams)
	require.NoError(t, err)

	ok, err := VerifyPassword("Secret1!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("Secret2!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordAcceptsBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret1!"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := VerifyPassword("Secret1!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("nope", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordRejectsGarbage(t *testing.T) {
	_, err := VerifyPassword("x", nil)
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	_, err = VerifyPassword("x", []byte("plaintext"))
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		want     error
	}{
		{"Secret1!", nil},
		{"Ab1!", ErrPasswordTooShort},
		{"secret1!", ErrPasswordNoUpper},
		{"SECRET1!", ErrPasswordNoLower},
		{"Secret!!", ErrPasswordNoDigit},
		{"Secret12", ErrPasswordNoSpecial},
		{"Ünïcödé9#", nil},
	}
	for _, tc := range cases {
		t.Run(tc.password, func(t *testing.T) {
			err := ValidatePasswordPolicy(tc.password)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func newTestCodec(clk clock.Clock) *TokenCodec {
	return NewTokenCodec("test-secret", "wellness-cms", "wellness-admin-console", 4*time.Hour, clk)
}

func testAccount() models.Account {
	return models.Account{ID: "acc-1", Email: "a@x.com", Role: models.RoleAdmin, IsActive: true}
}

func TestTokenCodecRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clk)

	token, expiresAt, err := codec.Issue(testAccount(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(4*time.Hour), expiresAt)

	claims, err := codec.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.True(t, claims.Privileged)
}

func TestTokenCodecExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	codec := newTestCodec(clk)

	token, _, err := codec.Issue(testAccount(), "sess-1")
	require.NoError(t, err)

	clk.Advance(4*time.Hour + time.Second)
	_, err = codec.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodecRejectsForeignIssuerAndTampering(t *testing.T) {
	clk := clock.NewFake(time.Now())
	codec := newTestCodec(clk)
	other := NewTokenCodec("test-secret", "another-app", "wellness-admin-console", 4*time.Hour, clk)

	foreign, _, err := other.Issue(testAccount(), "sess-1")
	require.NoError(t, err)
	_, err = codec.Parse(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	otherAudience := NewTokenCodec("test-secret", "wellness-cms", "mobile-app", 4*time.Hour, clk)
	foreign, _, err = otherAudience.Issue(testAccount(), "sess-1")
	require.NoError(t, err)
	_, err = codec.Parse(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	wrongKey := NewTokenCodec("other-secret", "wellness-cms", "wellness-admin-console", 4*time.Hour, clk)
	forged, _, err := wrongKey.Issue(testAccount(), "sess-1")
	require.NoError(t, err)
	_, err = codec.Parse(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = codec.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenCodecRejectsOverlongLifetime(t *testing.T) {
	clk := clock.NewFake(time.Now())
	codec := newTestCodec(clk)
	now := clk.Now()

	claims := AdminClaims{
		AccountID:  "acc-1",
		Privileged: true,
		SessionID:  "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "wellness-cms",
			Audience:  jwt.ClaimStrings{"wellness-admin-console"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(48 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = codec.Parse(signed)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}
