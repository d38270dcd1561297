package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "4h0m0s", cfg.Security.SessionTTL.String())
	assert.Equal(t, "30m0s", cfg.Security.ResetTokenTTL.String())
	assert.Equal(t, 5, cfg.Security.LoginMaxFailures)
	assert.Equal(t, "wellness-cms", cfg.Security.JWTIssuer)
	assert.NotEmpty(t, cfg.Security.JWTSecret)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WELLNESS_ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsNestedEnvKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WELLNESS_ENVIRONMENT", "production")
	t.Setenv("WELLNESS_SECURITY_JWTSECRET", "from-the-environment")
	t.Setenv("WELLNESS_SECURITY_SESSIONTTL", "2h")
	t.Setenv("WELLNESS_POSTGRES_DSN", "postgres://cms@db/cms")
	t.Setenv("WELLNESS_MAIL_PROVIDER", "smtp")
	t.Setenv("WELLNESS_MAIL_SMTPHOST", "smtp.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-the-environment", cfg.Security.JWTSecret)
	assert.Equal(t, "2h0m0s", cfg.Security.SessionTTL.String())
	assert.Equal(t, "postgres://cms@db/cms", cfg.Postgres.DSN)
	assert.Equal(t, "smtp", cfg.Mail.Provider)
	assert.Equal(t, "smtp.internal", cfg.Mail.SMTPHost)
}

func TestExposeResetTokens(t *testing.T) {
	cfg := &AppConfig{Environment: "development"}
	assert.False(t, cfg.ExposeResetTokens())

	cfg.Security.ExposeResetTokens = true
	assert.True(t, cfg.ExposeResetTokens())

	cfg.Environment = EnvironmentProduction
	assert.False(t, cfg.ExposeResetTokens())
}
