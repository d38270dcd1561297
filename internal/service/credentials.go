package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/repository"
	"wellnesscms/api/internal/security"
)

// AccountStore is the slice of the record store this package needs.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
}

// CredentialVerifier checks an email/password pair against a privileged
// account. Every rejection is the same ErrInvalidCredentials.
type CredentialVerifier struct {
	accounts AccountStore
	// hashed once so unknown emails still pay for a hash comparison
	decoy []byte
}

func NewCredentialVerifier(accounts AccountStore, hash func(string) ([]byte, error)) *CredentialVerifier {
	if hash == nil {
		hash = security.HashPassword
	}
	decoy, _ := hash("decoy-password-for-timing")
	return &CredentialVerifier{accounts: accounts, decoy: decoy}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (models.Account, error) {
	account, err := v.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			v.burn(password)
			return models.Account{}, ErrInvalidCredentials
		}
		return models.Account{}, err
	}

	if !account.Role.IsPrivileged() || !account.IsActive || len(account.PasswordHash) == 0 {
		v.burn(password)
		return models.Account{}, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		return models.Account{}, ErrInvalidCredentials
	}

	account.PasswordHash = nil
	return account, nil
}

func (v *CredentialVerifier) burn(password string) {
	if len(v.decoy) > 0 {
		_, _ = security.VerifyPassword(password, v.decoy)
	}
}
