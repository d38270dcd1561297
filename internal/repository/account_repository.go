package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"wellnesscms/api/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

const accountColumns = `id, email, name, password_hash, role, is_active, last_login_at, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.PasswordHash,
		&account.Role,
		&account.IsActive,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO admin_accounts (
			id, email, name, password_hash, role, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.PasswordHash,
		account.Role,
		account.IsActive,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM admin_accounts WHERE lower(email) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM admin_accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE admin_accounts SET last_login_at = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE admin_accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, hash)
}

func (r *AccountRepository) SetActive(ctx context.Context, email string, active bool) error {
	const query = `UPDATE admin_accounts SET is_active = $2, updated_at = NOW() WHERE lower(email) = lower($1)`
	return r.execOne(ctx, query, email, active)
}

func (r *AccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
