package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wellnesscms/api/internal/config"
	"wellnesscms/api/internal/database"
	"wellnesscms/api/internal/ids"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/repository"
	"wellnesscms/api/internal/security"
)

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return database.NewPostgresPool(ctx, cfg.Postgres)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print an argon2id hash for a password read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func newCreateAdminCommand() *cobra.Command {
	var email, name, role string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a privileged admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseRole(role)
			if err != nil {
				return err
			}
			password, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}

			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			now := time.Now().UTC()
			account := models.Account{
				ID:           ids.New(),
				Email:        strings.ToLower(strings.TrimSpace(email)),
				Name:         name,
				PasswordHash: hash,
				Role:         parsed,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := repository.NewAccountRepository(pool).Create(cmd.Context(), account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", account.Role, account.Email, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleAdmin), "admin or super_admin")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSetActiveCommand() *cobra.Command {
	var email string
	var active bool

	cmd := &cobra.Command{
		Use:   "set-active",
		Short: "Activate or deactivate an admin account",
		Long:  `Deactivation takes effect on the account's next request; live sessions are rejected by the access guard.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.NewAccountRepository(pool).SetActive(cmd.Context(), email, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", email, active)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().BoolVar(&active, "active", true, "Whether the account may sign in")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func parseRole(role string) (models.Role, error) {
	r := models.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.IsPrivileged() {
		return "", fmt.Errorf("role must be %q or %q", models.RoleAdmin, models.RoleSuperAdmin)
	}
	return r, nil
}

// promptPassword reads a password without echo from a terminal, or one line
// from in otherwise, and applies the password policy.
func promptPassword(in io.Reader, prompt io.Writer) (string, error) {
	var password string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if err := security.ValidatePasswordPolicy(password); err != nil {
		return "", err
	}
	return password, nil
}
