package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"wellnesscms/api/internal/audit"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Write inserts the event; replays of an already stored id are ignored so
// redelivered stream entries stay idempotent.
func (r *AuditRepository) Write(ctx context.Context, e audit.Event) error {
	const query = `
		INSERT INTO audit_events (
			id, action, outcome, actor_id, actor_email, session_id, ip_address,
			user_agent, method, endpoint, code, metadata, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO NOTHING
	`

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		e.ID,
		string(e.Action),
		string(e.Outcome),
		e.ActorID,
		e.ActorEmail,
		e.SessionID,
		e.IPAddress,
		e.UserAgent,
		e.Method,
		e.Endpoint,
		e.Code,
		metadata,
		e.OccurredAt,
	)
	return err
}
