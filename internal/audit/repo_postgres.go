package audit

import (
	"context"
	"database/sql"
	"fmt"

	"token-gateway/pkg/utils"
)

// PostgresRepo persists events through database/sql (pgx stdlib driver).
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	    id          UUID PRIMARY KEY,
//	    session_key TEXT NOT NULL,
//	    type        TEXT NOT NULL,
//	    user_id     TEXT NOT NULL DEFAULT '',
//	    ip_address  TEXT NOT NULL DEFAULT '',
//	    message     TEXT NOT NULL DEFAULT '',
//	    metadata    TEXT NOT NULL DEFAULT '',
//	    created_at  TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: db is required")
	}
	return &PostgresRepo{db: db}, nil
}

const insertEvent = `
INSERT INTO audit_events (id, session_key, type, user_id, ip_address, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertEvent,
			e.ID,
			e.SessionKey,
			string(e.Type),
			e.UserID,
			e.IPAddress,
			e.Message,
			e.Metadata,
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("audit: insert event: %w", err)
		}
		return nil
	})
}
