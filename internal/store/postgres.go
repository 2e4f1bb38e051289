package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rainguard/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx, so the
// same store code works inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists session policies as JSONB rows keyed by session ID.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a Postgres-backed policy store.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_policies (
	session_id TEXT PRIMARY KEY,
	policy     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the backing table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "creating session_policies table", err)
	}
	return nil
}

// Load returns the session's current policy, or a not_found_policy error.
func (s *Postgres) Load(ctx context.Context, sessionID string) (*types.Policy, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT policy FROM session_policies WHERE session_id = $1`,
		sessionID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundPolicy,
			"no policy exists for this session",
			nil,
		)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "loading policy", err)
	}

	var p types.Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "stored policy is unreadable", err)
	}
	return &p, nil
}

// Save upserts the session's policy.
func (s *Postgres) Save(ctx context.Context, sessionID string, p *types.Policy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "policy is not serializable", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO session_policies (session_id, policy, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id)
		DO UPDATE SET policy = EXCLUDED.policy, updated_at = now()`,
		sessionID, raw,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "saving policy", err)
	}
	return nil
}

// Delete removes the session's policy. Deleting an absent record is not an
// error.
func (s *Postgres) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM session_policies WHERE session_id = $1`, sessionID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "deleting policy", err)
	}
	return nil
}

// Sessions returns the identifiers of all sessions currently holding a
// policy.
func (s *Postgres) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT session_id FROM session_policies ORDER BY session_id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "listing sessions", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStore, "scanning session id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "iterating sessions", err)
	}
	return out, nil
}
