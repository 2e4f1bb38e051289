package policy

import (
	"context"

	"rainguard/internal/types"
)

// Store persists at most one current policy per controlling session. The
// engine only requires plain serializable policies, so implementations range
// from the in-memory map used by tests and demos to the Postgres store.
//
// Load returns a not_found_policy AppError when the session holds no policy.
type Store interface {
	Load(ctx context.Context, sessionID string) (*types.Policy, error)
	Save(ctx context.Context, sessionID string, p *types.Policy) error
	Delete(ctx context.Context, sessionID string) error
}
