// Package store provides session-keyed policy persistence: a concurrency-safe
// in-memory implementation for demos and tests, and a Postgres implementation
// for deployments that must survive restarts.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"rainguard/internal/types"
)

// Memory is a concurrency-safe in-memory policy store. Policies are stored as
// their JSON serialization so callers never share mutable state with the
// store, matching the behavior of the Postgres implementation.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Load returns the session's current policy, or a not_found_policy error.
func (s *Memory) Load(_ context.Context, sessionID string) (*types.Policy, error) {
	s.mu.RLock()
	raw, ok := s.data[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundPolicy,
			"no policy exists for this session",
			nil,
		)
	}

	var p types.Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStore, "stored policy is unreadable", err)
	}
	return &p, nil
}

// Save stores the session's policy, replacing any previous record.
func (s *Memory) Save(_ context.Context, sessionID string, p *types.Policy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStore, "policy is not serializable", err)
	}

	s.mu.Lock()
	s.data[sessionID] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes the session's policy. Deleting an absent record is not an
// error; reset is idempotent.
func (s *Memory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.data, sessionID)
	s.mu.Unlock()
	return nil
}

// Sessions returns the identifiers of all sessions currently holding a
// policy. The refresh scheduler uses it to enumerate monitoring candidates.
func (s *Memory) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	return out, nil
}
