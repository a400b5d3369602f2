// Package store is the persistence gateway: raw SQL over the pgx pool for
// sessions, agent results, debate exchanges, workflow events, tool
// invocations, and feedback.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// terminal session statuses guard every session update: a terminal status
// is never overwritten.
const notTerminal = `status NOT IN ('completed', 'failed', 'cancelled')`

// Store executes the SQL behind the persistence gateway.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store over the shared connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// marshalMap renders a map for a nullable JSONB column. A nil map becomes
// SQL NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	return data, nil
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}
	return m, nil
}
