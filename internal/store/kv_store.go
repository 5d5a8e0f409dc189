package store

import (
	"database/sql"
	"errors"

	"github.com/samber/oops"
)

// ValueKind separates a runner's ordinary values from its secrets.
type ValueKind string

const (
	KindGeneral ValueKind = "general"
	KindSecure  ValueKind = "secure"
)

// GetValue reads one stored value. ok is false when the key is absent.
func (s *Store) GetValue(runnerID string, kind ValueKind, key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM runner_kv WHERE runner_id = ? AND kind = ? AND key = ?`,
		runnerID, string(kind), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.Code("STORE_KV_GET").With("runner", runnerID).With("key", key).Wrap(err)
	}
	return value, true, nil
}

// SetValue writes or replaces one stored value.
func (s *Store) SetValue(runnerID string, kind ValueKind, key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO runner_kv (runner_id, kind, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(runner_id, kind, key) DO UPDATE SET value = excluded.value
	`, runnerID, string(kind), key, value)
	if err != nil {
		return oops.Code("STORE_KV_SET").With("runner", runnerID).With("key", key).Wrap(err)
	}
	return nil
}

// RemoveValue deletes one stored value. Removing a missing key is not an error.
func (s *Store) RemoveValue(runnerID string, kind ValueKind, key string) error {
	_, err := s.db.Exec(`DELETE FROM runner_kv WHERE runner_id = ? AND kind = ? AND key = ?`,
		runnerID, string(kind), key)
	if err != nil {
		return oops.Code("STORE_KV_REMOVE").With("runner", runnerID).With("key", key).Wrap(err)
	}
	return nil
}

// ClearValues drops every value of the given kind for a runner.
func (s *Store) ClearValues(runnerID string, kind ValueKind) error {
	_, err := s.db.Exec(`DELETE FROM runner_kv WHERE runner_id = ? AND kind = ?`, runnerID, string(kind))
	if err != nil {
		return oops.Code("STORE_KV_CLEAR").With("runner", runnerID).Wrap(err)
	}
	return nil
}
