// Package idempotency issues and retains the correlation key that makes a
// transfer submission safe to retry. One logical attempt holds exactly one
// key: transport-level retries reuse it verbatim, and only an explicit new
// attempt after a terminal outcome gets a fresh key.
package idempotency

import (
	"fmt"

	"github.com/google/uuid"
)

// KeyStore persists the current key per attempt scope. Implementations must
// treat ClearKey of a missing scope as a no-op.
type KeyStore interface {
	CurrentKey(scope string) (string, bool, error)
	SaveKey(scope, key string) error
	ClearKey(scope string) error
}

// Manager generates and retains idempotency keys.
type Manager struct {
	store KeyStore
}

func NewManager(store KeyStore) *Manager {
	return &Manager{store: store}
}

// EnsureKey returns the key for the attempt scope, generating and persisting
// a new UUID-v4 one only if none exists. The stored key survives process
// restarts so a resumed attempt never re-submits under a different identity.
func (m *Manager) EnsureKey(scope string) (string, error) {
	key, found, err := m.store.CurrentKey(scope)
	if err != nil {
		return "", fmt.Errorf("load idempotency key: %w", err)
	}
	if found && key != "" {
		return key, nil
	}

	key = uuid.NewString()
	if err := m.store.SaveKey(scope, key); err != nil {
		return "", fmt.Errorf("persist idempotency key: %w", err)
	}
	return key, nil
}

// Clear discards the key after a terminal outcome so the next attempt gets a
// fresh one.
func (m *Manager) Clear(scope string) error {
	if err := m.store.ClearKey(scope); err != nil {
		return fmt.Errorf("clear idempotency key: %w", err)
	}
	return nil
}
