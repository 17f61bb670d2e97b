package imapx

import (
	"errors"
	"io"
	"sync"
)

// ErrAccountBusy is returned by Registry.Open when a live connection
// is already registered for the account.
var ErrAccountBusy = errors.New("account already has a live connection")

// Registry tracks at most one live connection per account. The open
// IMAP connection is the only stateful resource in a sync pass, and it
// must not be shared between two concurrent passes for the same
// account; the registry makes the second pass fail fast instead.
type Registry struct {
	mu   sync.Mutex
	live map[string]io.Closer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]io.Closer)}
}

// Open registers conn as the live connection for accountID. Returns
// ErrAccountBusy if one is already registered.
func (r *Registry) Open(accountID string, conn io.Closer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.live[accountID]; exists {
		return ErrAccountBusy
	}
	r.live[accountID] = conn
	return nil
}

// Lookup returns the live connection for accountID, if any.
func (r *Registry) Lookup(accountID string) (io.Closer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.live[accountID]
	return conn, ok
}

// Close closes and deregisters the live connection for accountID.
// Closing an account with no registered connection is a no-op.
func (r *Registry) Close(accountID string) error {
	r.mu.Lock()
	conn, ok := r.live[accountID]
	delete(r.live, accountID)
	r.mu.Unlock()

	if !ok || conn == nil {
		return nil
	}
	return conn.Close()
}

// CloseAll closes every registered connection, returning the first
// error encountered. Used on shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := make(map[string]io.Closer, len(r.live))
	for id, conn := range r.live {
		conns[id] = conn
	}
	r.live = make(map[string]io.Closer)
	r.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
