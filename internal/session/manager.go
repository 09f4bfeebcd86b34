package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/property"
)

// Manager owns the live sessions of the daemon.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager sharing deps across sessions.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps, sessions: make(map[string]*Session)}
}

// Start opens a session for tab. Configuration and schema errors are
// returned and no session is kept.
func (m *Manager) Start(ctx context.Context, tab extract.Tab) (*Session, error) {
	s := newSession(m.deps)
	if err := s.start(ctx, tab); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close tears down the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Schema returns the schema of the configured database, from the cache
// when it is fresh and from the store otherwise.
func (m *Manager) Schema(ctx context.Context) (property.Schema, error) {
	creds, err := m.deps.Credentials(ctx)
	if err != nil {
		return property.Schema{}, err
	}
	if m.deps.Cache != nil {
		e, ok, err := m.deps.Cache.Newest()
		if err != nil {
			slog.Warn("reading schema cache failed", "error", err)
		} else if ok && e.Key == creds.DatabaseID && m.deps.Cache.IsFresh(e) {
			return e.Schema, nil
		}
	}
	schema, err := m.deps.NewStore(creds).Schema(ctx)
	if err != nil {
		return property.Schema{}, fmt.Errorf("fetching schema: %w", err)
	}
	if m.deps.Cache != nil {
		if _, err := m.deps.Cache.Put(creds.DatabaseID, schema); err != nil {
			slog.Warn("writing schema cache failed", "error", err)
		}
	}
	return schema, nil
}
