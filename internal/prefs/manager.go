// Package prefs persists the user's form layout: which columns are hidden
// and the order of the rest.
package prefs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/clipd/internal/form"
)

const (
	KeyHidden = "hidden_fields"
	KeyOrder  = "field_order"
)

// PreferenceStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type PreferenceStore interface {
	SetPreference(key, value string) error
	GetAllPreferences() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to the stored preferences.
type Manager struct {
	store PreferenceStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *form.Preferences
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store PreferenceStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store PreferenceStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Get returns the stored preferences. An empty store yields empty preferences.
func (m *Manager) Get() (form.Preferences, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := clonePrefs(*m.cached)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return clonePrefs(*m.cached), nil
	}

	keys, err := m.store.GetAllPreferences()
	if err != nil {
		return form.Preferences{}, fmt.Errorf("loading preferences: %w", err)
	}

	p := form.Preferences{
		Hidden: decodeNames(KeyHidden, keys[KeyHidden]),
		Order:  decodeNames(KeyOrder, keys[KeyOrder]),
	}
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return clonePrefs(p), nil
}

// Set replaces both lists. Names are trimmed and de-duplicated; empty
// names are dropped.
func (m *Manager) Set(p form.Preferences) error {
	p = form.Preferences{Hidden: normalize(p.Hidden), Order: normalize(p.Order)}

	hidden, err := json.Marshal(p.Hidden)
	if err != nil {
		return fmt.Errorf("marshalling hidden fields: %w", err)
	}
	order, err := json.Marshal(p.Order)
	if err != nil {
		return fmt.Errorf("marshalling field order: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetPreference(KeyHidden, string(hidden)); err != nil {
		return fmt.Errorf("setting %s: %w", KeyHidden, err)
	}
	if err := m.store.SetPreference(KeyOrder, string(order)); err != nil {
		return fmt.Errorf("setting %s: %w", KeyOrder, err)
	}
	m.cached = nil
	return nil
}

// SetHidden hides or un-hides one column.
func (m *Manager) SetHidden(name string, hidden bool) error {
	p, err := m.Get()
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	out := p.Hidden[:0]
	for _, h := range p.Hidden {
		if h != name {
			out = append(out, h)
		}
	}
	if hidden {
		out = append(out, name)
	}
	p.Hidden = out
	return m.Set(p)
}

func decodeNames(key, raw string) []string {
	if raw == "" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		slog.Warn("ignoring malformed preference", "key", key, "error", err)
		return nil
	}
	return normalize(names)
}

func normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func clonePrefs(p form.Preferences) form.Preferences {
	return form.Preferences{
		Hidden: append([]string(nil), p.Hidden...),
		Order:  append([]string(nil), p.Order...),
	}
}
