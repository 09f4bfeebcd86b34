package prefs

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kalambet/clipd/internal/form"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error

	getAllCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) SetPreference(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) GetAllPreferences() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	if m.err != nil {
		return nil, m.err
	}
	cp := make(map[string]string, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGet_Empty(t *testing.T) {
	m := NewManager(newMockStore())
	p, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(p.Hidden) != 0 || len(p.Order) != 0 {
		t.Errorf("Get on empty store = %+v", p)
	}
}

func TestSetThenGet(t *testing.T) {
	m := NewManager(newMockStore())
	err := m.Set(form.Preferences{
		Hidden: []string{" Notes ", "Notes", ""},
		Order:  []string{"Salary", "Name"},
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := m.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := form.Preferences{Hidden: []string{"Notes"}, Order: []string{"Salary", "Name"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prefs mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_CachedWithinTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManagerWithClock(store, clock, time.Minute)

	m.Get()
	m.Get()
	if store.getAllCalls != 1 {
		t.Errorf("store calls = %d, want 1 within TTL", store.getAllCalls)
	}

	clock.Advance(2 * time.Minute)
	m.Get()
	if store.getAllCalls != 2 {
		t.Errorf("store calls = %d, want 2 after TTL", store.getAllCalls)
	}
}

func TestSet_InvalidatesCache(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	m := NewManagerWithClock(store, clock, time.Hour)

	m.Get()
	if err := m.Set(form.Preferences{Hidden: []string{"Salary"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p, _ := m.Get()
	if diff := cmp.Diff([]string{"Salary"}, p.Hidden); diff != "" {
		t.Errorf("hidden after Set (-want +got):\n%s", diff)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	m := NewManager(newMockStore())
	m.Set(form.Preferences{Hidden: []string{"A"}})

	p, _ := m.Get()
	p.Hidden[0] = "mutated"

	again, _ := m.Get()
	if again.Hidden[0] != "A" {
		t.Errorf("cache mutated through returned value: %v", again.Hidden)
	}
}

func TestGet_MalformedIgnored(t *testing.T) {
	store := newMockStore()
	store.data[KeyHidden] = "not json"
	store.data[KeyOrder] = `["Name"]`

	p, err := NewManager(store).Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := form.Preferences{Order: []string{"Name"}}
	if diff := cmp.Diff(want, p, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("prefs mismatch (-want +got):\n%s", diff)
	}
}

func TestSetHidden(t *testing.T) {
	m := NewManager(newMockStore())
	m.Set(form.Preferences{Hidden: []string{"A", "B"}})

	if err := m.SetHidden("A", false); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	if err := m.SetHidden("C", true); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}
	p, _ := m.Get()
	if diff := cmp.Diff([]string{"B", "C"}, p.Hidden); diff != "" {
		t.Errorf("hidden mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("disk full")
	m := NewManager(store)

	if _, err := m.Get(); err == nil {
		t.Error("expected Get error")
	}
	if err := m.Set(form.Preferences{}); err == nil {
		t.Error("expected Set error")
	}
}
