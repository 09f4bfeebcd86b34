// Package schemacache keeps the last fetched schema of each database in
// SQLite so sessions can render before the network answers.
package schemacache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/storage"
)

// DefaultTTL is how long a fetched schema counts as fresh.
const DefaultTTL = 10 * time.Minute

// Store is the persistence the cache needs. Implemented by storage.Store.
type Store interface {
	PutCachedSchema(c storage.CachedSchema) error
	GetCachedSchema(storeKey string) (storage.CachedSchema, error)
	LatestCachedSchema() (storage.CachedSchema, error)
	TouchCachedSchema(storeKey string, at time.Time) error
	StaleSchemaKeys(cutoff time.Time) ([]string, error)
	DeleteCachedSchema(storeKey string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is a cached schema and the time it was last confirmed.
type Entry struct {
	Key       string
	Schema    property.Schema
	FetchedAt time.Time
}

// Cache is keyed by database id.
type Cache struct {
	store Store
	clock Clock
	ttl   time.Duration
}

// New creates a Cache. A ttl <= 0 uses DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	return NewWithClock(store, realClock{}, ttl)
}

// NewWithClock creates a Cache with a custom clock (for testing).
func NewWithClock(store Store, clock Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, clock: clock, ttl: ttl}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Latest returns the cached schema regardless of age.
func (c *Cache) Latest(key string) (Entry, bool, error) {
	return decode(c.store.GetCachedSchema(key))
}

// Newest returns the most recently fetched entry of any database, so a
// caller that does not know the database id yet can read the cache and
// check the key afterwards.
func (c *Cache) Newest() (Entry, bool, error) {
	return decode(c.store.LatestCachedSchema())
}

// IsFresh reports whether e is still within the TTL.
func (c *Cache) IsFresh(e Entry) bool {
	return c.clock.Now().Before(e.FetchedAt.Add(c.ttl))
}

func decode(row storage.CachedSchema, err error) (Entry, bool, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cached schema: %w", err)
	}
	var s property.Schema
	if err := json.Unmarshal([]byte(row.SchemaJSON), &s); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cached schema %s: %w", row.StoreKey, err)
	}
	return Entry{Key: row.StoreKey, Schema: s, FetchedAt: row.FetchedAt}, true, nil
}

// Fresh returns the cached schema only while it is within the TTL.
func (c *Cache) Fresh(key string) (Entry, bool, error) {
	e, ok, err := c.Latest(key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if !c.IsFresh(e) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put stores s and reports whether it differs from what was cached. An
// unchanged schema only has its timestamp bumped.
func (c *Cache) Put(key string, s property.Schema) (bool, error) {
	now := c.clock.Now()
	prev, ok, err := c.Latest(key)
	if err == nil && ok && prev.Schema.Equal(s) {
		if err := c.store.TouchCachedSchema(key, now); err != nil {
			return false, fmt.Errorf("touching cached schema: %w", err)
		}
		return false, nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("encoding schema: %w", err)
	}
	row := storage.CachedSchema{
		StoreKey:   key,
		Title:      s.Title,
		SchemaJSON: string(data),
		FetchedAt:  now,
	}
	if err := c.store.PutCachedSchema(row); err != nil {
		return false, fmt.Errorf("writing cached schema: %w", err)
	}
	return true, nil
}

// StaleKeys lists the keys whose entries have outlived the TTL.
func (c *Cache) StaleKeys() ([]string, error) {
	return c.store.StaleSchemaKeys(c.clock.Now().Add(-c.ttl))
}

// Delete forgets the entry for key.
func (c *Cache) Delete(key string) error {
	if err := c.store.DeleteCachedSchema(key); err != nil {
		return fmt.Errorf("deleting cached schema: %w", err)
	}
	return nil
}
