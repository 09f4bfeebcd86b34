package schemacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/property"
)

// Fetcher loads the current schema of a database.
type Fetcher interface {
	FetchSchema(ctx context.Context, databaseID string) (property.Schema, error)
}

// NotionFetcher fetches schemas through the Notion API.
type NotionFetcher struct {
	Client *notion.Client
}

func (f NotionFetcher) FetchSchema(ctx context.Context, databaseID string) (property.Schema, error) {
	db, err := f.Client.GetDatabase(ctx, databaseID)
	if err != nil {
		return property.Schema{}, err
	}
	return property.SchemaFromDatabase(db), nil
}

// Refresher re-fetches cached schemas once they go stale.
type Refresher struct {
	cache   *Cache
	fetcher Fetcher
	poll    time.Duration
	logger  *slog.Logger
}

// NewRefresher creates a Refresher. If pollInterval is <= 0, it defaults
// to one minute.
func NewRefresher(cache *Cache, fetcher Fetcher, pollInterval time.Duration) *Refresher {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Refresher{
		cache:   cache,
		fetcher: fetcher,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run refreshes stale entries until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("schema refresh iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce refreshes every stale entry and returns how many were fetched.
// A failed fetch is logged and leaves the old entry in place, except that a
// database Notion no longer finds is dropped from the cache.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	keys, err := r.cache.StaleKeys()
	if err != nil {
		return 0, fmt.Errorf("listing stale schemas: %w", err)
	}

	n := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		s, err := r.fetcher.FetchSchema(ctx, key)
		if errors.Is(err, notion.ErrNotFound) {
			r.logger.Info("dropping cached schema of unreachable database", "database_id", key)
			if err := r.cache.Delete(key); err != nil {
				r.logger.Warn("dropping cached schema failed", "database_id", key, "error", err)
			}
			continue
		}
		if err != nil {
			r.logger.Warn("schema refresh failed", "database_id", key, "error", err)
			continue
		}
		changed, err := r.cache.Put(key, s)
		if err != nil {
			r.logger.Warn("caching refreshed schema failed", "database_id", key, "error", err)
			continue
		}
		if changed {
			r.logger.Info("schema changed", "database_id", key, "columns", len(s.Columns))
		}
		n++
	}
	return n, nil
}
