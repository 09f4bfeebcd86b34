package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Capture is one successful save of a page into the database.
type Capture struct {
	ID         string
	URL        string
	RowID      string
	Mode       string // "created" or "updated"
	Title      string
	DatabaseID string
	CreatedAt  time.Time
}

// CachedSchema is a database schema as last fetched from the store.
type CachedSchema struct {
	StoreKey   string
	Title      string
	SchemaJSON string
	FetchedAt  time.Time
}
