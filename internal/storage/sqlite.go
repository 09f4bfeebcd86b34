package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// tsLayout is fixed-width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// Store wraps a SQLite database holding preferences, cached schemas and
// the capture history.
type Store struct {
	db *sql.DB
}

// Open opens clipd.db in dataDir, creating it if needed, and brings its
// schema up to date. ":memory:" opens a private in-memory database.
func Open(dataDir string) (*Store, error) {
	dsn := "file::memory:" + pragmas
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = "file:" + filepath.Join(dataDir, "clipd.db") + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps writers serialized and the in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dsn, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type migration struct {
	version int
	name    string
}

// pendingMigrations lists embedded migrations newer than current, oldest first.
func pendingMigrations(current int) ([]migration, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, name := range names {
		prefix, _, _ := strings.Cut(filepath.Base(name), "_")
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s has no numeric prefix", name)
		}
		if v > current {
			out = append(out, migration{version: v, name: name})
		}
	}
	// fs.Glob sorts lexically; prefixes are zero-padded.
	return out, nil
}

// migrate applies pending migrations, recording progress in PRAGMA user_version.
func (s *Store) migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(current)
	if err != nil {
		return err
	}
	for _, m := range pending {
		body, err := migrationsFS.ReadFile(m.name)
		if err != nil {
			return err
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: %w", m.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
	}
	return nil
}

// SchemaVersion reports the newest migration applied to the database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}


// --- Preferences ---

func (s *Store) SetPreference(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetPreference(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) GetAllPreferences() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM preferences")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// --- Schema cache ---

func (s *Store) PutCachedSchema(c CachedSchema) error {
	_, err := s.db.Exec(`
		INSERT INTO schema_cache (store_key, title, schema_json, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(store_key) DO UPDATE SET title = excluded.title, schema_json = excluded.schema_json, fetched_at = excluded.fetched_at`,
		c.StoreKey, c.Title, c.SchemaJSON, c.FetchedAt.UTC().Format(tsLayout),
	)
	return err
}

func (s *Store) GetCachedSchema(storeKey string) (CachedSchema, error) {
	return s.scanCachedSchema(s.db.QueryRow(`
		SELECT store_key, title, schema_json, fetched_at FROM schema_cache WHERE store_key = ?`, storeKey))
}

// LatestCachedSchema returns the most recently fetched entry of any store.
func (s *Store) LatestCachedSchema() (CachedSchema, error) {
	return s.scanCachedSchema(s.db.QueryRow(`
		SELECT store_key, title, schema_json, fetched_at FROM schema_cache ORDER BY fetched_at DESC LIMIT 1`))
}

func (s *Store) scanCachedSchema(row *sql.Row) (CachedSchema, error) {
	var c CachedSchema
	var fetchedAt string
	err := row.Scan(&c.StoreKey, &c.Title, &c.SchemaJSON, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedSchema{}, ErrNotFound
	}
	if err != nil {
		return CachedSchema{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return CachedSchema{}, fmt.Errorf("parsing fetched_at: %w", err)
	}
	c.FetchedAt = t
	return c, nil
}

// TouchCachedSchema bumps fetched_at without changing the stored schema.
func (s *Store) TouchCachedSchema(storeKey string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE schema_cache SET fetched_at = ? WHERE store_key = ?`,
		at.UTC().Format(tsLayout), storeKey)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCachedSchema removes a cache entry. Missing entries are not an error.
func (s *Store) DeleteCachedSchema(storeKey string) error {
	_, err := s.db.Exec(`DELETE FROM schema_cache WHERE store_key = ?`, storeKey)
	return err
}

// StaleSchemaKeys returns the keys of entries fetched before cutoff.
func (s *Store) StaleSchemaKeys(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT store_key FROM schema_cache WHERE fetched_at < ? ORDER BY fetched_at ASC`,
		cutoff.UTC().Format(tsLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Captures ---

func (s *Store) SaveCapture(c Capture) error {
	_, err := s.db.Exec(`
		INSERT INTO captures (id, url, row_id, mode, title, database_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.URL, c.RowID, c.Mode, c.Title, c.DatabaseID, c.CreatedAt.UTC().Format(tsLayout),
	)
	return err
}

func (s *Store) RecentCaptures(limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, url, row_id, mode, title, database_id, created_at
		FROM captures ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Capture
	for rows.Next() {
		var c Capture
		var createdAt string
		if err := rows.Scan(&c.ID, &c.URL, &c.RowID, &c.Mode, &c.Title, &c.DatabaseID, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}
