// Package cache is the local fallback copy of remote collections. Each key
// holds one ordered list of records that is always replaced as a whole.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Source is the key-indexed record store. Get reports ok=false for a key that
// was never written.
type Source interface {
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)
	Set(ctx context.Context, key string, payload []byte) error
}

// Key scopes a collection name to one user.
func Key(collection, userID string) string {
	return collection + ":" + userID
}

// Collection names used as cache keys.
const (
	Plants     = "plants"
	Tasks      = "tasks"
	TodayTasks = "today_tasks"
	TaskLogs   = "task_logs"
	Journal    = "journal"
)

// SQLite keeps cached collections in a single-table SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir %q: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// One writer keeps SQLite from reporting SQLITE_BUSY between goroutines.
	db.SetMaxOpenConns(1)

	const schema = `
	CREATE TABLE IF NOT EXISTS collections (
		key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (c *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache %q: %w", key, err)
	}
	return []byte(payload), true, nil
}

func (c *SQLite) Set(ctx context.Context, key string, payload []byte) error {
	_, err := c.db.ExecContext(ctx, `
	INSERT INTO collections (key, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write cache %q: %w", key, err)
	}
	return nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

// Load decodes the records cached under key.
func Load[T any](ctx context.Context, src Source, key string) ([]T, bool, error) {
	payload, ok, err := src.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var records []T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, false, fmt.Errorf("decode cache %q: %w", key, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, true, nil
}

// Save replaces the records cached under key.
func Save[T any](ctx context.Context, src Source, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode cache %q: %w", key, err)
	}
	return src.Set(ctx, key, payload)
}
