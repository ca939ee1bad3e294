// SQLite embedding cache.
//
// Information Hiding:
// - Connection management hidden behind SqliteCache
// - Vector serialization format internal
// - Thread-safe via sql.DB's built-in connection pooling

package refstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteCache persists chunk embeddings keyed by content hash, so that
// re-indexing an unchanged corpus skips recomputation.
type SqliteCache struct {
	db *sql.DB
}

// OpenSqliteCache opens or creates an embedding cache at the given path.
// Parent directories are created if needed.
func OpenSqliteCache(path string) (*SqliteCache, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	cache := &SqliteCache{db: db}
	if err := cache.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	return cache, nil
}

// NewSqliteCacheInMemory creates an in-memory cache (useful for testing).
func NewSqliteCacheInMemory() (*SqliteCache, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory cache: %w", err)
	}

	cache := &SqliteCache{db: db}
	if err := cache.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	return cache, nil
}

func (c *SqliteCache) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id TEXT PRIMARY KEY,
			vector TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached vector for a chunk ID.
func (c *SqliteCache) Get(chunkID string) ([]float64, bool) {
	var raw string
	err := c.db.QueryRow(
		`SELECT vector FROM embeddings WHERE chunk_id = ?`, chunkID,
	).Scan(&raw)
	if err != nil {
		return nil, false
	}

	var vector []float64
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false
	}
	return vector, true
}

// Put stores a vector for a chunk ID, replacing any previous entry.
func (c *SqliteCache) Put(chunkID string, vector []float64) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO embeddings (chunk_id, vector) VALUES (?, ?)`,
		chunkID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SqliteCache) Close() error {
	return c.db.Close()
}
