// Package store - SQLite cache of extracted feature vectors.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	// sqlite3 driver registration.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS features (
	path TEXT NOT NULL,
	model_key TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time INTEGER NOT NULL,
	dim INTEGER NOT NULL,
	vector BLOB NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(path, model_key)
);
CREATE INDEX IF NOT EXISTS idx_features_path ON features(path);`

// FileKey identifies one version of an image file on disk. A cached vector
// is only valid while the file keeps the same size and modification time.
type FileKey struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatKey builds a FileKey from the file currently at path.
func StatKey(path string) (FileKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileKey{}, errors.Wrapf(err, "stat %s", path)
	}
	return FileKey{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// FeatureCache persists feature vectors keyed by file and extractor model.
type FeatureCache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or reopens) the cache database at dbPath.
//
// Arguments:
//   - dbPath: SQLite file path. ":memory:" keeps the cache in memory.
//
// Returns:
//   - *FeatureCache: The opened cache.
//   - error: If the database cannot be opened or migrated.
func Open(dbPath string) (*FeatureCache, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open feature cache")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate feature cache")
	}
	return &FeatureCache{db: db}, nil
}

// Get returns the cached vector for key under modelKey. ok is false when no
// entry exists or the entry was written for a different file version.
func (c *FeatureCache) Get(ctx context.Context, key FileKey, modelKey string) (vec []float32, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		size    int64
		modTime int64
		dim     int
		blob    []byte
	)
	err = c.db.QueryRowContext(ctx,
		"SELECT size, mod_time, dim, vector FROM features WHERE path = ? AND model_key = ?",
		key.Path, modelKey,
	).Scan(&size, &modTime, &dim, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "cache lookup for %s", key.Path)
	}

	if size != key.Size || modTime != key.ModTime.UnixNano() {
		slog.Debug("stale feature cache entry", "path", key.Path)
		return nil, false, nil
	}

	vec, err = DecodeVector(blob)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cache entry for %s", key.Path)
	}
	if len(vec) != dim {
		return nil, false, errors.Errorf("cache entry for %s has %d values, expected %d", key.Path, len(vec), dim)
	}
	return vec, true, nil
}

// Put stores vec for key under modelKey, replacing any previous entry.
func (c *FeatureCache) Put(ctx context.Context, key FileKey, modelKey string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO features (path, model_key, size, mod_time, dim, vector)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.Path, modelKey, key.Size, key.ModTime.UnixNano(), len(vec), EncodeVector(vec),
	)
	if err != nil {
		return errors.Wrapf(err, "cache store for %s", key.Path)
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *FeatureCache) Len(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM features").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count cached features")
	}
	return n, nil
}

// Close closes the underlying database.
func (c *FeatureCache) Close() error {
	return c.db.Close()
}

// EncodeVector packs vec as little-endian float32 values.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
