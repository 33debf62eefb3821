package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// FeatureCacheEntry is a cached image analysis.
type FeatureCacheEntry struct {
	Features  market.ImageFeatures
	Model     string
	CreatedAt time.Time
}

// FeatureStore persists image analyses keyed by a hash of their inputs.
type FeatureStore interface {
	// GetFeatureCache returns nil, nil when no entry exists.
	GetFeatureCache(key string) (*FeatureCacheEntry, error)
	SetFeatureCache(key string, entry *FeatureCacheEntry) error
	// PurgeFeatureCache deletes entries created before cutoff.
	PurgeFeatureCache(cutoff time.Time) (int64, error)
	Close() error
}

// SQLiteStore implements FeatureStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ FeatureStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	if dbPath == MemoryPath {
		dsn = MemoryPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == MemoryPath {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS feature_cache (
		cache_key TEXT PRIMARY KEY,
		features TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create feature_cache table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_feature_cache_created_at ON feature_cache(created_at)"); err != nil {
		return fmt.Errorf("failed to create feature_cache index: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetFeatureCache retrieves a cached image analysis by key.
func (s *SQLiteStore) GetFeatureCache(key string) (*FeatureCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw, model string
	var createdAt int64
	err := s.db.QueryRow(
		"SELECT features, model, created_at FROM feature_cache WHERE cache_key = ?",
		key,
	).Scan(&raw, &model, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query feature cache: %w", err)
	}

	var features market.ImageFeatures
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached features: %w", err)
	}

	return &FeatureCacheEntry{
		Features:  features,
		Model:     model,
		CreatedAt: time.UnixMilli(createdAt),
	}, nil
}

// SetFeatureCache stores or replaces an image analysis. A zero CreatedAt
// is set to now.
func (s *SQLiteStore) SetFeatureCache(key string, entry *FeatureCacheEntry) error {
	raw, err := json.Marshal(entry.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO feature_cache (cache_key, features, model, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			features = excluded.features,
			model = excluded.model,
			created_at = excluded.created_at
	`, key, string(raw), entry.Model, entry.CreatedAt.UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to cache features: %w", err)
	}
	return nil
}

// PurgeFeatureCache deletes entries created before cutoff and returns how
// many were removed.
func (s *SQLiteStore) PurgeFeatureCache(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM feature_cache WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge feature cache: %w", err)
	}
	return res.RowsAffected()
}
