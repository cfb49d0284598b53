package homepulse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteConfigStoreConfig configures the SQLite-backed configuration store.
type SQLiteConfigStoreConfig struct {
	// Path to the SQLite database file.
	Path string

	// BusyTimeout is the lock acquisition timeout in milliseconds.
	// Default: 5000.
	BusyTimeout int

	// JournalMode sets the SQLite journal mode. Default: WAL.
	JournalMode string
}

// DefaultSQLiteConfigStoreConfig returns default configuration.
func DefaultSQLiteConfigStoreConfig() SQLiteConfigStoreConfig {
	return SQLiteConfigStoreConfig{
		Path:        "homepulse.db",
		BusyTimeout: 5000,
		JournalMode: "WAL",
	}
}

// SQLiteConfigStore persists configuration and the latest analysis in a
// local SQLite database, so the data survives host restarts and can be
// inspected with standard SQLite tools.
type SQLiteConfigStore struct {
	db     *sql.DB
	config SQLiteConfigStoreConfig

	mu     sync.RWMutex
	closed bool
}

// NewSQLiteConfigStore opens (and if needed creates) the backing database.
func NewSQLiteConfigStore(config SQLiteConfigStoreConfig) (*SQLiteConfigStore, error) {
	def := DefaultSQLiteConfigStoreConfig()
	if config.Path == "" {
		config.Path = def.Path
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = def.BusyTimeout
	}
	if config.JournalMode == "" {
		config.JournalMode = def.JournalMode
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)",
		config.Path, config.BusyTimeout, config.JournalMode)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStoreError(StoreErrorTypeUnknown, "open sqlite store", config.Path, err)
	}

	s := &SQLiteConfigStore{db: db, config: config}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteConfigStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	if err != nil {
		return newStoreError(StoreErrorTypeUnknown, "create schema", s.config.Path, err)
	}
	return nil
}

func (s *SQLiteConfigStore) get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newStoreError(StoreErrorTypeLoad, "read key", key, err)
	}
	return value, nil
}

func (s *SQLiteConfigStore) put(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return newStoreError(StoreErrorTypeSave, "write key", key, err)
	}
	return nil
}

// LoadConfig returns the persisted configuration, or (nil, nil) when none
// has been saved yet.
func (s *SQLiteConfigStore) LoadConfig(ctx context.Context) (*Config, error) {
	data, err := s.get(ctx, keyConfig)
	if err != nil || data == nil {
		return nil, err
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, newStoreError(StoreErrorTypeLoad, "decode stored config", keyConfig, err)
	}
	return &cfg, nil
}

// SaveConfig persists the configuration.
func (s *SQLiteConfigStore) SaveConfig(ctx context.Context, cfg Config) error {
	data, err := cfg.encodeYAML()
	if err != nil {
		return newStoreError(StoreErrorTypeEncode, "encode config", keyConfig, err)
	}
	return s.put(ctx, keyConfig, data)
}

// LoadAnalysis returns the persisted latest analysis, or (nil, nil) when
// none has been saved yet.
func (s *SQLiteConfigStore) LoadAnalysis(ctx context.Context) (*AnalysisResult, error) {
	data, err := s.get(ctx, keyAnalysis)
	if err != nil || data == nil {
		return nil, err
	}
	var result AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, newStoreError(StoreErrorTypeLoad, "decode stored analysis", keyAnalysis, err)
	}
	return &result, nil
}

// SaveAnalysis persists the latest analysis, replacing any prior one.
func (s *SQLiteConfigStore) SaveAnalysis(ctx context.Context, result *AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return newStoreError(StoreErrorTypeEncode, "encode analysis", keyAnalysis, err)
	}
	return s.put(ctx, keyAnalysis, data)
}

// Close closes the backing database.
func (s *SQLiteConfigStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
