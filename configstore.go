package homepulse

import (
	"context"
	"encoding/json"
	"sync"
)

// ConfigStore is the host's key/value persistence boundary. It stores the
// analytics configuration and the most recent full analysis. Load failures
// are expected during unauthenticated startup; callers fall back to
// defaults.
type ConfigStore interface {
	// LoadConfig returns the persisted configuration, or (nil, nil) when
	// none has been saved yet.
	LoadConfig(ctx context.Context) (*Config, error)

	// SaveConfig persists the configuration.
	SaveConfig(ctx context.Context, cfg Config) error

	// LoadAnalysis returns the persisted latest analysis, or (nil, nil)
	// when none has been saved yet.
	LoadAnalysis(ctx context.Context) (*AnalysisResult, error)

	// SaveAnalysis persists the latest analysis, replacing any prior one.
	SaveAnalysis(ctx context.Context, result *AnalysisResult) error

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented.
var (
	_ ConfigStore = (*MemoryConfigStore)(nil)
	_ ConfigStore = (*SQLiteConfigStore)(nil)
)

// MemoryConfigStore keeps configuration and analysis in process memory.
// It is used when the host owns persistence, and in tests.
type MemoryConfigStore struct {
	mu       sync.RWMutex
	config   []byte
	analysis []byte
}

// NewMemoryConfigStore creates an empty in-memory store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{}
}

// LoadConfig returns the stored configuration, if any.
func (m *MemoryConfigStore) LoadConfig(ctx context.Context) (*Config, error) {
	m.mu.RLock()
	data := m.config
	m.mu.RUnlock()
	if data == nil {
		return nil, nil
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, newStoreError(StoreErrorTypeLoad, "decode stored config", keyConfig, err)
	}
	return &cfg, nil
}

// SaveConfig stores the configuration.
func (m *MemoryConfigStore) SaveConfig(ctx context.Context, cfg Config) error {
	data, err := cfg.encodeYAML()
	if err != nil {
		return newStoreError(StoreErrorTypeEncode, "encode config", keyConfig, err)
	}
	m.mu.Lock()
	m.config = data
	m.mu.Unlock()
	return nil
}

// LoadAnalysis returns the stored analysis, if any.
func (m *MemoryConfigStore) LoadAnalysis(ctx context.Context) (*AnalysisResult, error) {
	m.mu.RLock()
	data := m.analysis
	m.mu.RUnlock()
	if data == nil {
		return nil, nil
	}
	var result AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, newStoreError(StoreErrorTypeLoad, "decode stored analysis", keyAnalysis, err)
	}
	return &result, nil
}

// SaveAnalysis stores the analysis, replacing any prior one.
func (m *MemoryConfigStore) SaveAnalysis(ctx context.Context, result *AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return newStoreError(StoreErrorTypeEncode, "encode analysis", keyAnalysis, err)
	}
	m.mu.Lock()
	m.analysis = data
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryConfigStore) Close() error { return nil }

// Persistence keys shared by ConfigStore implementations.
const (
	keyConfig   = "analytics_config"
	keyAnalysis = "latest_analysis"
)
