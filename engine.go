package homepulse

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AnalysisSummary condenses one batch run.
type AnalysisSummary struct {
	DevicesAnalyzed  int     `json:"devices_analyzed"`
	EnergyEntities   int     `json:"energy_entities"`
	Recommendations  int     `json:"recommendations"`
	PotentialSavings float64 `json:"potential_savings"`
}

// AnalysisResult is the full output of one batch analysis. It replaces the
// prior result wholesale; it is never merged incrementally.
type AnalysisResult struct {
	GeneratedAt          time.Time        `json:"generated_at"`
	UsagePatterns        []UsagePattern   `json:"usage_patterns"`
	Energy               []EnergySummary  `json:"energy"`
	AutomationEfficiency float64          `json:"automation_efficiency"`
	Recommendations      []Recommendation `json:"recommendations"`
	Summary              AnalysisSummary  `json:"summary"`
}

// EngineStats counts engine activity since startup.
type EngineStats struct {
	Runs             int64      `json:"runs"`
	RunFailures      int64      `json:"run_failures"`
	EntitiesAnalyzed int64      `json:"entities_analyzed"`
	LastRunDuration  float64    `json:"last_run_seconds"`
	StoreCache       CacheStats `json:"store_cache"`
	TrendCache       CacheStats `json:"trend_cache"`
}

// Dependencies are the external collaborators an Engine needs. History and
// Registry are required; ConfigStore and Snapshots are optional.
type Dependencies struct {
	// History answers bounded range queries. If nil, an HTTPHistoryClient
	// is built from the config's History section.
	History HistorySource

	// Registry is the live entity state map.
	Registry EntityRegistry

	// ConfigStore persists configuration and the latest analysis. If nil,
	// an in-memory store is used.
	ConfigStore ConfigStore

	// Snapshots archives completed analyses. Nil disables archiving.
	Snapshots SnapshotBackend

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine owns the full analysis pipeline: the time-series store, the trend
// analyzer, the usage analyzer, recommendation synthesis, the periodic
// scheduler, and persistence of the latest analysis.
type Engine struct {
	cfg      Config
	store    *Store
	trends   *TrendAnalyzer
	usage    *UsageAnalyzer
	rec      *Recommender
	cfgStore ConfigStore
	archiver *SnapshotArchiver
	logger   *slog.Logger

	mu     sync.RWMutex
	latest *AnalysisResult
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	runs        atomic.Int64
	runFailures atomic.Int64
	analyzed    atomic.Int64
	lastRunSecs atomic.Int64 // milliseconds, stored as int
}

// NewEngine builds an engine. A configuration persisted in the store takes
// precedence over the passed-in one; a load failure falls back to the given
// config and is logged at debug level since it is expected during
// unauthenticated startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	cfg.normalize()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfgStore := deps.ConfigStore
	if cfgStore == nil {
		cfgStore = NewMemoryConfigStore()
	}

	if stored, err := cfgStore.LoadConfig(context.Background()); err != nil {
		logger.Debug("stored config unavailable, using defaults", "err", err)
	} else if stored != nil {
		cfg = *stored
		cfg.normalize()
	}

	history := deps.History
	if history == nil {
		history = NewHTTPHistoryClient(cfg.History)
	}

	e := &Engine{
		cfg:      cfg,
		cfgStore: cfgStore,
		logger:   logger,
	}
	e.store = NewStore(history, deps.Registry, cfg.Cache)
	e.trends = NewTrendAnalyzer(e.store, cfg)
	e.usage = NewUsageAnalyzer(e.store, deps.Registry, cfg, logger)
	e.rec = NewRecommender(cfg.Usage)

	if deps.Snapshots != nil && cfg.Snapshots != nil && cfg.Snapshots.Enabled {
		archiver, err := NewSnapshotArchiver(deps.Snapshots, cfg.Snapshots.Encryption)
		if err != nil {
			return nil, err
		}
		e.archiver = archiver
	}

	// Resume the last persisted analysis so consumers have data before the
	// first run completes.
	if prior, err := cfgStore.LoadAnalysis(context.Background()); err != nil {
		logger.Debug("stored analysis unavailable", "err", err)
	} else if prior != nil {
		e.latest = prior
	}

	return e, nil
}

// Store exposes the shared time-series store.
func (e *Engine) Store() *Store { return e.store }

// Trends exposes the trend analyzer.
func (e *Engine) Trends() *TrendAnalyzer { return e.trends }

// Usage exposes the usage analyzer.
func (e *Engine) Usage() *UsageAnalyzer { return e.usage }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// RunAnalysis executes one full batch analysis and replaces the cached
// latest result. Per-entity failures are logged and skipped inside the
// analyzers; persistence failures are logged as warnings and do not
// invalidate the in-memory result.
func (e *Engine) RunAnalysis(ctx context.Context) (*AnalysisResult, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !e.cfg.Analytics.Enabled {
		return nil, ErrAnalyticsDisabled
	}

	started := time.Now()
	patterns := e.usage.AnalyzeUsagePatterns(ctx)
	energy := e.usage.AnalyzeEnergy(ctx)
	automationEff := e.usage.AutomationEfficiency()
	recs := e.rec.Synthesize(patterns, energy, automationEff)

	result := &AnalysisResult{
		GeneratedAt:          time.Now(),
		UsagePatterns:        patterns,
		Energy:               energy,
		AutomationEfficiency: automationEff,
		Recommendations:      recs,
		Summary: AnalysisSummary{
			DevicesAnalyzed:  len(patterns),
			EnergyEntities:   len(energy),
			Recommendations:  len(recs),
			PotentialSavings: totalSavings(recs),
		},
	}

	e.mu.Lock()
	e.latest = result
	e.mu.Unlock()

	e.runs.Add(1)
	e.analyzed.Add(int64(len(patterns)))
	e.lastRunSecs.Store(time.Since(started).Milliseconds())

	if err := e.cfgStore.SaveAnalysis(ctx, result); err != nil {
		e.logger.Warn("failed to persist analysis", "err", err)
	}
	if e.archiver != nil {
		if key, err := e.archiver.Archive(ctx, result); err != nil {
			e.logger.Warn("failed to archive analysis snapshot", "err", err)
		} else {
			e.logger.Info("archived analysis snapshot", "key", key)
		}
	}

	return result, nil
}

// LatestAnalysis returns the most recent analysis, or nil when none has run.
func (e *Engine) LatestAnalysis() *AnalysisResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Start launches the periodic analysis loop at the configured interval. The
// loop stops when Close is called. Calling Start on a closed engine returns
// ErrClosed.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.cancel != nil {
		return nil // already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.loop(ctx)
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Analytics.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunAnalysis(ctx); err != nil {
				e.runFailures.Add(1)
				e.logger.Error("scheduled analysis failed", "err", err)
			}
		}
	}
}

// Close stops the scheduler, waits for any in-flight run, and closes the
// configuration store. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	return e.cfgStore.Close()
}

// Stats returns engine counters and cache statistics.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Runs:             e.runs.Load(),
		RunFailures:      e.runFailures.Load(),
		EntitiesAnalyzed: e.analyzed.Load(),
		LastRunDuration:  float64(e.lastRunSecs.Load()) / 1000,
		StoreCache:       e.store.CacheStats(),
		TrendCache:       e.trends.CacheStats(),
	}
}

// totalSavings sums the estimated savings across recommendations.
func totalSavings(recs []Recommendation) float64 {
	sum := 0.0
	for _, r := range recs {
		if r.Savings != nil {
			sum += r.Savings.Estimated
		}
	}
	return sum
}
