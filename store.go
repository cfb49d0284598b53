package homepulse

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LoadingHook is invoked around a network fetch so a host can drive a
// loading indicator. It is called with loading=true before the fetch and
// loading=false after it completes, regardless of outcome.
type LoadingHook func(entityID string, loading bool)

// Store fetches, validates, sorts, and resamples historical samples for one
// entity over a requested look-back window, with a short-lived read cache.
type Store struct {
	history  HistorySource
	registry EntityRegistry
	cfg      CacheConfig

	cache   *ttlCache[[]TimeSeriesPoint]
	loading LoadingHook

	now func() time.Time
}

// NewStore creates a time-series store. The cache configuration is patched
// to defaults when invalid.
func NewStore(history HistorySource, registry EntityRegistry, cfg CacheConfig) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = 200
	}
	return &Store{
		history:  history,
		registry: registry,
		cfg:      cfg,
		cache:    newTTLCache[[]TimeSeriesPoint](cfg.TTL, cfg.MaxEntries),
		now:      time.Now,
	}
}

// SetLoadingHook installs a hook driven around each network fetch.
func (s *Store) SetLoadingHook(hook LoadingHook) {
	s.loading = hook
}

// SupportsHistoricalData reports whether the entity's history is usable as a
// numeric time series.
func (s *Store) SupportsHistoricalData(entityID string) bool {
	snap, ok := s.registry.Snapshot(entityID)
	if !ok {
		return false
	}
	return snap.SupportsHistory()
}

// FetchHistoricalData returns the entity's numeric history over the last
// `hours` hours, sorted ascending and resampled to the configured point
// budget. Results are cached; a fresh cache entry short-circuits the fetch.
// Fetch failures are returned as errors so callers can distinguish "no data"
// (empty slice) from "fetch failed".
func (s *Store) FetchHistoricalData(ctx context.Context, entityID string, hours int) ([]TimeSeriesPoint, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.fetch(ctx, entityID, hours, parseNumericState)
}

// FetchActivityHistory returns the entity's on/off history over the last
// `hours` hours as a 0/1 series, using the same caching and resampling
// pipeline as FetchHistoricalData. States that parse as numbers keep their
// value; on-like states map to 1 and everything else to 0.
func (s *Store) FetchActivityHistory(ctx context.Context, entityID string, hours int) ([]TimeSeriesPoint, error) {
	if hours <= 0 {
		hours = 24
	}
	return s.fetch(ctx, "activity|"+entityID, hours, parseActivityState)
}

// CacheStats returns the series cache counters.
func (s *Store) CacheStats() CacheStats {
	return s.cache.stats()
}

// ClearCache drops all cached series.
func (s *Store) ClearCache() {
	s.cache.clear()
}

// fetch runs the cache-then-network read path. The key prefix distinguishes
// value parsers so numeric and activity reads never alias.
func (s *Store) fetch(ctx context.Context, key string, hours int, parse func(string) (float64, bool)) ([]TimeSeriesPoint, error) {
	cacheKey := fmt.Sprintf("%s|%dh", key, hours)
	if points, ok := s.cache.get(cacheKey); ok {
		return points, nil
	}

	entityID := key
	if idx := strings.IndexByte(key, '|'); idx >= 0 {
		entityID = key[idx+1:]
	}

	if s.loading != nil {
		s.loading(entityID, true)
		defer s.loading(entityID, false)
	}

	end := s.now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	records, err := s.history.FetchRange(ctx, entityID, start, end)
	if err != nil {
		return nil, err
	}

	points := make([]TimeSeriesPoint, 0, len(records))
	for _, rec := range records {
		v, ok := parse(rec.State)
		if !ok {
			continue
		}
		points = append(points, TimeSeriesPoint{Timestamp: rec.LastUpdated, Value: v})
	}
	sortPointsAscending(points)
	points = Resample(points, s.cfg.MaxPoints)

	s.cache.put(cacheKey, points)
	return points, nil
}

// parseNumericState accepts only states that parse as finite numbers.
func parseNumericState(state string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(state), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseActivityState maps states to a 0/1 activity series. Numeric states
// keep their value so dimmable or leveled devices still integrate sensibly.
// Unavailable/unknown states are discarded rather than treated as "off".
func parseActivityState(state string) (float64, bool) {
	if v, ok := parseNumericState(state); ok {
		return v, true
	}
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "unavailable", "unknown", "":
		return 0, false
	}
	if isActiveState(state) {
		return 1, true
	}
	return 0, true
}
