package homepulse

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// TrendDirection is the reported direction of a trend.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Confidence is the qualitative strength of a detected trend, derived from
// regression goodness-of-fit.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TrendPeriod distinguishes short-term from long-term trend results.
type TrendPeriod string

const (
	PeriodShort TrendPeriod = "short"
	PeriodLong  TrendPeriod = "long"
)

// TrendResult is the outcome of regressing one window of history.
type TrendResult struct {
	Direction     TrendDirection `json:"direction"`
	Change        float64        `json:"change"`
	ChangePercent float64        `json:"change_percent"`
	Confidence    Confidence     `json:"confidence"`
	Slope         float64        `json:"slope"`
	RSquared      float64        `json:"r_squared"`
	Period        TrendPeriod    `json:"period"`
}

// PatternType classifies recent behavior against the historical baseline.
type PatternType string

const (
	PatternNormal       PatternType = "normal"
	PatternUnusualLevel PatternType = "unusual_level"
	PatternMoreVolatile PatternType = "more_volatile"
	PatternMoreStable   PatternType = "more_stable"
)

// Severity grades how far a pattern deviates from the baseline.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PatternResult is the outcome of comparing recent behavior to the baseline.
type PatternResult struct {
	Type        PatternType `json:"type"`
	Description string      `json:"description,omitempty"`
	Severity    Severity    `json:"severity"`
	Value       float64     `json:"value"`
}

// TrendData bundles one entity's complete trend analysis.
type TrendData struct {
	EntityID    string         `json:"entity_id"`
	ShortTerm   *TrendResult   `json:"short_term"`
	LongTerm    *TrendResult   `json:"long_term"`
	Pattern     *PatternResult `json:"pattern,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// TrendAnalyzer produces directional trends and baseline pattern
// classifications per entity, fetching three windows concurrently through
// the time-series store.
type TrendAnalyzer struct {
	store       *Store
	analytics   AnalyticsConfig
	windows     WindowConfig
	sensitivity Sensitivity

	cache *ttlCache[*TrendData]
	now   func() time.Time
}

// NewTrendAnalyzer creates a trend analyzer sharing the given store.
func NewTrendAnalyzer(store *Store, cfg Config) *TrendAnalyzer {
	cfg.normalize()
	return &TrendAnalyzer{
		store:       store,
		analytics:   cfg.Analytics,
		windows:     cfg.Windows,
		sensitivity: cfg.Analytics.Sensitivity,
		cache:       newTTLCache[*TrendData](cfg.Cache.TTL, cfg.Cache.MaxEntries),
		now:         time.Now,
	}
}

// GetTrendData returns the cached or freshly computed trend analysis for one
// entity. It returns (nil, nil) when analytics is disabled or the entity's
// history is not usable as a numeric series. Fetch failures are returned to
// the caller; batch consumers log and continue.
func (ta *TrendAnalyzer) GetTrendData(ctx context.Context, entityID string) (*TrendData, error) {
	if !ta.analytics.Enabled {
		return nil, nil
	}
	if !ta.store.SupportsHistoricalData(entityID) {
		return nil, nil
	}
	if cached, ok := ta.cache.get(entityID); ok {
		return cached, nil
	}

	windows := []int{ta.windows.ShortTermHours, ta.windows.LongTermHours, ta.windows.BaselineHours}
	series := make([][]TimeSeriesPoint, len(windows))
	errs := make([]error, len(windows))

	var wg sync.WaitGroup
	for i, hours := range windows {
		wg.Add(1)
		go func(i, hours int) {
			defer wg.Done()
			series[i], errs[i] = ta.store.FetchHistoricalData(ctx, entityID, hours)
		}(i, hours)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	data := &TrendData{
		EntityID:    entityID,
		ShortTerm:   ta.CalculateTrend(series[0], PeriodShort),
		LongTerm:    ta.CalculateTrend(series[1], PeriodLong),
		LastUpdated: ta.now(),
	}
	if !ta.analytics.SkipPatternAnalysis {
		data.Pattern = ta.AnalyzePattern(series[1], series[2])
	}
	ta.cache.put(entityID, data)
	return data, nil
}

// CalculateTrend regresses one window of history. Fewer than five points
// yields a stable, low-confidence result.
func (ta *TrendAnalyzer) CalculateTrend(data []TimeSeriesPoint, period TrendPeriod) *TrendResult {
	if len(data) < 5 {
		return &TrendResult{Direction: TrendStable, Confidence: ConfidenceLow, Period: period}
	}

	points := make([]TimeSeriesPoint, len(data))
	copy(points, data)
	sortPointsAscending(points)

	slope, _, rSquared := linearRegression(points)

	first, last := points[0].Value, points[len(points)-1].Value
	change := last - first
	changePercent := 0.0
	if first != 0 {
		changePercent = change / math.Abs(first) * 100
	}

	direction := TrendStable
	confidence := ConfidenceLow
	if math.Abs(changePercent) >= ta.sensitivity.changeThreshold() {
		if changePercent > 0 {
			direction = TrendUp
		} else {
			direction = TrendDown
		}
		switch {
		case rSquared > 0.7:
			confidence = ConfidenceHigh
		case rSquared > 0.4:
			confidence = ConfidenceMedium
		}
	}

	return &TrendResult{
		Direction:     direction,
		Change:        change,
		ChangePercent: changePercent,
		Confidence:    confidence,
		Slope:         slope,
		RSquared:      rSquared,
		Period:        period,
	}
}

// AnalyzePattern compares recent behavior against the baseline window.
// Either set with fewer than five points yields a normal result.
func (ta *TrendAnalyzer) AnalyzePattern(recent, baseline []TimeSeriesPoint) *PatternResult {
	if len(recent) < 5 || len(baseline) < 5 {
		return &PatternResult{Type: PatternNormal, Severity: SeverityLow}
	}

	recentMean, recentStdDev := meanStdDev(pointValues(recent))
	baseMean, baseStdDev := meanStdDev(pointValues(baseline))

	threshold := ta.sensitivity.deviationThreshold()

	if baseMean != 0 {
		avgDiffPercent := (recentMean - baseMean) / math.Abs(baseMean) * 100
		if math.Abs(avgDiffPercent) >= threshold {
			word := "higher"
			if avgDiffPercent < 0 {
				word = "lower"
			}
			return &PatternResult{
				Type:        PatternUnusualLevel,
				Description: fmt.Sprintf("%.0f%% %s than usual", math.Abs(avgDiffPercent), word),
				Severity:    deviationSeverity(avgDiffPercent, threshold),
				Value:       avgDiffPercent,
			}
		}
	}

	if baseStdDev > 0 {
		variabilityPercent := (recentStdDev - baseStdDev) / baseStdDev * 100
		if math.Abs(variabilityPercent) >= threshold {
			ptype := PatternMoreVolatile
			word := "more volatile"
			if variabilityPercent < 0 {
				ptype = PatternMoreStable
				word = "more stable"
			}
			return &PatternResult{
				Type:        ptype,
				Description: fmt.Sprintf("%.0f%% %s than usual", math.Abs(variabilityPercent), word),
				Severity:    deviationSeverity(variabilityPercent, threshold),
				Value:       variabilityPercent,
			}
		}
	}

	return &PatternResult{Type: PatternNormal, Severity: SeverityLow}
}

// CacheStats returns the per-entity trend cache counters.
func (ta *TrendAnalyzer) CacheStats() CacheStats {
	return ta.cache.stats()
}

// InvalidateEntity drops one entity's cached trend.
func (ta *TrendAnalyzer) InvalidateEntity(entityID string) {
	ta.cache.delete(entityID)
}

func deviationSeverity(pct, threshold float64) Severity {
	if math.Abs(pct) >= 2*threshold {
		return SeverityHigh
	}
	return SeverityMedium
}

// linearRegression fits ordinary least squares over the series, treating the
// timestamp as the independent variable. Timestamps are shifted to seconds
// relative to the first point to keep the sums well conditioned. A zero
// denominator yields slope 0.
func linearRegression(points []TimeSeriesPoint) (slope, intercept, rSquared float64) {
	n := float64(len(points))
	t0 := points[0].Timestamp

	var sumX, sumY float64
	for _, p := range points {
		sumX += p.Timestamp.Sub(t0).Seconds()
		sumY += p.Value
	}
	meanX := sumX / n
	meanY := sumY / n

	var sxx, sxy float64
	for _, p := range points {
		dx := p.Timestamp.Sub(t0).Seconds() - meanX
		sxx += dx * dx
		sxy += dx * (p.Value - meanY)
	}
	if sxx == 0 {
		return 0, meanY, 0
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX

	var ssRes, ssTot float64
	for _, p := range points {
		x := p.Timestamp.Sub(t0).Seconds()
		predicted := slope*x + intercept
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 0
	}
	return slope, intercept, 1 - ssRes/ssTot
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))

	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return m, math.Sqrt(sumSq / float64(len(values)))
}
