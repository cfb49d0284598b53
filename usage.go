package homepulse

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
)

// UsageDistribution buckets on-time hours by named time-of-day period:
// morning 6-12, afternoon 12-18, evening 18-24, night 0-6.
type UsageDistribution struct {
	Morning   float64 `json:"morning"`
	Afternoon float64 `json:"afternoon"`
	Evening   float64 `json:"evening"`
	Night     float64 `json:"night"`
}

// UsagePattern is the per-entity usage profile computed over the analysis
// window.
type UsagePattern struct {
	EntityID          string            `json:"entity_id"`
	Name              string            `json:"name"`
	Domain            Domain            `json:"domain"`
	TotalUsageHours   float64           `json:"total_usage_hours"`
	DailyAverageHours float64           `json:"daily_average_hours"`
	PeakUsageHours    []int             `json:"peak_usage_hours"`
	UsageDistribution UsageDistribution `json:"usage_distribution"`
	WeekdayPattern    [7]float64        `json:"weekday_pattern"`
	EfficiencyScore   int               `json:"efficiency_score"`
}

// EnergySummary describes one energy-relevant entity over the window. Total
// is max minus min, which suits monotonically increasing cumulative sensors.
type EnergySummary struct {
	EntityID string      `json:"entity_id"`
	Name     string      `json:"name"`
	Total    float64     `json:"total"`
	Peak     float64     `json:"peak"`
	Average  float64     `json:"average"`
	Trend    EnergyTrend `json:"trend"`
}

// EnergyTrend is a coarse first-half versus second-half comparison.
type EnergyTrend string

const (
	EnergyIncreasing EnergyTrend = "increasing"
	EnergyDecreasing EnergyTrend = "decreasing"
	EnergyStable     EnergyTrend = "stable"
)

// energyUnits are units of measurement that flag an entity as energy-relevant.
var energyUnits = map[string]struct{}{
	"kWh": {},
	"Wh":  {},
	"W":   {},
	"kW":  {},
}

// UsageAnalyzer builds per-device usage profiles, energy summaries, and
// automation-efficiency metrics across the controllable fleet.
type UsageAnalyzer struct {
	store    *Store
	registry EntityRegistry
	cfg      UsageConfig
	minPts   int
	logger   *slog.Logger

	now func() time.Time
}

// NewUsageAnalyzer creates a usage analyzer sharing the given store.
func NewUsageAnalyzer(store *Store, registry EntityRegistry, cfg Config, logger *slog.Logger) *UsageAnalyzer {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageAnalyzer{
		store:    store,
		registry: registry,
		cfg:      cfg.Usage,
		minPts:   cfg.Analytics.MinDataPoints,
		logger:   logger,
		now:      time.Now,
	}
}

// AnalyzeUsagePatterns profiles every controllable entity. A single entity's
// failure is logged and skipped; it never aborts the batch.
func (ua *UsageAnalyzer) AnalyzeUsagePatterns(ctx context.Context) []UsagePattern {
	controllable := make(map[Domain]struct{}, len(ua.cfg.ControllableDomains))
	for _, d := range ua.cfg.ControllableDomains {
		controllable[d] = struct{}{}
	}

	entities := ua.registry.All()
	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })

	patterns := make([]UsagePattern, 0, len(entities))
	for _, snap := range entities {
		if _, ok := controllable[snap.Domain]; !ok {
			continue
		}
		pattern, err := ua.AnalyzeEntity(ctx, snap)
		if err != nil {
			ua.logger.Warn("usage analysis failed for entity", "entity_id", snap.EntityID, "err", err)
			continue
		}
		if pattern == nil {
			continue
		}
		patterns = append(patterns, *pattern)
	}
	return patterns
}

// AnalyzeEntity profiles one entity. It returns (nil, nil) when the entity
// has fewer than the configured minimum data points.
func (ua *UsageAnalyzer) AnalyzeEntity(ctx context.Context, snap EntitySnapshot) (*UsagePattern, error) {
	points, err := ua.store.FetchActivityHistory(ctx, snap.EntityID, ua.cfg.WindowHours)
	if err != nil {
		return nil, err
	}
	if len(points) < ua.minPts {
		return nil, nil
	}

	var (
		hourly  [24]float64
		weekday [7]float64
		dist    UsageDistribution
		totalOn float64
	)

	// Integrate on-time between consecutive samples, attributing each
	// interval to the bucket of its starting sample.
	for i := 0; i+1 < len(points); i++ {
		if points[i].Value <= 0 {
			continue
		}
		dt := points[i+1].Timestamp.Sub(points[i].Timestamp).Hours()
		if dt <= 0 {
			continue
		}
		totalOn += dt

		t := points[i].Timestamp
		hour := t.Hour()
		hourly[hour] += dt
		weekday[t.Weekday()] += dt
		switch {
		case hour >= 6 && hour < 12:
			dist.Morning += dt
		case hour >= 12 && hour < 18:
			dist.Afternoon += dt
		case hour >= 18:
			dist.Evening += dt
		default:
			dist.Night += dt
		}
	}

	elapsed := points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Hours()
	days := elapsed / 24
	if days < 1 {
		days = 1
	}

	pattern := &UsagePattern{
		EntityID:          snap.EntityID,
		Name:              snap.Label(),
		Domain:            snap.Domain,
		TotalUsageHours:   totalOn,
		DailyAverageHours: totalOn / days,
		PeakUsageHours:    peakHours(hourly),
		UsageDistribution: dist,
		WeekdayPattern:    weekday,
	}
	pattern.EfficiencyScore = ua.efficiencyScore(pattern, totalOn, elapsed)
	return pattern, nil
}

// efficiencyScore grades usage behavior 0..100. The generic score rewards an
// on-time ratio near the configured target; lighting is additionally biased
// toward evening/night usage, and climate toward the configured daily
// runtime. These heuristics are configuration, not derived from data.
func (ua *UsageAnalyzer) efficiencyScore(p *UsagePattern, totalOn, elapsedHours float64) int {
	if elapsedHours <= 0 {
		return 0
	}
	ratio := totalOn / elapsedHours
	base := (1 - math.Abs(ratio-ua.cfg.TargetUsageRatio)) * 100

	switch p.Domain {
	case DomainLight:
		if totalOn > 0 {
			eveningShare := (p.UsageDistribution.Evening + p.UsageDistribution.Night) / totalOn
			w := ua.cfg.LightingEveningWeight
			base = (1-w)*base + w*eveningShare*100
		}
	case DomainClimate:
		target := ua.cfg.ClimateTargetDailyHours
		miss := math.Abs(p.DailyAverageHours-target) / target
		if miss > 1 {
			miss = 1
		}
		base = (1 - miss) * 100
	}

	return clampScore(int(math.Round(base)))
}

// AnalyzeEnergy summarizes every energy-relevant entity. Failures are logged
// and skipped.
func (ua *UsageAnalyzer) AnalyzeEnergy(ctx context.Context) []EnergySummary {
	entities := ua.registry.All()
	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })

	summaries := make([]EnergySummary, 0)
	for _, snap := range entities {
		if !ua.isEnergyEntity(snap) {
			continue
		}
		summary, err := ua.analyzeEnergyEntity(ctx, snap)
		if err != nil {
			ua.logger.Warn("energy analysis failed for entity", "entity_id", snap.EntityID, "err", err)
			continue
		}
		if summary == nil {
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries
}

// isEnergyEntity flags entities by device class, unit, or ID naming pattern.
func (ua *UsageAnalyzer) isEnergyEntity(snap EntitySnapshot) bool {
	switch snap.DeviceClass {
	case "energy", "power":
		return true
	}
	if _, ok := energyUnits[snap.Unit]; ok {
		return true
	}
	id := strings.ToLower(snap.EntityID)
	for _, pattern := range ua.cfg.EnergyEntityPatterns {
		if pattern != "" && strings.Contains(id, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func (ua *UsageAnalyzer) analyzeEnergyEntity(ctx context.Context, snap EntitySnapshot) (*EnergySummary, error) {
	points, err := ua.store.FetchHistoricalData(ctx, snap.EntityID, ua.cfg.WindowHours)
	if err != nil {
		return nil, err
	}
	if len(points) < 2 {
		return nil, nil
	}

	minV, maxV := points[0].Value, points[0].Value
	sum := 0.0
	for _, p := range points {
		if p.Value < minV {
			minV = p.Value
		}
		if p.Value > maxV {
			maxV = p.Value
		}
		sum += p.Value
	}

	return &EnergySummary{
		EntityID: snap.EntityID,
		Name:     snap.Label(),
		Total:    maxV - minV,
		Peak:     maxV,
		Average:  sum / float64(len(points)),
		Trend:    energyTrend(points),
	}, nil
}

// energyTrend compares first-half and second-half means with a ±10% band.
func energyTrend(points []TimeSeriesPoint) EnergyTrend {
	half := len(points) / 2
	firstMean, _ := meanStdDev(pointValues(points[:half]))
	secondMean, _ := meanStdDev(pointValues(points[half:]))
	if firstMean == 0 {
		return EnergyStable
	}
	delta := (secondMean - firstMean) / math.Abs(firstMean)
	switch {
	case delta > 0.1:
		return EnergyIncreasing
	case delta < -0.1:
		return EnergyDecreasing
	default:
		return EnergyStable
	}
}

// AutomationEfficiency returns the share of automations currently active,
// 0-100. A fleet with no automations reports 100.
func (ua *UsageAnalyzer) AutomationEfficiency() float64 {
	total, active := 0, 0
	for _, snap := range ua.registry.All() {
		if snap.Domain != DomainAutomation {
			continue
		}
		total++
		if strings.EqualFold(snap.State, "on") {
			active++
		}
	}
	if total == 0 {
		return 100
	}
	return float64(active) / float64(total) * 100
}

// peakHours returns up to the three busiest hours of day, busiest first.
// Hours with no usage are never reported.
func peakHours(hourly [24]float64) []int {
	hours := make([]int, 0, 24)
	for h, v := range hourly {
		if v > 0 {
			hours = append(hours, h)
		}
	}
	sort.Slice(hours, func(i, j int) bool {
		if hourly[hours[i]] == hourly[hours[j]] {
			return hours[i] < hours[j]
		}
		return hourly[hours[i]] > hourly[hours[j]]
	})
	if len(hours) > 3 {
		hours = hours[:3]
	}
	return hours
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
