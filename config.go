package homepulse

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sensitivity is a named tier controlling the percentage thresholds used to
// call a trend or pattern significant.
type Sensitivity string

const (
	// SensitivityLow requires large changes before reporting.
	SensitivityLow Sensitivity = "low"
	// SensitivityMedium is the default tier.
	SensitivityMedium Sensitivity = "medium"
	// SensitivityHigh reports small changes.
	SensitivityHigh Sensitivity = "high"
)

// changeThreshold returns the |changePercent| threshold for calling a trend
// directional rather than stable.
func (s Sensitivity) changeThreshold() float64 {
	switch s {
	case SensitivityLow:
		return 10
	case SensitivityHigh:
		return 2
	default:
		return 5
	}
}

// deviationThreshold returns the percentage threshold for calling recent
// behavior unusual relative to the baseline.
func (s Sensitivity) deviationThreshold() float64 {
	switch s {
	case SensitivityLow:
		return 50
	case SensitivityHigh:
		return 15
	default:
		return 30
	}
}

// Config defines engine configuration. The zero value is not usable; start
// from DefaultConfig and override fields as needed. Constructors patch
// invalid fields back to their defaults.
type Config struct {
	// Analytics holds the top-level analysis settings.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Windows holds the look-back windows for trend analysis.
	Windows WindowConfig `yaml:"windows"`

	// Cache holds settings for the series and trend caches.
	Cache CacheConfig `yaml:"cache"`

	// Usage holds usage-profile and recommendation heuristics.
	Usage UsageConfig `yaml:"usage"`

	// History configures the history API client.
	History HistoryClientConfig `yaml:"history"`

	// Snapshots configures the optional analysis snapshot archive.
	// If nil or Enabled is false, completed analyses are not archived.
	Snapshots *SnapshotConfig `yaml:"snapshots,omitempty"`
}

// AnalyticsConfig groups top-level analysis settings.
type AnalyticsConfig struct {
	// Enabled turns the analytics engine on. When false, trend and usage
	// queries return empty results without fetching.
	Enabled bool `yaml:"enabled"`

	// Interval is how often the periodic batch analysis runs.
	// Default: 24h.
	Interval time.Duration `yaml:"interval"`

	// DataRetentionDays is advisory retention passed through to persisted
	// results. Default: 30.
	DataRetentionDays int `yaml:"data_retention_days"`

	// MinDataPoints is the minimum sample count required before an entity
	// is profiled. Default: 10.
	MinDataPoints int `yaml:"min_data_points"`

	// Sensitivity selects the threshold tier for trend and pattern
	// classification. Default: medium.
	Sensitivity Sensitivity `yaml:"sensitivity"`

	// SkipPatternAnalysis disables baseline pattern comparison while
	// keeping directional trends.
	SkipPatternAnalysis bool `yaml:"skip_pattern_analysis"`
}

// WindowConfig groups the look-back windows, in hours.
type WindowConfig struct {
	// ShortTermHours is the short trend window. Default: 2.
	ShortTermHours int `yaml:"short_term_hours"`

	// LongTermHours is the long trend window. Default: 24.
	LongTermHours int `yaml:"long_term_hours"`

	// BaselineHours is the historical reference window. Default: 168.
	BaselineHours int `yaml:"baseline_hours"`
}

// CacheConfig groups cache settings shared by the series store and the
// trend analyzer.
type CacheConfig struct {
	// TTL is how long a cached entry stays fresh. Default: 5 minutes.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds each cache; oldest entries are evicted first.
	// Default: 1024.
	MaxEntries int `yaml:"max_entries"`

	// MaxPoints is the resampling target per fetched series. Default: 200.
	MaxPoints int `yaml:"max_points"`
}

// UsageConfig groups usage-profile heuristics and recommendation thresholds.
// The numeric defaults mirror the tuning the engine shipped with; they are
// exposed here so deployments can override them.
type UsageConfig struct {
	// ControllableDomains lists the entity domains included in the usage
	// batch. Default: light, switch, media_player, climate, fan, cover, lock.
	ControllableDomains []Domain `yaml:"controllable_domains"`

	// WindowHours is the usage analysis look-back. Default: 168 (7 days).
	WindowHours int `yaml:"window_hours"`

	// TargetUsageRatio is the on-time fraction considered ideal by the
	// generic efficiency score. Default: 0.3.
	TargetUsageRatio float64 `yaml:"target_usage_ratio"`

	// LightingEveningWeight is how strongly lighting efficiency is biased
	// toward evening/night usage, 0..1. Default: 0.4.
	LightingEveningWeight float64 `yaml:"lighting_evening_weight"`

	// ClimateTargetDailyHours is the daily runtime considered ideal for
	// climate devices. Default: 8.
	ClimateTargetDailyHours float64 `yaml:"climate_target_daily_hours"`

	// EnergyEntityPatterns are substrings matched against entity IDs to
	// flag energy-relevant entities in addition to device-class and unit
	// detection. Default: energy, power, consumption.
	EnergyEntityPatterns []string `yaml:"energy_entity_patterns"`

	// HighUsageFleetFactor flags a device when its daily consumption
	// exceeds the fleet average by this fraction. Default: 0.2.
	HighUsageFleetFactor float64 `yaml:"high_usage_fleet_factor"`

	// UnderusedDailyHours flags a device used less than this per day.
	// Default: 1.
	UnderusedDailyHours float64 `yaml:"underused_daily_hours"`

	// OveractiveDailyHours flags a device used more than this per day.
	// Default: 12.
	OveractiveDailyHours float64 `yaml:"overactive_daily_hours"`

	// AutomationEfficiencyFloor triggers a recommendation when the ratio
	// of active automations drops below this percentage. Default: 70.
	AutomationEfficiencyFloor float64 `yaml:"automation_efficiency_floor"`
}

// HistoryClientConfig configures the HTTP history client.
type HistoryClientConfig struct {
	// BaseURL is the host's API root, e.g. "http://homehub.local:8123".
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token for the host API.
	Token string `yaml:"token"`

	// Timeout bounds each history request. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the retry budget per fetch. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// HTTPClient allows injecting a custom HTTP client for testing.
	// If nil, a default client is created with the configured timeout.
	HTTPClient HTTPDoer `yaml:"-"`
}

// SnapshotConfig configures the optional analysis snapshot archive.
type SnapshotConfig struct {
	// Enabled turns on archiving of completed analyses.
	Enabled bool `yaml:"enabled"`

	// Backend selects the archive backend: "memory", "file", or "s3".
	Backend string `yaml:"backend"`

	// Path is the directory for the file backend.
	Path string `yaml:"path"`

	// S3 configures the S3 backend when Backend is "s3".
	S3 *S3SnapshotConfig `yaml:"s3,omitempty"`

	// Encryption configures at-rest encryption of archived snapshots.
	// If nil or Enabled is false, snapshots are stored unencrypted.
	Encryption *EncryptionConfig `yaml:"encryption,omitempty"`
}

// DefaultConfig returns a configuration with the engine's shipped defaults.
func DefaultConfig() Config {
	return Config{
		Analytics: AnalyticsConfig{
			Enabled:           true,
			Interval:          24 * time.Hour,
			DataRetentionDays: 30,
			MinDataPoints:     10,
			Sensitivity:       SensitivityMedium,
		},
		Windows: WindowConfig{
			ShortTermHours: 2,
			LongTermHours:  24,
			BaselineHours:  168,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1024,
			MaxPoints:  200,
		},
		Usage: UsageConfig{
			ControllableDomains: []Domain{
				DomainLight, DomainSwitch, DomainMediaPlayer, DomainClimate,
				DomainFan, DomainCover, DomainLock,
			},
			WindowHours:               168,
			TargetUsageRatio:          0.3,
			LightingEveningWeight:     0.4,
			ClimateTargetDailyHours:   8,
			EnergyEntityPatterns:      []string{"energy", "power", "consumption"},
			HighUsageFleetFactor:      0.2,
			UnderusedDailyHours:       1,
			OveractiveDailyHours:      12,
			AutomationEfficiencyFloor: 70,
		},
		History: HistoryClientConfig{
			Timeout:    15 * time.Second,
			MaxRetries: 3,
		},
	}
}

// normalize patches invalid fields back to their defaults.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Analytics.Interval <= 0 {
		c.Analytics.Interval = def.Analytics.Interval
	}
	if c.Analytics.DataRetentionDays <= 0 {
		c.Analytics.DataRetentionDays = def.Analytics.DataRetentionDays
	}
	if c.Analytics.MinDataPoints <= 0 {
		c.Analytics.MinDataPoints = def.Analytics.MinDataPoints
	}
	switch c.Analytics.Sensitivity {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
	default:
		c.Analytics.Sensitivity = SensitivityMedium
	}
	if c.Windows.ShortTermHours <= 0 {
		c.Windows.ShortTermHours = def.Windows.ShortTermHours
	}
	if c.Windows.LongTermHours <= 0 {
		c.Windows.LongTermHours = def.Windows.LongTermHours
	}
	if c.Windows.BaselineHours <= 0 {
		c.Windows.BaselineHours = def.Windows.BaselineHours
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if c.Cache.MaxPoints <= 0 {
		c.Cache.MaxPoints = def.Cache.MaxPoints
	}
	if len(c.Usage.ControllableDomains) == 0 {
		c.Usage.ControllableDomains = def.Usage.ControllableDomains
	}
	if c.Usage.WindowHours <= 0 {
		c.Usage.WindowHours = def.Usage.WindowHours
	}
	if c.Usage.TargetUsageRatio <= 0 || c.Usage.TargetUsageRatio >= 1 {
		c.Usage.TargetUsageRatio = def.Usage.TargetUsageRatio
	}
	if c.Usage.LightingEveningWeight < 0 || c.Usage.LightingEveningWeight > 1 {
		c.Usage.LightingEveningWeight = def.Usage.LightingEveningWeight
	}
	if c.Usage.ClimateTargetDailyHours <= 0 {
		c.Usage.ClimateTargetDailyHours = def.Usage.ClimateTargetDailyHours
	}
	if c.Usage.HighUsageFleetFactor <= 0 {
		c.Usage.HighUsageFleetFactor = def.Usage.HighUsageFleetFactor
	}
	if c.Usage.UnderusedDailyHours <= 0 {
		c.Usage.UnderusedDailyHours = def.Usage.UnderusedDailyHours
	}
	if c.Usage.OveractiveDailyHours <= 0 {
		c.Usage.OveractiveDailyHours = def.Usage.OveractiveDailyHours
	}
	if c.Usage.AutomationEfficiencyFloor <= 0 || c.Usage.AutomationEfficiencyFloor > 100 {
		c.Usage.AutomationEfficiencyFloor = def.Usage.AutomationEfficiencyFloor
	}
	if c.History.Timeout <= 0 {
		c.History.Timeout = def.History.Timeout
	}
	if c.History.MaxRetries <= 0 {
		c.History.MaxRetries = def.History.MaxRetries
	}
}

// ParseConfig parses a YAML configuration document. Unset fields keep their
// defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// LoadConfigFile reads and parses a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// MarshalYAML-friendly round trip for persistence.
func (c Config) encodeYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Duration fields are written and read as strings ("24h", "5m") since the
// YAML decoder has no native duration support. The shadow structs below keep
// the public API on time.Duration.

type analyticsConfigYAML struct {
	Enabled             bool        `yaml:"enabled"`
	Interval            string      `yaml:"interval,omitempty"`
	DataRetentionDays   int         `yaml:"data_retention_days,omitempty"`
	MinDataPoints       int         `yaml:"min_data_points,omitempty"`
	Sensitivity         Sensitivity `yaml:"sensitivity,omitempty"`
	SkipPatternAnalysis bool        `yaml:"skip_pattern_analysis,omitempty"`
}

func (a AnalyticsConfig) MarshalYAML() (interface{}, error) {
	out := analyticsConfigYAML{
		Enabled:             a.Enabled,
		DataRetentionDays:   a.DataRetentionDays,
		MinDataPoints:       a.MinDataPoints,
		Sensitivity:         a.Sensitivity,
		SkipPatternAnalysis: a.SkipPatternAnalysis,
	}
	if a.Interval > 0 {
		out.Interval = a.Interval.String()
	}
	return out, nil
}

func (a *AnalyticsConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := analyticsConfigYAML{
		Enabled:             a.Enabled,
		DataRetentionDays:   a.DataRetentionDays,
		MinDataPoints:       a.MinDataPoints,
		Sensitivity:         a.Sensitivity,
		SkipPatternAnalysis: a.SkipPatternAnalysis,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a.Enabled = raw.Enabled
	a.DataRetentionDays = raw.DataRetentionDays
	a.MinDataPoints = raw.MinDataPoints
	a.Sensitivity = raw.Sensitivity
	a.SkipPatternAnalysis = raw.SkipPatternAnalysis
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parse analytics interval: %w", err)
		}
		a.Interval = d
	}
	return nil
}

type cacheConfigYAML struct {
	TTL        string `yaml:"ttl,omitempty"`
	MaxEntries int    `yaml:"max_entries,omitempty"`
	MaxPoints  int    `yaml:"max_points,omitempty"`
}

func (c CacheConfig) MarshalYAML() (interface{}, error) {
	out := cacheConfigYAML{MaxEntries: c.MaxEntries, MaxPoints: c.MaxPoints}
	if c.TTL > 0 {
		out.TTL = c.TTL.String()
	}
	return out, nil
}

func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := cacheConfigYAML{MaxEntries: c.MaxEntries, MaxPoints: c.MaxPoints}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.MaxEntries = raw.MaxEntries
	c.MaxPoints = raw.MaxPoints
	if raw.TTL != "" {
		d, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("parse cache ttl: %w", err)
		}
		c.TTL = d
	}
	return nil
}

type historyClientConfigYAML struct {
	BaseURL    string `yaml:"base_url,omitempty"`
	Token      string `yaml:"token,omitempty"`
	Timeout    string `yaml:"timeout,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

func (h HistoryClientConfig) MarshalYAML() (interface{}, error) {
	out := historyClientConfigYAML{
		BaseURL:    h.BaseURL,
		Token:      h.Token,
		MaxRetries: h.MaxRetries,
	}
	if h.Timeout > 0 {
		out.Timeout = h.Timeout.String()
	}
	return out, nil
}

func (h *HistoryClientConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := historyClientConfigYAML{
		BaseURL:    h.BaseURL,
		Token:      h.Token,
		MaxRetries: h.MaxRetries,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	h.BaseURL = raw.BaseURL
	h.Token = raw.Token
	h.MaxRetries = raw.MaxRetries
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parse history timeout: %w", err)
		}
		h.Timeout = d
	}
	return nil
}
