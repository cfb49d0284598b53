package homepulse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testEngineDeps(history HistorySource, registry EntityRegistry) Dependencies {
	return Dependencies{
		History:  history,
		Registry: registry,
		Logger:   quietLogger(),
	}
}

// fleetHistory serves plausible activity and energy series for the test
// registry below.
func fleetHistory(start time.Time) *fakeHistory {
	return &fakeHistory{
		fn: func(entityID string, s, e time.Time) ([]StateRecord, error) {
			switch entityID {
			case "switch.pump":
				// Always on: overactive.
				return hourlyActivity(start, 48, func(int) bool { return true }), nil
			case "light.kitchen":
				return hourlyActivity(start, 48, func(h int) bool { return h >= 18 && h < 22 }), nil
			case "sensor.house_energy":
				records := make([]StateRecord, 12)
				for i := range records {
					records[i] = StateRecord{
						State:       "100",
						LastUpdated: start.Add(time.Duration(i) * time.Hour),
					}
				}
				return records, nil
			default:
				return nil, nil
			}
		},
	}
}

func fleetRegistry() *StaticRegistry {
	return NewStaticRegistry(
		EntitySnapshot{EntityID: "switch.pump", Name: "Pump", State: "on"},
		EntitySnapshot{EntityID: "light.kitchen", Name: "Kitchen", State: "off"},
		EntitySnapshot{EntityID: "sensor.house_energy", State: "100", Unit: "kWh"},
		EntitySnapshot{EntityID: "automation.wake", State: "off"},
	)
}

func TestEngine_RunAnalysis(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine, err := NewEngine(DefaultConfig(), testEngineDeps(fleetHistory(start), fleetRegistry()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer func() { _ = engine.Close() }()

	result, err := engine.RunAnalysis(context.Background())
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	if result.Summary.DevicesAnalyzed != 2 {
		t.Errorf("devices analyzed = %d, want 2", result.Summary.DevicesAnalyzed)
	}
	if result.Summary.EnergyEntities != 1 {
		t.Errorf("energy entities = %d, want 1", result.Summary.EnergyEntities)
	}
	// The single automation is off, so coverage is 0%.
	if result.AutomationEfficiency != 0 {
		t.Errorf("automation efficiency = %v, want 0", result.AutomationEfficiency)
	}

	types := make(map[string]bool)
	for _, rec := range result.Recommendations {
		types[rec.Type] = true
	}
	if !types["overactive_device"] {
		t.Errorf("expected an overactive_device recommendation, got %v", types)
	}
	if !types["automation_efficiency"] {
		t.Errorf("expected an automation_efficiency recommendation, got %v", types)
	}
	// The pump and the kitchen light peak in disjoint hours; detected peak
	// hours still produce an off-peak recommendation.
	if !types["off_peak_usage"] {
		t.Errorf("expected an off_peak_usage recommendation, got %v", types)
	}
	for i := 1; i < len(result.Recommendations); i++ {
		if result.Recommendations[i].Priority > result.Recommendations[i-1].Priority {
			t.Fatal("recommendations not sorted by priority")
		}
	}

	if got := engine.LatestAnalysis(); got != result {
		t.Error("LatestAnalysis should return the run's result")
	}

	stats := engine.Stats()
	if stats.Runs != 1 {
		t.Errorf("runs = %d, want 1", stats.Runs)
	}
	if stats.EntitiesAnalyzed != 2 {
		t.Errorf("entities analyzed = %d, want 2", stats.EntitiesAnalyzed)
	}
}

func TestEngine_RunAnalysisReplacesLatest(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine, err := NewEngine(DefaultConfig(), testEngineDeps(fleetHistory(start), fleetRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Close() }()

	first, err := engine.RunAnalysis(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.RunAnalysis(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if engine.LatestAnalysis() != second || first == second {
		t.Error("latest analysis must be replaced wholesale by each run")
	}
}

func TestEngine_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analytics.Enabled = false
	engine, err := NewEngine(cfg, testEngineDeps(&fakeHistory{}, NewStaticRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Close() }()

	if _, err := engine.RunAnalysis(context.Background()); !errors.Is(err, ErrAnalyticsDisabled) {
		t.Errorf("err = %v, want ErrAnalyticsDisabled", err)
	}
}

func TestEngine_Close(t *testing.T) {
	engine, err := NewEngine(DefaultConfig(), testEngineDeps(&fakeHistory{}, NewStaticRegistry()))
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := engine.RunAnalysis(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("RunAnalysis after close: %v, want ErrClosed", err)
	}
	if err := engine.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after close: %v, want ErrClosed", err)
	}
}

func TestEngine_StartIdempotentAndStops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analytics.Interval = time.Hour // never fires during the test
	engine, err := NewEngine(cfg, testEngineDeps(&fakeHistory{}, NewStaticRegistry()))
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	// Close must stop the loop and return.
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEngine_StoredConfigTakesPrecedence(t *testing.T) {
	cfgStore := NewMemoryConfigStore()
	stored := DefaultConfig()
	stored.Analytics.Sensitivity = SensitivityHigh
	if err := cfgStore.SaveConfig(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	passed := DefaultConfig()
	passed.Analytics.Sensitivity = SensitivityLow
	deps := testEngineDeps(&fakeHistory{}, NewStaticRegistry())
	deps.ConfigStore = cfgStore

	engine, err := NewEngine(passed, deps)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Close() }()

	if got := engine.Config().Analytics.Sensitivity; got != SensitivityHigh {
		t.Errorf("sensitivity = %q, want the stored high", got)
	}
}

func TestEngine_ResumesPersistedAnalysis(t *testing.T) {
	cfgStore := NewMemoryConfigStore()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := cfgStore.SaveAnalysis(context.Background(), sampleAnalysis(at)); err != nil {
		t.Fatal(err)
	}

	deps := testEngineDeps(&fakeHistory{}, NewStaticRegistry())
	deps.ConfigStore = cfgStore
	engine, err := NewEngine(DefaultConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Close() }()

	latest := engine.LatestAnalysis()
	if latest == nil || !latest.GeneratedAt.Equal(at) {
		t.Errorf("latest = %+v, want the persisted analysis", latest)
	}
}

func TestEngine_PersistsAndArchivesAnalysis(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfgStore := NewMemoryConfigStore()
	backend := NewMemorySnapshotBackend()

	cfg := DefaultConfig()
	cfg.Snapshots = &SnapshotConfig{Enabled: true, Backend: "memory"}
	deps := testEngineDeps(fleetHistory(start), fleetRegistry())
	deps.ConfigStore = cfgStore
	deps.Snapshots = backend

	engine, err := NewEngine(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = engine.Close() }()

	result, err := engine.RunAnalysis(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	persisted, err := cfgStore.LoadAnalysis(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if persisted == nil || !persisted.GeneratedAt.Equal(result.GeneratedAt) {
		t.Errorf("persisted = %+v, want the run's result", persisted)
	}

	keys, err := backend.List(context.Background(), "analysis/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Errorf("archived snapshots = %v, want exactly one", keys)
	}
}

func TestTotalSavings(t *testing.T) {
	recs := []Recommendation{
		{Savings: &Savings{Estimated: 120}},
		{Savings: nil},
		{Savings: &Savings{Estimated: 30}},
	}
	if got := totalSavings(recs); got != 150 {
		t.Errorf("totalSavings = %v, want 150", got)
	}
}
