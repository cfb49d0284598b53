package homepulse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeHistory is a HistorySource backed by a function. The call counter is
// atomic because the trend analyzer fetches windows concurrently.
type fakeHistory struct {
	fn    func(entityID string, start, end time.Time) ([]StateRecord, error)
	calls atomic.Int64
}

var _ HistorySource = (*fakeHistory)(nil)

func (f *fakeHistory) FetchRange(ctx context.Context, entityID string, start, end time.Time) ([]StateRecord, error) {
	f.calls.Add(1)
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(entityID, start, end)
}

func TestStore_SupportsHistoricalData(t *testing.T) {
	registry := NewStaticRegistry(
		EntitySnapshot{EntityID: "sensor.temp", State: "21.5"},
		EntitySnapshot{EntityID: "sensor.mode", State: "7", DeviceClass: "enum"},
		EntitySnapshot{EntityID: "light.kitchen", State: "on"},
	)
	store := NewStore(&fakeHistory{}, registry, CacheConfig{})

	cases := []struct {
		entityID string
		want     bool
	}{
		{"sensor.temp", true},
		{"sensor.mode", false},   // excluded device class
		{"light.kitchen", false}, // non-numeric state
		{"sensor.missing", false},
	}
	for _, tc := range cases {
		if got := store.SupportsHistoricalData(tc.entityID); got != tc.want {
			t.Errorf("SupportsHistoricalData(%q) = %v, want %v", tc.entityID, got, tc.want)
		}
	}
}

func TestStore_FetchHistoricalData(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotStart, gotEnd time.Time
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			gotStart, gotEnd = start, end
			return []StateRecord{
				{State: "22", LastUpdated: now.Add(-time.Hour)},
				{State: "unavailable", LastUpdated: now.Add(-90 * time.Minute)},
				{State: "21", LastUpdated: now.Add(-2 * time.Hour)},
				{State: "NaN", LastUpdated: now.Add(-30 * time.Minute)},
				{State: "23", LastUpdated: now.Add(-10 * time.Minute)},
			}, nil
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})
	store.now = func() time.Time { return now }

	points, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24)
	if err != nil {
		t.Fatalf("FetchHistoricalData: %v", err)
	}
	if !gotEnd.Equal(now) || !gotStart.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("range = [%v, %v], want [now-24h, now]", gotStart, gotEnd)
	}
	want := []float64{21, 22, 23}
	if len(points) != len(want) {
		t.Fatalf("len = %d, want %d (non-numeric records discarded)", len(points), len(want))
	}
	for i, v := range want {
		if points[i].Value != v {
			t.Errorf("points[%d].Value = %v, want %v (sorted ascending)", i, points[i].Value, v)
		}
	}
}

func TestStore_FetchHistoricalData_DefaultsHours(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotStart time.Time
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			gotStart = start
			return nil, nil
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})
	store.now = func() time.Time { return now }

	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 0); err != nil {
		t.Fatalf("FetchHistoricalData: %v", err)
	}
	if !gotStart.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("start = %v, want now-24h for a non-positive window", gotStart)
	}
}

func TestStore_CacheHitAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			return []StateRecord{{State: "20", LastUpdated: end.Add(-time.Minute)}}, nil
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{TTL: 5 * time.Minute})
	store.now = func() time.Time { return now }

	current := now
	store.cache.now = func() time.Time { return current }

	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24); err != nil {
		t.Fatal(err)
	}
	if history.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (second read cached)", history.calls.Load())
	}

	// Different window is a different cache key.
	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 2); err != nil {
		t.Fatal(err)
	}
	if history.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 (different window refetches)", history.calls.Load())
	}

	// Past the TTL the entry is stale.
	current = now.Add(5 * time.Minute)
	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24); err != nil {
		t.Fatal(err)
	}
	if history.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3 (stale entry refetched)", history.calls.Load())
	}

	stats := store.CacheStats()
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}

	store.ClearCache()
	if store.CacheStats().Entries != 0 {
		t.Error("ClearCache left entries behind")
	}
}

func TestStore_FetchError(t *testing.T) {
	wantErr := newFetchError(FetchErrorTypeServer, "host error", "sensor.temp", 503, nil)
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			return nil, wantErr
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})

	points, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24)
	if points != nil {
		t.Errorf("points = %v, want nil", points)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}

	// Failures must not be cached.
	if _, _ = store.FetchHistoricalData(context.Background(), "sensor.temp", 24); history.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (errors are not cached)", history.calls.Load())
	}
}

func TestStore_LoadingHook(t *testing.T) {
	history := &fakeHistory{}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})

	type call struct {
		entityID string
		loading  bool
	}
	var calls []call
	store.SetLoadingHook(func(entityID string, loading bool) {
		calls = append(calls, call{entityID, loading})
	})

	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24); err != nil {
		t.Fatal(err)
	}
	want := []call{{"sensor.temp", true}, {"sensor.temp", false}}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("hook calls = %v, want %v", calls, want)
	}

	// Cache hits skip the hook.
	calls = nil
	if _, err := store.FetchHistoricalData(context.Background(), "sensor.temp", 24); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Errorf("hook fired on a cache hit: %v", calls)
	}
}

func TestStore_FetchActivityHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotEntity string
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			gotEntity = entityID
			return []StateRecord{
				{State: "on", LastUpdated: now.Add(-4 * time.Hour)},
				{State: "off", LastUpdated: now.Add(-3 * time.Hour)},
				{State: "unavailable", LastUpdated: now.Add(-2 * time.Hour)},
				{State: "0.6", LastUpdated: now.Add(-time.Hour)},
				{State: "playing", LastUpdated: now.Add(-30 * time.Minute)},
			}, nil
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})
	store.now = func() time.Time { return now }

	points, err := store.FetchActivityHistory(context.Background(), "light.kitchen", 24)
	if err != nil {
		t.Fatalf("FetchActivityHistory: %v", err)
	}
	if gotEntity != "light.kitchen" {
		t.Errorf("fetched entity = %q, want the bare entity ID", gotEntity)
	}
	want := []float64{1, 0, 0.6, 1}
	if len(points) != len(want) {
		t.Fatalf("len = %d, want %d (unavailable discarded)", len(points), len(want))
	}
	for i, v := range want {
		if points[i].Value != v {
			t.Errorf("points[%d].Value = %v, want %v", i, points[i].Value, v)
		}
	}
}

func TestStore_ActivityAndNumericDoNotAlias(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{
		fn: func(entityID string, start, end time.Time) ([]StateRecord, error) {
			return []StateRecord{{State: "on", LastUpdated: now.Add(-time.Hour)}}, nil
		},
	}
	store := NewStore(history, NewStaticRegistry(), CacheConfig{})
	store.now = func() time.Time { return now }

	activity, err := store.FetchActivityHistory(context.Background(), "light.kitchen", 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 1 || activity[0].Value != 1 {
		t.Fatalf("activity = %v, want one point with value 1", activity)
	}

	numeric, err := store.FetchHistoricalData(context.Background(), "light.kitchen", 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(numeric) != 0 {
		t.Errorf("numeric = %v, want empty ('on' is not a number)", numeric)
	}
	if history.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (separate cache keys)", history.calls.Load())
	}
}

func TestParseActivityState(t *testing.T) {
	cases := []struct {
		state string
		want  float64
		ok    bool
	}{
		{"on", 1, true},
		{"playing", 1, true},
		{"heat", 1, true},
		{"off", 0, true},
		{"idle", 0, true},
		{"closed", 0, true},
		{"0.75", 0.75, true},
		{"42", 42, true},
		{"unavailable", 0, false},
		{"unknown", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseActivityState(tc.state)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseActivityState(%q) = (%v, %v), want (%v, %v)", tc.state, got, ok, tc.want, tc.ok)
		}
	}
}
