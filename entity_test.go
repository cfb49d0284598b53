package homepulse

import "testing"

func TestDomainOf(t *testing.T) {
	cases := []struct {
		entityID string
		want     Domain
	}{
		{"light.kitchen", DomainLight},
		{"switch.heater", DomainSwitch},
		{"sensor.temp", DomainSensor},
		{"climate.living_room", DomainClimate},
		{"media_player.tv", DomainMediaPlayer},
		{"automation.wake", DomainAutomation},
		{"weather.home", DomainOther},
		{"nodot", DomainOther},
		{".leading", DomainOther},
		{"", DomainOther},
	}
	for _, tc := range cases {
		if got := DomainOf(tc.entityID); got != tc.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tc.entityID, got, tc.want)
		}
	}
}

func TestEntitySnapshot_NumericState(t *testing.T) {
	cases := []struct {
		state string
		want  float64
		ok    bool
	}{
		{"21.5", 21.5, true},
		{" 42 ", 42, true},
		{"-3.2", -3.2, true},
		{"on", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := EntitySnapshot{State: tc.state}.NumericState()
		if got != tc.want || ok != tc.ok {
			t.Errorf("NumericState(%q) = (%v, %v), want (%v, %v)", tc.state, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEntitySnapshot_SupportsHistory(t *testing.T) {
	cases := []struct {
		snap EntitySnapshot
		want bool
	}{
		{EntitySnapshot{State: "21.5"}, true},
		{EntitySnapshot{State: "21.5", DeviceClass: "temperature"}, true},
		{EntitySnapshot{State: "3", DeviceClass: "enum"}, false},
		{EntitySnapshot{State: "1700000000", DeviceClass: "timestamp"}, false},
		{EntitySnapshot{State: "on"}, false},
	}
	for _, tc := range cases {
		if got := tc.snap.SupportsHistory(); got != tc.want {
			t.Errorf("SupportsHistory(state=%q, class=%q) = %v, want %v",
				tc.snap.State, tc.snap.DeviceClass, got, tc.want)
		}
	}
}

func TestEntitySnapshot_IsActive(t *testing.T) {
	for _, state := range []string{"on", "ON", "playing", "heat", "unlocked", "open"} {
		if !(EntitySnapshot{State: state}).IsActive() {
			t.Errorf("IsActive(%q) = false, want true", state)
		}
	}
	for _, state := range []string{"off", "idle", "closed", "locked", "unavailable", ""} {
		if (EntitySnapshot{State: state}).IsActive() {
			t.Errorf("IsActive(%q) = true, want false", state)
		}
	}
}

func TestEntitySnapshot_Label(t *testing.T) {
	if got := (EntitySnapshot{EntityID: "light.kitchen", Name: "Kitchen Light"}).Label(); got != "Kitchen Light" {
		t.Errorf("Label = %q", got)
	}
	if got := (EntitySnapshot{EntityID: "light.kitchen"}).Label(); got != "light.kitchen" {
		t.Errorf("Label = %q, want entity ID fallback", got)
	}
}

func TestStaticRegistry(t *testing.T) {
	r := NewStaticRegistry(EntitySnapshot{EntityID: "light.kitchen", State: "on"})

	snap, ok := r.Snapshot("light.kitchen")
	if !ok {
		t.Fatal("seeded entity missing")
	}
	if snap.Domain != DomainLight {
		t.Errorf("domain = %q, want derived light", snap.Domain)
	}

	r.Set(EntitySnapshot{EntityID: "light.kitchen", State: "off"})
	snap, _ = r.Snapshot("light.kitchen")
	if snap.State != "off" {
		t.Errorf("state = %q, want replaced off", snap.State)
	}

	r.Set(EntitySnapshot{EntityID: "sensor.temp", State: "21"})
	if got := len(r.All()); got != 2 {
		t.Errorf("All() = %d entities, want 2", got)
	}

	r.Delete("light.kitchen")
	if _, ok := r.Snapshot("light.kitchen"); ok {
		t.Error("deleted entity still present")
	}
}
