package homepulse

import (
	"fmt"
	"sort"
	"strings"
)

// Impact grades how much a recommendation is expected to matter.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Savings estimates what acting on a recommendation saves.
type Savings struct {
	// Type is "energy" (hours or kWh) or "cost".
	Type string `json:"type"`
	// Estimated is the estimated amount saved per period.
	Estimated float64 `json:"estimated"`
	// Period is the horizon of the estimate, e.g. "month".
	Period string `json:"period"`
}

// Action is a concrete step the host can offer for a recommendation.
type Action struct {
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	Label    string `json:"label"`
}

// Recommendation is one prioritized optimization suggestion. Priority is an
// integer 0-100 used purely for ordering; higher sorts first.
type Recommendation struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      Impact   `json:"impact"`
	Priority    int      `json:"priority"`
	Savings     *Savings `json:"savings,omitempty"`
	Actions     []Action `json:"actions"`
}

// Recommendation rule priorities. Exposed as constants so hosts can reason
// about ordering; the rules themselves are threshold-driven, not learned.
const (
	priorityHighEnergy    = 90
	priorityOveractive    = 80
	priorityOffPeak       = 70
	priorityAutomation    = 65
	priorityUnderutilized = 60
)

// Recommender synthesizes a ranked recommendation list from usage profiles,
// energy summaries, and automation metrics.
type Recommender struct {
	cfg UsageConfig
}

// NewRecommender creates a recommender using the given usage heuristics.
func NewRecommender(cfg UsageConfig) *Recommender {
	return &Recommender{cfg: cfg}
}

// Synthesize applies the recommendation rules and returns the merged list
// sorted descending by priority. Ties keep insertion order.
func (r *Recommender) Synthesize(patterns []UsagePattern, energy []EnergySummary, automationEfficiency float64) []Recommendation {
	recs := make([]Recommendation, 0)

	fleetAvg := fleetAverageDailyHours(patterns)
	for _, p := range patterns {
		if fleetAvg > 0 && p.DailyAverageHours > fleetAvg*(1+r.cfg.HighUsageFleetFactor) {
			excess := p.DailyAverageHours - fleetAvg
			recs = append(recs, Recommendation{
				ID:          "high-energy:" + p.EntityID,
				Type:        "high_energy_consumption",
				Title:       fmt.Sprintf("High energy consumption: %s", p.Name),
				Description: fmt.Sprintf("%s runs %.1f hours per day, %.0f%% above the fleet average.", p.Name, p.DailyAverageHours, (p.DailyAverageHours/fleetAvg-1)*100),
				Impact:      ImpactHigh,
				Priority:    priorityHighEnergy,
				Savings:     &Savings{Type: "energy", Estimated: excess * 30, Period: "month"},
				Actions: []Action{
					{Type: "create_schedule", EntityID: p.EntityID, Label: "Create an on/off schedule"},
				},
			})
		}
	}

	if peaks := fleetPeakHours(patterns); len(peaks) > 0 {
		recs = append(recs, Recommendation{
			ID:          "off-peak-usage",
			Type:        "off_peak_usage",
			Title:       "Shift usage away from peak hours",
			Description: fmt.Sprintf("Most device activity concentrates around %s. Shifting flexible loads off these hours reduces peak consumption.", formatHours(peaks)),
			Impact:      ImpactMedium,
			Priority:    priorityOffPeak,
			Actions: []Action{
				{Type: "review_schedules", Label: "Review device schedules"},
			},
		})
	}

	for _, p := range patterns {
		switch {
		case p.DailyAverageHours > r.cfg.OveractiveDailyHours:
			recs = append(recs, Recommendation{
				ID:          "overactive:" + p.EntityID,
				Type:        "overactive_device",
				Title:       fmt.Sprintf("Overactive device: %s", p.Name),
				Description: fmt.Sprintf("%s is active %.1f hours per day. Check whether it can be turned off automatically.", p.Name, p.DailyAverageHours),
				Impact:      ImpactMedium,
				Priority:    priorityOveractive,
				Actions: []Action{
					{Type: "create_automation", EntityID: p.EntityID, Label: "Add an auto-off automation"},
				},
			})
		case p.DailyAverageHours < r.cfg.UnderusedDailyHours:
			recs = append(recs, Recommendation{
				ID:          "underutilized:" + p.EntityID,
				Type:        "underutilized_device",
				Title:       fmt.Sprintf("Underutilized device: %s", p.Name),
				Description: fmt.Sprintf("%s is used less than %.0f hour(s) per day. Consider unplugging it or removing its automations.", p.Name, r.cfg.UnderusedDailyHours),
				Impact:      ImpactLow,
				Priority:    priorityUnderutilized,
				Actions: []Action{
					{Type: "review_entity", EntityID: p.EntityID, Label: "Review device usage"},
				},
			})
		}
	}

	if automationEfficiency < r.cfg.AutomationEfficiencyFloor {
		recs = append(recs, Recommendation{
			ID:          "automation-efficiency",
			Type:        "automation_efficiency",
			Title:       "Improve automation coverage",
			Description: fmt.Sprintf("Only %.0f%% of automations are active. Re-enabling or pruning disabled automations keeps the home responsive.", automationEfficiency),
			Impact:      ImpactMedium,
			Priority:    priorityAutomation,
			Actions: []Action{
				{Type: "review_automations", Label: "Review disabled automations"},
			},
		})
	}

	SortRecommendations(recs)
	return recs
}

// SortRecommendations orders a list descending by priority. Equal priorities
// keep their relative order.
func SortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority > recs[j].Priority
	})
}

// fleetAverageDailyHours is the mean daily on-time across all profiles.
func fleetAverageDailyHours(patterns []UsagePattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range patterns {
		sum += p.DailyAverageHours
	}
	return sum / float64(len(patterns))
}

// fleetPeakHours returns the up-to-three busiest hours across the fleet.
// Any hour a device peaks in qualifies; hours shared by several devices
// sort first so the description names the most concentrated ones.
func fleetPeakHours(patterns []UsagePattern) []int {
	var counts [24]int
	for _, p := range patterns {
		for _, h := range p.PeakUsageHours {
			if h >= 0 && h < 24 {
				counts[h]++
			}
		}
	}
	hours := make([]int, 0, 3)
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] == counts[hours[j]] {
			return hours[i] < hours[j]
		}
		return counts[hours[i]] > counts[hours[j]]
	})
	if len(hours) > 3 {
		hours = hours[:3]
	}
	return hours
}

func formatHours(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d:00", h)
	}
	return strings.Join(parts, ", ")
}
