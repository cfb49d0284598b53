package homepulse

import (
	"fmt"
	"math"
	"time"
)

// ChangeDirection is the sign of a rate-of-change measurement.
type ChangeDirection string

const (
	// DirectionRising means the latest value is at or above the earliest.
	DirectionRising ChangeDirection = "rising"
	// DirectionFalling means the latest value is below the earliest.
	DirectionFalling ChangeDirection = "falling"
)

// RateOfChange describes how much a series moved inside a sliding window.
type RateOfChange struct {
	// Change is the absolute difference between the window endpoints.
	Change float64
	// Duration is the elapsed minutes between endpoints, rounded to the
	// nearest integer.
	Duration int
	// Direction is rising or falling.
	Direction ChangeDirection
}

// Anomaly is a rate-of-change measurement that met the detector threshold.
type Anomaly struct {
	Detected          bool
	Change            float64
	Duration          int
	Direction         ChangeDirection
	FormattedDuration string
}

// DetectorConfig configures a rate-of-change anomaly detector. The detector
// is unit-agnostic; callers instantiate one per measurement kind with a
// threshold in that measurement's units.
type DetectorConfig struct {
	// Threshold is the minimum absolute change to report, inclusive.
	Threshold float64

	// Window is the sliding look-back over which change is measured.
	Window time.Duration
}

// Detector computes rate-of-change over a sliding time window and classifies
// it against a fixed threshold. It is stateless and safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
	now func() time.Time
}

// NewDetector creates a detector. A non-positive window defaults to one hour.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// RateOfChange measures the change between the earliest and latest points
// inside the window. It returns nil when fewer than two points fall inside
// the window, or when the endpoints are less than one minute apart.
func (d *Detector) RateOfChange(history []TimeSeriesPoint) *RateOfChange {
	cutoff := d.now().Add(-d.cfg.Window)

	var earliest, latest *TimeSeriesPoint
	count := 0
	for i := range history {
		p := &history[i]
		if p.Timestamp.Before(cutoff) {
			continue
		}
		count++
		if earliest == nil || p.Timestamp.Before(earliest.Timestamp) {
			earliest = p
		}
		if latest == nil || !p.Timestamp.Before(latest.Timestamp) {
			latest = p
		}
	}
	if count < 2 {
		return nil
	}

	elapsed := latest.Timestamp.Sub(earliest.Timestamp).Minutes()
	if elapsed < 1 {
		return nil
	}

	direction := DirectionRising
	if latest.Value < earliest.Value {
		direction = DirectionFalling
	}
	return &RateOfChange{
		Change:    math.Abs(latest.Value - earliest.Value),
		Duration:  int(math.Round(elapsed)),
		Direction: direction,
	}
}

// Detect returns an Anomaly when the measured change meets or exceeds the
// threshold, and nil otherwise.
func (d *Detector) Detect(history []TimeSeriesPoint) *Anomaly {
	roc := d.RateOfChange(history)
	if roc == nil {
		return nil
	}
	if roc.Change < d.cfg.Threshold {
		return nil
	}
	return &Anomaly{
		Detected:          true,
		Change:            roc.Change,
		Duration:          roc.Duration,
		Direction:         roc.Direction,
		FormattedDuration: FormatDuration(float64(roc.Duration)),
	}
}

// FormatDuration renders a minute count for humans: "1 minute",
// "59 minutes", "1 hour", "1.5 hours", "2 hours". Sub-hour values are
// rounded to the nearest whole minute before formatting.
func FormatDuration(minutes float64) string {
	if minutes >= 60 {
		hours := minutes / 60
		if hours == 1 {
			return "1 hour"
		}
		if hours == math.Trunc(hours) {
			return fmt.Sprintf("%d hours", int(hours))
		}
		return fmt.Sprintf("%.1f hours", hours)
	}
	m := int(math.Round(minutes))
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
