package homepulse

import (
	"sort"
	"time"
)

// TimeSeriesPoint represents a single observation of an entity's numeric
// state at a point in time.
type TimeSeriesPoint struct {
	// Timestamp is the observation time.
	Timestamp time.Time
	// Value is the numeric measurement.
	Value float64
}

// sortPointsAscending sorts points in place by timestamp, oldest first.
// Duplicate timestamps are permitted and keep their relative order.
func sortPointsAscending(points []TimeSeriesPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// Resample reduces an over-dense series to at most target points using
// fixed-stride subsampling. The first and last observations are always
// retained. Input must be sorted ascending; the input slice is never
// modified.
func Resample(points []TimeSeriesPoint, target int) []TimeSeriesPoint {
	if target <= 0 || len(points) <= target {
		out := make([]TimeSeriesPoint, len(points))
		copy(out, points)
		return out
	}

	// Ceiling stride guarantees the output never exceeds target even
	// after the final point is appended.
	stride := (len(points) + target - 1) / target
	out := make([]TimeSeriesPoint, 0, target)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}
	last := points[len(points)-1]
	if out[len(out)-1] != last {
		if len(out) == target {
			out[len(out)-1] = last
		} else {
			out = append(out, last)
		}
	}
	return out
}

// pointValues extracts the value column from a series.
func pointValues(points []TimeSeriesPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}
