// Package quality computes guiding statistics and rates guiding runs.
package quality

import (
	"math"
	"sort"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

// RMSStats holds root-mean-square error per axis and combined.
type RMSStats struct {
	Total float64 `json:"total"`
	RA    float64 `json:"ra"`
	Dec   float64 `json:"dec"`
}

// DataPoint is one guiding error sample; X is RA and Y is Dec.
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Total is the combined error magnitude.
func (p DataPoint) Total() float64 {
	return math.Hypot(p.X, p.Y)
}

// FramePoints converts a session's raw RA/Dec distances to arc-seconds.
func FramePoints(s *models.GuidingSession) []DataPoint {
	points := make([]DataPoint, 0, len(s.Frames))
	for _, f := range s.Frames {
		if f.Mount == models.MountStatusDrop {
			continue
		}
		points = append(points, DataPoint{X: s.ToArcsec(f.RARawDistance), Y: s.ToArcsec(f.DECRawDistance)})
	}
	return points
}

// CalculateRMSStats computes √(mean of squares) independently for each axis
// and for the combined magnitude.
func CalculateRMSStats(data []DataPoint) RMSStats {
	if len(data) == 0 {
		return RMSStats{}
	}
	var ra, dec float64
	for _, p := range data {
		ra += p.X * p.X
		dec += p.Y * p.Y
	}
	n := float64(len(data))
	return RMSStats{
		Total: math.Sqrt((ra + dec) / n),
		RA:    math.Sqrt(ra / n),
		Dec:   math.Sqrt(dec / n),
	}
}

// PercentageWithinThreshold returns the share of points, 0-100, whose
// combined error is at most threshold.
func PercentageWithinThreshold(data []DataPoint, threshold float64) float64 {
	if len(data) == 0 {
		return 0
	}
	within := 0
	for _, p := range data {
		if p.Total() <= threshold {
			within++
		}
	}
	return float64(within) / float64(len(data)) * 100
}

// MaxError is the largest combined error.
func MaxError(data []DataPoint) float64 {
	max := 0.0
	for i, p := range data {
		if t := p.Total(); i == 0 || t > max {
			max = t
		}
	}
	return max
}

// SessionDuration is the span from the first to the last timestamp.
func SessionDuration(timestamps []time.Time) time.Duration {
	if len(timestamps) < 2 {
		return 0
	}
	return timestamps[len(timestamps)-1].Sub(timestamps[0])
}

// Percentiles interpolates linearly between closest ranks. Keys are the
// requested percentiles; values outside 0-100 read as the nearest end.
func Percentiles(values []float64, percentiles []float64) map[float64]float64 {
	result := make(map[float64]float64, len(percentiles))
	if len(values) == 0 {
		for _, p := range percentiles {
			result[p] = 0
		}
		return result
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	for _, p := range percentiles {
		idx := math.Max(0, math.Min(100, p)) / 100 * float64(len(sorted)-1)
		lower := int(math.Floor(idx))
		upper := int(math.Ceil(idx))
		if lower == upper {
			result[p] = sorted[lower]
			continue
		}
		w := idx - float64(lower)
		result[p] = sorted[lower]*(1-w) + sorted[upper]*w
	}
	return result
}

// SampleData thins data evenly to at most maxPoints entries.
func SampleData[T any](data []T, maxPoints int) []T {
	if maxPoints <= 0 || len(data) <= maxPoints {
		return data
	}
	step := float64(len(data)) / float64(maxPoints)
	sampled := make([]T, 0, maxPoints)
	for i := 0.0; i < float64(len(data)); i += step {
		sampled = append(sampled, data[int(i)])
	}
	return sampled
}
