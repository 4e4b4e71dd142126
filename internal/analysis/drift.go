// Package analysis derives drift, backlash, periodic error and polar
// alignment figures from parsed guiding sessions. Functions never fail:
// too little data yields zero results with zero confidence.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
)

// DriftVector is the rate of change of guide error between two frames.
// Rates are arc-seconds per minute; Direction is degrees with 0 along +Dec
// and 90 along +RA.
type DriftVector struct {
	Timestamp time.Time `json:"timestamp"`
	DriftRate float64   `json:"driftRate"`
	Direction float64   `json:"direction"`
	RADrift   float64   `json:"raDrift"`
	DecDrift  float64   `json:"decDrift"`
}

// DriftAnalysis summarizes the drift vectors of a session.
// DriftStability is the coefficient of variation of the rates.
type DriftAnalysis struct {
	DriftVectors           []DriftVector `json:"driftVectors"`
	AverageDriftRate       float64       `json:"averageDriftRate"`
	MaxDriftRate           float64       `json:"maxDriftRate"`
	DominantDirection      float64       `json:"dominantDirection"`
	DriftStability         float64       `json:"driftStability"`
	TemperatureCorrelation *float64      `json:"temperatureCorrelation,omitempty"`
}

// wrapDegrees maps an atan2 result into [0, 360).
func wrapDegrees(rad float64) float64 {
	d := rad * 180 / math.Pi
	if d < 0 {
		d += 360
	}
	return d
}

// CalculateDriftRate returns the drift from a to b. ok is false when b is
// not later than a.
func CalculateDriftRate(a, b models.GuidingFrame, pixelScale float64) (DriftVector, bool) {
	dtMs := b.TimeInMilliseconds - a.TimeInMilliseconds
	if dtMs <= 0 {
		return DriftVector{}, false
	}
	dtMin := dtMs / 60000

	ra := (b.DX - a.DX) * pixelScale / dtMin
	dec := (b.DY - a.DY) * pixelScale / dtMin
	return DriftVector{
		Timestamp: b.Datetime,
		DriftRate: math.Hypot(ra, dec),
		Direction: wrapDegrees(math.Atan2(ra, dec)),
		RADrift:   ra,
		DecDrift:  dec,
	}, true
}

// AnalyzeDrift builds consecutive-pair drift vectors and their statistics.
// When focus events are given, their temperatures are correlated with the
// drift rate.
func AnalyzeDrift(frames []models.GuidingFrame, pixelScale float64, focus []models.AutoFocusEvent) DriftAnalysis {
	out := DriftAnalysis{DriftVectors: make([]DriftVector, 0)}
	for i := 1; i < len(frames); i++ {
		if v, ok := CalculateDriftRate(frames[i-1], frames[i], pixelScale); ok {
			out.DriftVectors = append(out.DriftVectors, v)
		}
	}
	if len(out.DriftVectors) == 0 {
		return out
	}

	var sum, sinSum, cosSum float64
	for _, v := range out.DriftVectors {
		sum += v.DriftRate
		if v.DriftRate > out.MaxDriftRate {
			out.MaxDriftRate = v.DriftRate
		}
		rad := v.Direction * math.Pi / 180
		sinSum += math.Sin(rad) * v.DriftRate
		cosSum += math.Cos(rad) * v.DriftRate
	}
	n := float64(len(out.DriftVectors))
	out.AverageDriftRate = sum / n
	if sum > 0 {
		out.DominantDirection = wrapDegrees(math.Atan2(sinSum/sum, cosSum/sum))
	}

	var variance float64
	for _, v := range out.DriftVectors {
		d := v.DriftRate - out.AverageDriftRate
		variance += d * d
	}
	if out.AverageDriftRate > 0 {
		out.DriftStability = math.Sqrt(variance/n) / out.AverageDriftRate
	}

	if len(focus) > 0 {
		c := temperatureCorrelation(out.DriftVectors, focus)
		out.TemperatureCorrelation = &c
	}
	return out
}

// temperatureCorrelation is the Pearson coefficient between drift rate and
// the temperature interpolated at each vector.
func temperatureCorrelation(vectors []DriftVector, focus []models.AutoFocusEvent) float64 {
	if len(vectors) < 2 || len(focus) < 2 {
		return 0
	}

	events := make([]models.AutoFocusEvent, len(focus))
	copy(events, focus)
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartTime.Before(events[j].StartTime) })

	var n, sx, sy, sxy, sxx, syy float64
	for _, v := range vectors {
		temp := interpolateTemperature(v.Timestamp, events)
		x, y := v.DriftRate, temp
		n++
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
		syy += y * y
	}

	den := math.Sqrt((n*sxx - sx*sx) * (n*syy - sy*sy))
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

// interpolateTemperature reads the temperature at t from focus runs sorted
// by start time, holding the first and last values outside their span.
func interpolateTemperature(t time.Time, events []models.AutoFocusEvent) float64 {
	after := sort.Search(len(events), func(i int) bool { return !events[i].StartTime.Before(t) })
	switch {
	case after == 0:
		return events[0].Temperature
	case after == len(events):
		return events[len(events)-1].Temperature
	}
	before := events[after-1]
	next := events[after]
	if next.StartTime.Equal(t) {
		return next.Temperature
	}
	span := next.StartTime.Sub(before.StartTime).Seconds()
	ratio := t.Sub(before.StartTime).Seconds() / span
	return before.Temperature + (next.Temperature-before.Temperature)*ratio
}

// Axis names used by BacklashEvent.
const (
	AxisRA  = "RA"
	AxisDec = "Dec"
)

// DefaultBacklashThreshold is the error jump, in arc-seconds, that counts
// as backlash.
const DefaultBacklashThreshold = 2.0

// backlashRecoveryFrames bounds the search for the error to settle.
const backlashRecoveryFrames = 10

// BacklashEvent is a correction reversal followed by an error jump.
// RecoveryTime is seconds, zero if the error did not settle.
type BacklashEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	DirectionChange string    `json:"directionChange"`
	Magnitude       float64   `json:"magnitude"`
	RecoveryTime    float64   `json:"recoveryTime"`
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// DetectBacklashEvents flags frames where the trend of the RA or Dec pulse
// duration reverses and the total error jumps by at least threshold
// arc-seconds. A non-positive threshold means DefaultBacklashThreshold.
func DetectBacklashEvents(frames []models.GuidingFrame, pixelScale, threshold float64) []BacklashEvent {
	if threshold <= 0 {
		threshold = DefaultBacklashThreshold
	}
	errorAt := func(f models.GuidingFrame) float64 {
		return math.Hypot(f.DX, f.DY) * pixelScale
	}

	events := make([]BacklashEvent, 0)
	for i := 2; i < len(frames); i++ {
		pp, p, cur := frames[i-2], frames[i-1], frames[i]
		raChange := sign(p.RADuration-pp.RADuration) != sign(cur.RADuration-p.RADuration)
		decChange := sign(p.DECDuration-pp.DECDuration) != sign(cur.DECDuration-p.DECDuration)
		if !raChange && !decChange {
			continue
		}

		base := errorAt(p)
		mag := math.Abs(errorAt(cur) - base)
		if mag < threshold {
			continue
		}

		ev := BacklashEvent{Timestamp: cur.Datetime, DirectionChange: AxisDec, Magnitude: mag}
		if raChange {
			ev.DirectionChange = AxisRA
		}
		end := min(i+backlashRecoveryFrames, len(frames))
		for j := i + 1; j < end; j++ {
			if math.Abs(errorAt(frames[j])-base) < threshold/2 {
				ev.RecoveryTime = (frames[j].TimeInMilliseconds - cur.TimeInMilliseconds) / 1000
				break
			}
		}
		events = append(events, ev)
	}
	return events
}
