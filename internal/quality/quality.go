package quality

import (
	"math"

	"github.com/agp-analyzer/backend/internal/models"
)

// Threshold multipliers, in pixels.
const (
	PerfectPixels       = 0.5
	GoodPixels          = 1.0
	LargeErrorPixels    = 3.0
	JumpDetectionPixels = 2.0
)

// DefaultSNRThreshold is the SNR below which a frame is flagged.
const DefaultSNRThreshold = 10.0

// Rating is an overall guiding grade.
type Rating string

const (
	Excellent Rating = "excellent"
	Good      Rating = "good"
	Fair      Rating = "fair"
	Poor      Rating = "poor"
)

// Thresholds are quality limits in arc-seconds.
type Thresholds struct {
	Perfect       float64 `json:"perfect"`
	Good          float64 `json:"good"`
	LargeError    float64 `json:"largeError"`
	JumpDetection float64 `json:"jumpDetection"`
}

// CalculateThresholds scales the pixel multipliers by pixelScale.
func CalculateThresholds(pixelScale float64) Thresholds {
	return Thresholds{
		Perfect:       PerfectPixels * pixelScale,
		Good:          GoodPixels * pixelScale,
		LargeError:    LargeErrorPixels * pixelScale,
		JumpDetection: JumpDetectionPixels * pixelScale,
	}
}

// FrameQuality classifies one frame.
type FrameQuality struct {
	IsPerfect     bool    `json:"isPerfect"`
	IsGood        bool    `json:"isGood"`
	HasLargeError bool    `json:"hasLargeError"`
	HasJump       bool    `json:"hasJump"`
	HasLowSNR     bool    `json:"hasLowSNR"`
	TotalError    float64 `json:"totalError"`
}

// AnalyzeFrame classifies an error sample. Jumps are only detected when
// prev is given.
func AnalyzeFrame(dx, dy, snr float64, t Thresholds, prev *DataPoint) FrameQuality {
	total := math.Hypot(dx, dy)
	q := FrameQuality{
		IsPerfect:     total <= t.Perfect,
		IsGood:        total <= t.Good,
		HasLargeError: total > t.LargeError,
		HasLowSNR:     snr < DefaultSNRThreshold,
		TotalError:    total,
	}
	if prev != nil {
		q.HasJump = math.Hypot(dx-prev.X, dy-prev.Y) > t.JumpDetection
	}
	return q
}

// Percentages are the shares of perfect and good samples, 0-100.
type Percentages struct {
	Perfect float64 `json:"perfectPercentage"`
	Good    float64 `json:"goodPercentage"`
}

// QualityPercentages counts perfect and good samples at pixelScale.
func QualityPercentages(data []DataPoint, pixelScale float64) Percentages {
	t := CalculateThresholds(pixelScale)
	return Percentages{
		Perfect: PercentageWithinThreshold(data, t.Perfect),
		Good:    PercentageWithinThreshold(data, t.Good),
	}
}

// Assess grades a run. The first matching rung wins.
func Assess(rmsTotal, perfectPct, goodPct float64) Rating {
	switch {
	case rmsTotal <= 0.5 && perfectPct >= 80:
		return Excellent
	case rmsTotal <= 1.0 && goodPct >= 70:
		return Good
	case rmsTotal <= 2.0 && goodPct >= 50:
		return Fair
	}
	return Poor
}

// Improvement is what removing large-error frames would gain.
type Improvement struct {
	OriginalRMS        float64 `json:"originalRMS"`
	ImprovedRMS        float64 `json:"improvedRMS"`
	FramesRemoved      int     `json:"framesRemoved"`
	ImprovementPercent float64 `json:"improvementPercent"`
}

// ImprovementPotential recomputes the combined RMS without samples above
// the large-error threshold.
func ImprovementPotential(data []DataPoint, t Thresholds) Improvement {
	if len(data) == 0 {
		return Improvement{}
	}
	original := CalculateRMSStats(data).Total

	kept := make([]DataPoint, 0, len(data))
	for _, p := range data {
		if p.Total() <= t.LargeError {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return Improvement{OriginalRMS: original, ImprovedRMS: original}
	}

	improved := CalculateRMSStats(kept).Total
	imp := Improvement{
		OriginalRMS:   original,
		ImprovedRMS:   improved,
		FramesRemoved: len(data) - len(kept),
	}
	if original > 0 {
		imp.ImprovementPercent = math.Max(0, (original-improved)/original*100)
	}
	return imp
}

// SessionReport is the quality summary of one guiding session.
type SessionReport struct {
	FrameCount  int              `json:"frameCount"`
	Duration    float64          `json:"durationSeconds"`
	RMS         RMSStats         `json:"rms"`
	MaxError    float64          `json:"maxError"`
	Thresholds  Thresholds       `json:"thresholds"`
	Percentages Percentages      `json:"percentages"`
	Percentiles ErrorPercentiles `json:"percentiles"`
	Improvement Improvement      `json:"improvement"`
	Rating      Rating           `json:"rating"`
}

// ErrorPercentiles are combined-error percentiles in arc-seconds.
type ErrorPercentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyzeSession builds the quality report for a session.
func AnalyzeSession(s *models.GuidingSession) SessionReport {
	points := FramePoints(s)
	totals := make([]float64, len(points))
	for i, p := range points {
		totals[i] = p.Total()
	}

	pc := Percentiles(totals, []float64{50, 90, 95, 99})
	rms := CalculateRMSStats(points)
	t := CalculateThresholds(s.PixelScale)
	pct := QualityPercentages(points, s.PixelScale)
	return SessionReport{
		FrameCount:  len(points),
		Duration:    s.Duration().Seconds(),
		RMS:         rms,
		MaxError:    MaxError(points),
		Thresholds:  t,
		Percentages: pct,
		Percentiles: ErrorPercentiles{P50: pc[50], P90: pc[90], P95: pc[95], P99: pc[99]},
		Improvement: ImprovementPotential(points, t),
		Rating:      Assess(rms.Total, pct.Perfect, pct.Good),
	}
}
