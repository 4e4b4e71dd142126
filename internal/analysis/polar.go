package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/unit"

	"github.com/agp-analyzer/backend/internal/astro"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/quality"
)

// MinPolarFramesPerSide is how many frames each side of the meridian
// needs before alignment is estimated.
const MinPolarFramesPerSide = 10

// siderealArcsecPerMinute is how far the sky turns in one minute.
const siderealArcsecPerMinute = 15.0 * 60 * models.SiderealRate

// Hemispheres.
const (
	North = "north"
	South = "south"
)

// AlignmentError is the estimated pointing error of the polar axis.
// AltitudeError, AzimuthError and TotalError are the drift-method
// components (E-W)/2 and (E+W)/2 read as arc-minutes; the quality bands
// apply to them. AltitudeAxisError and AzimuthAxisError convert the same
// components to the angular axis offset that would produce that drift.
type AlignmentError struct {
	AltitudeError     float64 `json:"altitudeError"`
	AzimuthError      float64 `json:"azimuthError"`
	TotalError        float64 `json:"totalError"`
	AltitudeAxisError float64 `json:"altitudeAxisError"`
	AzimuthAxisError  float64 `json:"azimuthAxisError"`
	Confidence        float64 `json:"confidence"`
	Hemisphere        string  `json:"hemisphere"`
}

// AxisCorrection is one knob to turn.
type AxisCorrection struct {
	Direction   string  `json:"direction"`
	Magnitude   float64 `json:"magnitude"`
	Description string  `json:"description"`
}

// Corrections are the altitude and azimuth adjustments.
type Corrections struct {
	Altitude AxisCorrection `json:"altitude"`
	Azimuth  AxisCorrection `json:"azimuth"`
}

// PolarAlignment is the result of AnalyzePolarAlignment. Drift figures are
// Dec drift in arc-seconds per minute; AltitudeDrift and AzimuthDrift are
// the two components (E-W)/2 and (E+W)/2.
type PolarAlignment struct {
	Error          AlignmentError `json:"error"`
	Corrections    Corrections    `json:"corrections"`
	Quality        quality.Rating `json:"quality"`
	EastDriftRate  float64        `json:"eastDriftRate"`
	WestDriftRate  float64        `json:"westDriftRate"`
	AltitudeDrift  float64        `json:"altitudeDrift"`
	AzimuthDrift   float64        `json:"azimuthDrift"`
	EastFrames     int            `json:"eastFrames"`
	WestFrames     int            `json:"westFrames"`
	Recommendation string         `json:"recommendation"`
}

const insufficientPolarData = "Insufficient data for analysis"

// DriftPattern is the Dec drift at one frame with the hour angle it was
// taken at.
type DriftPattern struct {
	HourAngle float64   `json:"hourAngle"`
	DecDrift  float64   `json:"decDrift"`
	Timestamp time.Time `json:"timestamp"`
}

// frameHourAngle places a frame relative to the meridian using the hour
// angle logged at session start.
func frameHourAngle(s *models.GuidingSession, f models.GuidingFrame) float64 {
	return astro.NormalizeHourAngle(s.HourAngleAt(f.Datetime))
}

// decDriftRate is the mean of consecutive Dec drift rates, arcsec/min.
func decDriftRate(frames []models.GuidingFrame, pixelScale float64) float64 {
	var total float64
	count := 0
	for i := 1; i < len(frames); i++ {
		dt := frames[i].Datetime.Sub(frames[i-1].Datetime).Seconds()
		if dt == 0 {
			continue
		}
		total += (frames[i].DY - frames[i-1].DY) * pixelScale / dt * 60
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// DriftToArcmin converts a Dec drift rate in arcsec/min to the polar axis
// error in arc-minutes that produces it.
func DriftToArcmin(arcsecPerMin float64) float64 {
	return unit.Angle(arcsecPerMin / siderealArcsecPerMinute).Min()
}

// AnalyzePolarAlignment splits the session's frames at the meridian and
// decomposes the Dec drift on each side into altitude and azimuth error.
func AnalyzePolarAlignment(s *models.GuidingSession, latitude float64) PolarAlignment {
	hemisphere := North
	if latitude < 0 {
		hemisphere = South
	}

	var east, west []models.GuidingFrame
	for _, f := range s.Frames {
		switch ha := frameHourAngle(s, f); {
		case ha < 0:
			east = append(east, f)
		case ha > 0:
			west = append(west, f)
		}
	}

	if len(east) < MinPolarFramesPerSide || len(west) < MinPolarFramesPerSide {
		return PolarAlignment{
			Error: AlignmentError{Hemisphere: hemisphere},
			Corrections: Corrections{
				Altitude: AxisCorrection{Direction: "up", Description: insufficientPolarData},
				Azimuth:  AxisCorrection{Direction: "left", Description: insufficientPolarData},
			},
			Quality:        quality.Poor,
			EastFrames:     len(east),
			WestFrames:     len(west),
			Recommendation: "Need guiding data from both east and west of meridian for polar alignment analysis.",
		}
	}

	eastDrift := decDriftRate(east, s.PixelScale)
	westDrift := decDriftRate(west, s.PixelScale)
	altDrift := (eastDrift - westDrift) / 2
	azDrift := (eastDrift + westDrift) / 2

	alt, az := altDrift, azDrift
	total := math.Hypot(alt, az)

	altDir, azDir := "up", "left"
	if (alt > 0) == (hemisphere == North) {
		altDir = "down"
	}
	if (az > 0) == (hemisphere == North) {
		azDir = "right"
	}

	rating, advice := alignmentRating(total)
	return PolarAlignment{
		Error: AlignmentError{
			AltitudeError:     math.Abs(alt),
			AzimuthError:      math.Abs(az),
			TotalError:        total,
			AltitudeAxisError: math.Abs(DriftToArcmin(altDrift)),
			AzimuthAxisError:  math.Abs(DriftToArcmin(azDrift)),
			Confidence:        math.Min(1, float64(min(len(east), len(west)))/50),
			Hemisphere:        hemisphere,
		},
		Corrections: Corrections{
			Altitude: AxisCorrection{
				Direction:   altDir,
				Magnitude:   math.Abs(alt),
				Description: fmt.Sprintf("Adjust altitude %.1f' %s", math.Abs(alt), altDir),
			},
			Azimuth: AxisCorrection{
				Direction:   azDir,
				Magnitude:   math.Abs(az),
				Description: fmt.Sprintf("Adjust azimuth %.1f' %s", math.Abs(az), azDir),
			},
		},
		Quality:        rating,
		EastDriftRate:  eastDrift,
		WestDriftRate:  westDrift,
		AltitudeDrift:  altDrift,
		AzimuthDrift:   azDrift,
		EastFrames:     len(east),
		WestFrames:     len(west),
		Recommendation: advice,
	}
}

func alignmentRating(totalArcmin float64) (quality.Rating, string) {
	switch {
	case totalArcmin < 1:
		return quality.Excellent, "Polar alignment is excellent! No adjustments needed."
	case totalArcmin < 3:
		return quality.Good, "Polar alignment is good. Minor adjustments will improve performance."
	case totalArcmin < 5:
		return quality.Fair, "Polar alignment needs improvement. Follow correction guidance below."
	}
	return quality.Poor, "Polar alignment is poor. Significant corrections required for good guiding."
}

// ExtractDriftPatterns pairs each frame's Dec drift with its hour angle.
func ExtractDriftPatterns(s *models.GuidingSession) []DriftPattern {
	patterns := make([]DriftPattern, 0, len(s.Frames))
	for i := 1; i < len(s.Frames); i++ {
		a, b := s.Frames[i-1], s.Frames[i]
		dt := b.Datetime.Sub(a.Datetime).Seconds()
		if dt == 0 {
			continue
		}
		patterns = append(patterns, DriftPattern{
			HourAngle: frameHourAngle(s, b),
			DecDrift:  (b.DY - a.DY) * s.PixelScale / dt * 60,
			Timestamp: b.Datetime,
		})
	}
	return patterns
}

// AlignmentQuality scores a total error in arc-minutes from 100 down
// towards 0.
func AlignmentQuality(totalArcmin float64) float64 {
	return math.Max(0, math.Min(100, 100*math.Exp(-totalArcmin/4)))
}
