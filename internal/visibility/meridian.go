package visibility

import (
	"fmt"
	"math"
	"time"

	"github.com/agp-analyzer/backend/internal/astro"
)

// Pier sides as reported by PredictMeridianFlip.
const (
	SideEast = "east"
	SideWest = "west"
)

// MountLimits are hour-angle limits of a German equatorial mount, in hours.
// MeridianDelay is how far past the meridian the mount keeps tracking
// before it flips.
type MountLimits struct {
	EastLimit     float64 `json:"eastLimit" yaml:"east_limit"`
	WestLimit     float64 `json:"westLimit" yaml:"west_limit"`
	MeridianDelay float64 `json:"meridianDelay" yaml:"meridian_delay"`
}

// DefaultMountLimits allows five hours either side and flips at the meridian.
func DefaultMountLimits() MountLimits {
	return MountLimits{EastLimit: -5, WestLimit: 5, MeridianDelay: 0}
}

// FlipPrediction describes the next meridian flip from a point in time.
// TimeToFlip and SafetyMargin are minutes.
type FlipPrediction struct {
	IsRequired       bool       `json:"isRequired"`
	TimeToFlip       float64    `json:"timeToFlip"`
	FlipTime         *time.Time `json:"flipTime"`
	CurrentHourAngle float64    `json:"currentHourAngle"`
	FlipHourAngle    float64    `json:"flipHourAngle"`
	Side             string     `json:"side"`
	SafetyMargin     float64    `json:"safetyMargin"`
}

// PredictMeridianFlip places the target east or west of the meridian by
// the sign of its hour angle. An east-side target flips once it reaches
// MeridianDelay; a target beyond EastLimit needs the other pier side now.
// A west-side target runs until WestLimit.
func PredictMeridianFlip(target astro.Equatorial, loc astro.Location, now time.Time, limits MountLimits) FlipPrediction {
	ha := astro.HourAngle(target.RA, loc, now)

	p := FlipPrediction{CurrentHourAngle: ha}
	if ha < 0 {
		p.Side = SideEast
		// an east-side target flips once it crosses the meridian, not at EastLimit
		p.FlipHourAngle = limits.MeridianDelay
		p.IsRequired = ha <= limits.EastLimit
	} else {
		p.Side = SideWest
		p.FlipHourAngle = limits.WestLimit
		p.IsRequired = ha >= limits.WestLimit
	}

	hours := p.FlipHourAngle - ha
	if !p.IsRequired && hours > 0 {
		p.TimeToFlip = hours * 60
		at := now.Add(time.Duration(p.TimeToFlip * float64(time.Minute)))
		p.FlipTime = &at
	}
	p.SafetyMargin = math.Abs(hours) * 60
	return p
}

// FlipSafety is the verdict for starting an exposure now.
type FlipSafety struct {
	Safe           bool    `json:"safe"`
	Margin         float64 `json:"margin"`
	Recommendation string  `json:"recommendation"`
}

// IsFlipSafe compares the time left before a flip with an exposure length.
func IsFlipSafe(target astro.Equatorial, loc astro.Location, now time.Time, exposure time.Duration, limits MountLimits) FlipSafety {
	p := PredictMeridianFlip(target, loc, now, limits)
	expMin := exposure.Minutes()

	if p.IsRequired {
		return FlipSafety{Recommendation: "Meridian flip required immediately. Do not start new exposure."}
	}
	if p.TimeToFlip == 0 {
		return FlipSafety{Recommendation: "Target at or past flip limit. Flip immediately."}
	}

	margin := p.TimeToFlip - expMin
	switch {
	case margin < 0:
		return FlipSafety{Margin: margin, Recommendation: fmt.Sprintf(
			"Exposure (%.1f min) will exceed flip time. Flip first or reduce exposure.", expMin)}
	case margin < 5:
		return FlipSafety{Margin: margin, Recommendation: fmt.Sprintf(
			"Only %.1f min margin. Too close to flip time. Consider flipping now.", margin)}
	case margin < 15:
		return FlipSafety{Safe: true, Margin: margin, Recommendation: fmt.Sprintf(
			"%.1f min margin before flip. Monitor closely or flip after this exposure.", margin)}
	}
	return FlipSafety{Safe: true, Margin: margin, Recommendation: fmt.Sprintf(
		"%.1f min margin. Safe to proceed with exposure.", margin)}
}

// FlipWindows splits a span into the parts tracked on each pier side.
// A nil window means the target never occupied that side.
type FlipWindows struct {
	East     *[2]time.Time `json:"eastWindow"`
	West     *[2]time.Time `json:"westWindow"`
	FlipTime *time.Time    `json:"flipTime"`
}

// CalculateFlipWindows scans the span in five-minute steps. FlipTime is
// the first west-side sample that follows an east-side one.
func CalculateFlipWindows(target astro.Equatorial, loc astro.Location, start time.Time, duration time.Duration, limits MountLimits) FlipWindows {
	var fw FlipWindows
	for m := time.Duration(0); m <= duration; m += 5 * time.Minute {
		t := start.Add(m)
		ha := astro.HourAngle(target.RA, loc, t)

		if ha >= limits.EastLimit && ha <= 0 {
			if fw.East == nil {
				fw.East = &[2]time.Time{t, t}
			} else {
				fw.East[1] = t
			}
		}
		if ha > 0 && ha <= limits.WestLimit {
			if fw.West == nil {
				fw.West = &[2]time.Time{t, t}
				if fw.East != nil {
					flip := t
					fw.FlipTime = &flip
				}
			} else {
				fw.West[1] = t
			}
		}
	}
	return fw
}

// CalculateOptimalFlipTime returns the last minute in [start, end] at which
// the target has not yet passed MeridianDelay.
func CalculateOptimalFlipTime(target astro.Equatorial, loc astro.Location, start, end time.Time, limits MountLimits) (time.Time, bool) {
	span := end.Sub(start)
	for m := time.Duration(0); m <= span; m += time.Minute {
		t := start.Add(m)
		ha := astro.HourAngle(target.RA, loc, t)
		if math.Abs(ha-limits.MeridianDelay) < 0.01 {
			return t, true
		}
		if ha > limits.MeridianDelay && m > 0 {
			return t.Add(-time.Minute), true
		}
	}
	return time.Time{}, false
}
