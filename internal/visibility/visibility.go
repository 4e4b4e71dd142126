// Package visibility computes when a target is observable from a site:
// altitude through the day, airmass, the dark-sky window and meridian
// flips.
package visibility

import (
	"encoding/json"
	"math"
	"time"

	"github.com/agp-analyzer/backend/internal/astro"
)

// Fixed thresholds for the best observing window.
const (
	MinimumAltitude = 30.0
	AirmassLimit    = 2.0
)

// DefaultInterval is the sampling step used when callers pass zero.
const DefaultInterval = 15 * time.Minute

// Window is a span of time with the target's peak inside it.
type Window struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	MaxAltitude     float64   `json:"maxAltitude"`
	MaxAltitudeTime time.Time `json:"maxAltitudeTime"`
	TransitTime     time.Time `json:"transitTime"`
	IsCircumpolar   bool      `json:"isCircumpolar"`
}

// Point is one altitude sample.
type Point struct {
	Time      time.Time `json:"time"`
	Altitude  float64   `json:"altitude"`
	Azimuth   float64   `json:"azimuth"`
	HourAngle float64   `json:"hourAngle"`
	Airmass   float64   `json:"airmass"`
}

// MarshalJSON writes an infinite airmass (target below the horizon) as null.
func (p Point) MarshalJSON() ([]byte, error) {
	type point Point
	out := struct {
		point
		Airmass *float64 `json:"airmass"`
	}{point: point(p)}
	if !math.IsInf(p.Airmass, 0) && !math.IsNaN(p.Airmass) {
		out.Airmass = &p.Airmass
	}
	return json.Marshal(out)
}

// TargetVisibility is a day of samples for one target.
type TargetVisibility struct {
	Target     astro.Equatorial `json:"target"`
	Location   astro.Location   `json:"location"`
	Date       time.Time        `json:"date"`
	Points     []Point          `json:"points"`
	DarkWindow Window           `json:"darkTimeWindow"`
	BestWindow *Window          `json:"bestObservingWindow,omitempty"`
	NeverRises bool             `json:"neverRises"`
	AlwaysUp   bool             `json:"alwaysUp"`
}

// Airmass uses the Rozenberg approximation. It is +Inf at or below the
// horizon.
func Airmass(altitude float64) float64 {
	if altitude <= 0 {
		return math.Inf(1)
	}
	cz := math.Cos((90 - altitude) * math.Pi / 180)
	return 1 / (cz + 0.025*math.Exp(-11*cz))
}

// startOfDay is local midnight in date's own location.
func startOfDay(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
}

// DarkWindow returns civil dusk on date to civil dawn the following day.
func DarkWindow(loc astro.Location, date time.Time) (time.Time, time.Time) {
	return astro.Sunset(loc, date), astro.Sunrise(loc, date.Add(24*time.Hour))
}

// Calculate samples the target from local midnight across one day.
// A zero interval means DefaultInterval.
func Calculate(target astro.Equatorial, loc astro.Location, date time.Time, interval time.Duration) TargetVisibility {
	if interval <= 0 {
		interval = DefaultInterval
	}
	start := startOfDay(date)
	n := int((24 * time.Hour) / interval)

	points := make([]Point, 0, n+1)
	for i := 0; i <= n; i++ {
		t := start.Add(time.Duration(i) * interval)
		hz := astro.AltAz(target, loc, t)
		points = append(points, Point{
			Time:      t,
			Altitude:  hz.Altitude,
			Azimuth:   hz.Azimuth,
			HourAngle: astro.HourAngle(target.RA, loc, t),
			Airmass:   Airmass(hz.Altitude),
		})
	}

	maxAlt := -90.0
	maxAltTime := start
	transit := start
	minHA := math.Inf(1)
	alwaysUp := true
	for _, p := range points {
		if p.Altitude > maxAlt {
			maxAlt = p.Altitude
			maxAltTime = p.Time
		}
		if ha := math.Abs(p.HourAngle); ha < minHA {
			minHA = ha
			transit = p.Time
		}
		if p.Altitude <= 0 {
			alwaysUp = false
		}
	}
	neverRises := maxAlt < 0

	dusk, dawn := DarkWindow(loc, date)
	vis := TargetVisibility{
		Target:   target,
		Location: loc,
		Date:     date,
		Points:   points,
		DarkWindow: Window{
			Start:           dusk,
			End:             dawn,
			MaxAltitude:     maxAlt,
			MaxAltitudeTime: maxAltTime,
			TransitTime:     transit,
			IsCircumpolar:   alwaysUp,
		},
		NeverRises: neverRises,
		AlwaysUp:   alwaysUp,
	}
	if !neverRises {
		vis.BestWindow = bestWindow(points, dusk, dawn, transit, alwaysUp)
	}
	return vis
}

// bestWindow finds the longest run of consecutive samples that are high,
// thin enough and dark.
func bestWindow(points []Point, dusk, dawn, transit time.Time, circumpolar bool) *Window {
	good := func(p Point) bool {
		return p.Altitude >= MinimumAltitude &&
			p.Airmass <= AirmassLimit &&
			!p.Time.Before(dusk) && !p.Time.After(dawn)
	}

	bestStart, bestLen := -1, 0
	for i := 0; i < len(points); {
		if !good(points[i]) {
			i++
			continue
		}
		j := i
		for j < len(points) && good(points[j]) {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}
	if bestStart < 0 {
		return nil
	}

	run := points[bestStart : bestStart+bestLen]
	w := &Window{
		Start:         run[0].Time,
		End:           run[len(run)-1].Time,
		MaxAltitude:   run[0].Altitude,
		TransitTime:   transit,
		IsCircumpolar: circumpolar,
	}
	w.MaxAltitudeTime = run[0].Time
	for _, p := range run[1:] {
		if p.Altitude > w.MaxAltitude {
			w.MaxAltitude = p.Altitude
			w.MaxAltitudeTime = p.Time
		}
	}
	return w
}

// riseSetStep is the coarse scan used by FindRiseTime and FindSetTime;
// hits are refined to the minute.
const riseSetStep = 5 * time.Minute

// FindRiseTime returns the first minute on date when the target is at or
// above minAltitude.
func FindRiseTime(target astro.Equatorial, loc astro.Location, date time.Time, minAltitude float64) (time.Time, bool) {
	above := func(t time.Time) bool {
		return astro.AltAz(target, loc, t).Altitude >= minAltitude
	}
	start := startOfDay(date)
	for m := time.Duration(0); m < 24*time.Hour; m += riseSetStep {
		t := start.Add(m)
		if above(t) {
			return refine(t, above), true
		}
	}
	return time.Time{}, false
}

// FindSetTime returns the first minute on date when the target drops
// below minAltitude after having been above it.
func FindSetTime(target astro.Equatorial, loc astro.Location, date time.Time, minAltitude float64) (time.Time, bool) {
	below := func(t time.Time) bool {
		return astro.AltAz(target, loc, t).Altitude < minAltitude
	}
	start := startOfDay(date)
	wasAbove := false
	for m := time.Duration(0); m < 24*time.Hour; m += riseSetStep {
		t := start.Add(m)
		if !below(t) {
			wasAbove = true
		} else if wasAbove {
			return refine(t, below), true
		}
	}
	return time.Time{}, false
}

// refine walks the minutes around a coarse hit and returns the earliest
// one that satisfies ok.
func refine(hit time.Time, ok func(time.Time) bool) time.Time {
	for m := -5; m < 5; m++ {
		t := hit.Add(time.Duration(m) * time.Minute)
		if ok(t) {
			return t
		}
	}
	return hit
}

// FindOptimalObservingTime returns the peak of the best window, or the
// transit when it falls in darkness.
func FindOptimalObservingTime(target astro.Equatorial, loc astro.Location, date time.Time) (time.Time, bool) {
	vis := Calculate(target, loc, date, DefaultInterval)
	if vis.NeverRises {
		return time.Time{}, false
	}
	if vis.BestWindow != nil {
		return vis.BestWindow.MaxAltitudeTime, true
	}
	transit := vis.DarkWindow.TransitTime
	if !transit.Before(vis.DarkWindow.Start) && !transit.After(vis.DarkWindow.End) {
		return transit, true
	}
	return time.Time{}, false
}

// Overlap is a span when two targets are both in their best window.
type Overlap struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes float64   `json:"duration"`
}

// FindOverlappingVisibility intersects the best windows of two targets.
func FindOverlappingVisibility(a, b astro.Equatorial, loc astro.Location, date time.Time) (Overlap, bool) {
	va := Calculate(a, loc, date, DefaultInterval)
	vb := Calculate(b, loc, date, DefaultInterval)
	if va.NeverRises || vb.NeverRises || va.BestWindow == nil || vb.BestWindow == nil {
		return Overlap{}, false
	}

	start := va.BestWindow.Start
	if vb.BestWindow.Start.After(start) {
		start = vb.BestWindow.Start
	}
	end := va.BestWindow.End
	if vb.BestWindow.End.Before(end) {
		end = vb.BestWindow.End
	}
	if !start.Before(end) {
		return Overlap{}, false
	}
	return Overlap{Start: start, End: end, DurationMinutes: end.Sub(start).Minutes()}, true
}
