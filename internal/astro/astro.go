// Package astro holds the positional astronomy used by the analyzer:
// Julian dates, sidereal time, horizontal coordinates, the Sun and Moon,
// sky projections and imaging optics.
//
// Right ascension is in hours wherever a value is typed Equatorial. Helpers
// that work on degrees say so in their parameter names.
package astro

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"
)

// Location is an observing site. Longitude is positive east.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Elevation float64 `json:"elevation,omitempty" yaml:"elevation,omitempty"`
}

// Equatorial is a sky position: RA in hours, Dec in degrees.
type Equatorial struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Horizontal is an altitude/azimuth pair in degrees. Azimuth is measured
// from north through east.
type Horizontal struct {
	Altitude float64 `json:"altitude"`
	Azimuth  float64 `json:"azimuth"`
}

// JulianDate returns the Julian Day of t.
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// TimeFromJulian is the inverse of JulianDate, in UTC.
func TimeFromJulian(jd float64) time.Time {
	return julian.JDToTime(jd).UTC()
}

// JulianCenturies returns Julian centuries since J2000.0.
func JulianCenturies(jd float64) float64 {
	return (jd - base.J2000) / base.JulianCentury
}

// GreenwichSiderealTime returns mean sidereal time at Greenwich in hours.
func GreenwichSiderealTime(t time.Time) float64 {
	return sidereal.Mean(JulianDate(t)).Hour()
}

// LocalSiderealTime returns local mean sidereal time in hours, [0, 24).
func LocalSiderealTime(jd, longitude float64) float64 {
	return unit.PMod(sidereal.Mean(jd).Hour()+longitude/15, 24)
}

// LocalSiderealTimeAt is LocalSiderealTime for a wall-clock instant.
func LocalSiderealTimeAt(t time.Time, longitude float64) float64 {
	return LocalSiderealTime(JulianDate(t), longitude)
}

// NormalizeHourAngle wraps an hour angle into [-12, 12).
func NormalizeHourAngle(h float64) float64 {
	return unit.PMod(h+12, 24) - 12
}

// HourAngle returns the hour angle of an object at RA raHours, in [-12, 12).
// Negative is east of the meridian.
func HourAngle(raHours float64, loc Location, t time.Time) float64 {
	return NormalizeHourAngle(LocalSiderealTimeAt(t, loc.Longitude) - raHours)
}

// AltAz converts an equatorial position to altitude and azimuth.
func AltAz(eq Equatorial, loc Location, t time.Time) Horizontal {
	lst := LocalSiderealTimeAt(t, loc.Longitude)
	ha := unit.HourAngleFromHour(lst - eq.RA)
	dec := unit.AngleFromDeg(eq.Dec)
	lat := unit.AngleFromDeg(loc.Latitude)

	sinAlt := dec.Sin()*lat.Sin() + dec.Cos()*lat.Cos()*math.Cos(ha.Rad())
	alt := unit.Angle(math.Asin(sinAlt))

	cosA := (dec.Sin() - alt.Sin()*lat.Sin()) / (alt.Cos() * lat.Cos())
	az := unit.Angle(math.Acos(math.Max(-1, math.Min(1, cosA)))).Deg()
	// acos only covers 0-180; objects west of the meridian are past south
	if math.Sin(ha.Rad()) > 0 {
		az = 360 - az
	}
	return Horizontal{Altitude: alt.Deg(), Azimuth: az}
}

// IsValidAstronomicalDate reports whether t is a plausible log timestamp,
// between 1990 and 2100 inclusive.
func IsValidAstronomicalDate(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	y := t.UTC().Year()
	return y >= 1990 && y <= 2100
}
