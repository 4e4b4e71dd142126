package astro

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/unit"
)

// CivilTwilight is the solar altitude that bounds the dark window.
const CivilTwilight = -6.0

// SynodicMonth is the mean lunation in days.
const SynodicMonth = 29.530588853

// newMoonEpoch is the Julian Day of a reference new moon (2000-01-06).
const newMoonEpoch = 2451550.1

// SunPosition returns the Sun's apparent position from the low-precision
// ecliptic longitude model, good to about a hundredth of a degree.
func SunPosition(t time.Time) Equatorial {
	n := JulianDate(t) - base.J2000
	l := math.Mod(280.460+0.9856474*n, 360)
	g := unit.AngleFromDeg(math.Mod(357.528+0.9856003*n, 360))

	lambda := unit.AngleFromDeg(l + 1.915*g.Sin() + 0.020*math.Sin(2*g.Rad()))
	eps := unit.AngleFromDeg(23.439 - 0.0000004*n)

	ra := unit.Angle(math.Atan2(eps.Cos()*lambda.Sin(), lambda.Cos())).Deg() / 15
	if ra < 0 {
		ra += 24
	}
	dec := unit.Angle(math.Asin(eps.Sin() * lambda.Sin())).Deg()
	return Equatorial{RA: ra, Dec: dec}
}

// SunAltitude returns the Sun's altitude in degrees at loc and t.
func SunAltitude(loc Location, t time.Time) float64 {
	return AltAz(SunPosition(t), loc, t).Altitude
}

// Sunset returns the first quarter hour after 12:00 UTC on date's UTC day
// when the Sun is below civil twilight. When no crossing is found before
// midnight it falls back to noon plus 18 hours.
func Sunset(loc Location, date time.Time) time.Time {
	d := date.UTC()
	noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
	for q := 0; q < 48; q++ {
		t := noon.Add(time.Duration(q) * 15 * time.Minute)
		if SunAltitude(loc, t) < CivilTwilight {
			return t
		}
	}
	return noon.Add(18 * time.Hour)
}

// Sunrise returns the first quarter hour after 00:00 UTC on date's UTC day
// when the Sun is above civil twilight. The fallback is midnight plus six
// hours.
func Sunrise(loc Location, date time.Time) time.Time {
	d := date.UTC()
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	for q := 0; q < 48; q++ {
		t := midnight.Add(time.Duration(q) * 15 * time.Minute)
		if SunAltitude(loc, t) > CivilTwilight {
			return t
		}
	}
	return midnight.Add(6 * time.Hour)
}

// MoonPhase returns the fraction of the lunation elapsed at t, [0, 1).
// 0 is new moon and 0.5 full.
func MoonPhase(t time.Time) float64 {
	return unit.PMod(JulianDate(t)-newMoonEpoch, SynodicMonth) / SynodicMonth
}

// MoonIllumination returns the illuminated fraction for a phase.
func MoonIllumination(phase float64) float64 {
	return (1 - math.Cos(phase*2*math.Pi)) / 2
}
