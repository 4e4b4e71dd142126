package astro

import (
	"math"

	"github.com/soniakeys/unit"
)

// Vector3 is a Cartesian vector with y toward the celestial pole.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point2D is a projected chart position in pixels, y down.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SkyPoint is a position with both coordinates in degrees.
type SkyPoint struct {
	RADeg  float64 `json:"ra"`
	DecDeg float64 `json:"dec"`
}

// MountAngles are the axis rotations of a German equatorial mount, radians.
type MountAngles struct {
	RAAxisRotation  float64 `json:"raAxisRotation"`
	DecAxisRotation float64 `json:"decAxisRotation"`
}

// Pier sides as written in guide logs.
const (
	PierSideEast = "East"
	PierSideWest = "West"
)

// EquatorialToCartesian maps RA/Dec in degrees onto a sphere of radius r.
func EquatorialToCartesian(raDeg, decDeg, r float64) Vector3 {
	ra := unit.AngleFromDeg(raDeg)
	dec := unit.AngleFromDeg(decDeg)
	return Vector3{
		X: r * dec.Cos() * ra.Cos(),
		Y: r * dec.Sin(),
		Z: r * dec.Cos() * ra.Sin(),
	}
}

// CartesianToEquatorial is the inverse of EquatorialToCartesian. RA is
// returned in [0, 360). The zero vector maps to (0, 0).
func CartesianToEquatorial(v Vector3) SkyPoint {
	r := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if r == 0 {
		return SkyPoint{}
	}
	dec := unit.Angle(math.Asin(v.Y / r)).Deg()
	ra := unit.PMod(unit.Angle(math.Atan2(v.Z, v.X)).Deg(), 360)
	return SkyPoint{RADeg: ra, DecDeg: dec}
}

// MountOrientation returns the axis rotations for an hour angle (hours)
// and declination (degrees). On the west pier side the RA axis is turned
// a half revolution and the Dec axis mirrored.
func MountOrientation(hourAngle, decDeg float64, pierSide string) MountAngles {
	m := MountAngles{
		RAAxisRotation:  unit.HourAngleFromHour(hourAngle).Rad(),
		DecAxisRotation: unit.AngleFromDeg(decDeg).Rad(),
	}
	if pierSide == PierSideWest {
		m.RAAxisRotation += math.Pi
		m.DecAxisRotation = -m.DecAxisRotation
	}
	return m
}

// StereographicProject projects a position onto a chart centred on
// (centerRADeg, centerDecDeg). scale is pixels per radian.
func StereographicProject(raDeg, decDeg, centerRADeg, centerDecDeg, scale float64) Point2D {
	dec := unit.AngleFromDeg(decDeg)
	c := unit.AngleFromDeg(centerDecDeg)
	dRA := unit.AngleFromDeg(raDeg - centerRADeg)

	k := 2 / (1 + c.Sin()*dec.Sin() + c.Cos()*dec.Cos()*dRA.Cos())
	x := k * dec.Cos() * dRA.Sin()
	y := k * (c.Cos()*dec.Sin() - c.Sin()*dec.Cos()*dRA.Cos())
	return Point2D{X: x * scale, Y: -y * scale}
}

// RAToHourAngle returns LST minus RA, in hours within [-12, 12].
// raDeg is in degrees and lst in hours.
func RAToHourAngle(raDeg, lst float64) float64 {
	ha := lst - raDeg/15
	for ha > 12 {
		ha -= 24
	}
	for ha < -12 {
		ha += 24
	}
	return ha
}

// HourAngleToRA returns the RA in degrees, [0, 360), of an object at
// hourAngle when local sidereal time is lst.
func HourAngleToRA(hourAngle, lst float64) float64 {
	ra := (lst - hourAngle) * 15
	for ra < 0 {
		ra += 360
	}
	for ra >= 360 {
		ra -= 360
	}
	return ra
}

// AngularSeparation returns the great-circle distance in degrees between
// two positions given in degrees, by the haversine formula.
func AngularSeparation(ra1Deg, dec1Deg, ra2Deg, dec2Deg float64) float64 {
	d1 := unit.AngleFromDeg(dec1Deg)
	d2 := unit.AngleFromDeg(dec2Deg)
	halfDDec := unit.AngleFromDeg((dec2Deg - dec1Deg) / 2).Sin()
	halfDRA := unit.AngleFromDeg((ra2Deg - ra1Deg) / 2).Sin()

	a := halfDDec*halfDDec + d1.Cos()*d2.Cos()*halfDRA*halfDRA
	return unit.Angle(2 * math.Asin(math.Sqrt(a))).Deg()
}

// FOVCorners returns the four corners of a rectangular field, clockwise
// from top-left. Width and height are in arc-minutes. The RA half-width is
// widened by 1/cos(dec), which is adequate away from the poles.
func FOVCorners(centerRADeg, centerDecDeg, widthArcmin, heightArcmin float64) [4]SkyPoint {
	halfW := unit.AngleFromMin(widthArcmin).Deg() / 2
	halfH := unit.AngleFromMin(heightArcmin).Deg() / 2
	dRA := halfW / unit.AngleFromDeg(centerDecDeg).Cos()

	return [4]SkyPoint{
		{RADeg: centerRADeg - dRA, DecDeg: centerDecDeg + halfH},
		{RADeg: centerRADeg + dRA, DecDeg: centerDecDeg + halfH},
		{RADeg: centerRADeg + dRA, DecDeg: centerDecDeg - halfH},
		{RADeg: centerRADeg - dRA, DecDeg: centerDecDeg - halfH},
	}
}
