package astro

import (
	"fmt"
	"math"
)

// FormatRA renders an RA given in degrees as "5h 35m 17.3s".
func FormatRA(raDeg float64) string {
	h, m, s := sexagesimal(raDeg / 15)
	return fmt.Sprintf("%dh %02dm %.1fs", h, m, s)
}

// FormatDec renders a declination as `-5° 23' 28.0"`.
func FormatDec(decDeg float64) string {
	sign := "+"
	if decDeg < 0 {
		sign = "-"
	}
	d, m, s := sexagesimal(math.Abs(decDeg))
	return fmt.Sprintf("%s%d° %02d' %.1f\"", sign, d, m, s)
}

// FormatSiderealTime renders decimal hours as "HH:MM:SS.s".
func FormatSiderealTime(hours float64) string {
	h, m, s := sexagesimal(hours)
	return fmt.Sprintf("%02d:%02d:%04.1f", h, m, s)
}

// sexagesimal splits a non-negative value into whole units, whole
// sixtieths and fractional 3600ths.
func sexagesimal(v float64) (int, int, float64) {
	whole := math.Floor(v)
	minutes := math.Floor((v - whole) * 60)
	seconds := ((v-whole)*60 - minutes) * 60
	return int(whole), int(minutes), seconds
}
