package visibility

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/astro"
)

var site = astro.Location{Latitude: 45, Longitude: 0}

// targetAt returns a target at dec whose hour angle at t is ha.
func targetAt(ha, dec float64, t time.Time) astro.Equatorial {
	lst := astro.LocalSiderealTimeAt(t, site.Longitude)
	return astro.Equatorial{RA: unit.PMod(lst-ha, 24), Dec: dec}
}

func TestAirmass(t *testing.T) {
	assert.True(t, math.IsInf(Airmass(0), 1))
	assert.True(t, math.IsInf(Airmass(-10), 1))
	assert.InDelta(t, 1.0, Airmass(90), 1e-3)
	assert.InDelta(t, 2.0, Airmass(30), 0.01)
	assert.Greater(t, Airmass(10), Airmass(20))
}

func TestPointJSONInfiniteAirmass(t *testing.T) {
	p := Point{Time: time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC), Altitude: -4, Airmass: math.Inf(1)}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Nil(t, out["airmass"])
	assert.Equal(t, -4.0, out["altitude"])

	p.Airmass = 1.5
	data, err = json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 1.5, out["airmass"])
}

func TestCalculateTransitAtMidnight(t *testing.T) {
	date := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	target := targetAt(0, 40, date)

	vis := Calculate(target, site, date, 0)
	require.Len(t, vis.Points, 97)
	assert.Equal(t, date, vis.Points[0].Time)
	assert.Equal(t, date.Add(24*time.Hour), vis.Points[96].Time)

	assert.False(t, vis.NeverRises)
	assert.False(t, vis.AlwaysUp)
	assert.Equal(t, date, vis.DarkWindow.TransitTime)
	assert.InDelta(t, 85.0, vis.DarkWindow.MaxAltitude, 0.5)

	dusk, dawn := DarkWindow(site, date)
	assert.Equal(t, dusk, vis.DarkWindow.Start)
	assert.Equal(t, dawn, vis.DarkWindow.End)

	require.NotNil(t, vis.BestWindow)
	bw := vis.BestWindow
	assert.False(t, bw.Start.Before(dusk))
	assert.False(t, bw.End.After(dawn))
	assert.GreaterOrEqual(t, bw.MaxAltitude, 80.0)
	for _, p := range vis.Points {
		if p.Time.Before(bw.Start) || p.Time.After(bw.End) {
			continue
		}
		assert.GreaterOrEqual(t, p.Altitude, MinimumAltitude)
		assert.LessOrEqual(t, p.Airmass, AirmassLimit)
	}
}

func TestCalculateCircumpolarAndNeverRises(t *testing.T) {
	date := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)

	polar := Calculate(astro.Equatorial{RA: 2.5, Dec: 89}, site, date, 30*time.Minute)
	assert.Len(t, polar.Points, 49)
	assert.True(t, polar.AlwaysUp)
	assert.True(t, polar.DarkWindow.IsCircumpolar)
	require.NotNil(t, polar.BestWindow)
	assert.True(t, polar.BestWindow.IsCircumpolar)

	south := Calculate(astro.Equatorial{RA: 2.5, Dec: -80}, site, date, 0)
	assert.True(t, south.NeverRises)
	assert.False(t, south.AlwaysUp)
	assert.Nil(t, south.BestWindow)
}

func TestFindRiseAndSetTime(t *testing.T) {
	date := time.Date(2022, 3, 20, 0, 0, 0, 0, time.UTC)
	// On the celestial equator, anti-transit at midnight: rises near 06:00,
	// sets near 18:00
	target := targetAt(-12, 0, date)

	rise, ok := FindRiseTime(target, site, date, 0)
	require.True(t, ok)
	assert.InDelta(t, 6.0, rise.Sub(date).Hours(), 10.0/60)
	assert.GreaterOrEqual(t, astro.AltAz(target, site, rise).Altitude, 0.0)
	assert.Less(t, astro.AltAz(target, site, rise.Add(-time.Minute)).Altitude, 0.0)

	set, ok := FindSetTime(target, site, date, 0)
	require.True(t, ok)
	assert.InDelta(t, 18.0, set.Sub(date).Hours(), 10.0/60)
	assert.Less(t, astro.AltAz(target, site, set).Altitude, 0.0)

	_, ok = FindRiseTime(astro.Equatorial{RA: 0, Dec: -80}, site, date, 0)
	assert.False(t, ok)
	_, ok = FindSetTime(astro.Equatorial{RA: 0, Dec: 89}, site, date, 0)
	assert.False(t, ok)
}

func TestFindOptimalObservingTime(t *testing.T) {
	date := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	target := targetAt(0, 40, date)

	best, ok := FindOptimalObservingTime(target, site, date)
	require.True(t, ok)
	dusk, dawn := DarkWindow(site, date)
	assert.False(t, best.Before(dusk))
	assert.False(t, best.After(dawn))

	_, ok = FindOptimalObservingTime(astro.Equatorial{RA: 0, Dec: -80}, site, date)
	assert.False(t, ok)
}

func TestFindOverlappingVisibility(t *testing.T) {
	date := time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC)
	target := targetAt(0, 40, date)

	vis := Calculate(target, site, date, DefaultInterval)
	require.NotNil(t, vis.BestWindow)

	o, ok := FindOverlappingVisibility(target, target, site, date)
	require.True(t, ok)
	assert.Equal(t, vis.BestWindow.Start, o.Start)
	assert.Equal(t, vis.BestWindow.End, o.End)
	assert.InDelta(t, o.End.Sub(o.Start).Minutes(), o.DurationMinutes, 1e-9)

	_, ok = FindOverlappingVisibility(target, astro.Equatorial{RA: 0, Dec: -80}, site, date)
	assert.False(t, ok)
}
