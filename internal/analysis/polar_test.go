package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/quality"
)

// meridianSession guides for two hours through the meridian, one frame
// every ten seconds. Dec drifts at eastRate before the crossing and at
// westRate after it, in pixels per second.
func meridianSession(eastRate, westRate float64) *models.GuidingSession {
	s := &models.GuidingSession{
		StartTime:  epoch,
		EndTime:    epoch.Add(2 * time.Hour),
		PixelScale: 1.0,
		HourAngle:  -1,
	}
	for sec := 0.0; sec < 7200; sec += 10 {
		dy := eastRate * sec
		if sec > 3595 {
			dy = westRate * sec
		}
		s.Frames = append(s.Frames, frameAt(sec*1000, 0, dy))
	}
	return s
}

func TestAnalyzePolarAlignmentInsufficientData(t *testing.T) {
	s := meridianSession(0.01, -0.01)
	s.Frames = s.Frames[:30]

	pa := AnalyzePolarAlignment(s, 45)
	assert.Equal(t, quality.Poor, pa.Quality)
	assert.Equal(t, 0.0, pa.Error.Confidence)
	assert.Equal(t, North, pa.Error.Hemisphere)
	assert.Equal(t, 30, pa.EastFrames)
	assert.Equal(t, 0, pa.WestFrames)
	assert.Equal(t, "Insufficient data for analysis", pa.Corrections.Altitude.Description)
	assert.Contains(t, pa.Recommendation, "east and west of meridian")
}

func TestAnalyzePolarAlignmentNorth(t *testing.T) {
	pa := AnalyzePolarAlignment(meridianSession(0.01, -0.01), 45)

	assert.Equal(t, 360, pa.EastFrames)
	assert.Equal(t, 360, pa.WestFrames)
	assert.InDelta(t, 0.6, pa.EastDriftRate, 1e-9)
	assert.InDelta(t, -0.6, pa.WestDriftRate, 1e-9)
	assert.InDelta(t, 0.6, pa.AltitudeDrift, 1e-9)
	assert.InDelta(t, 0.0, pa.AzimuthDrift, 1e-9)

	// errors are the (E-W)/2 and (E+W)/2 components themselves
	assert.InDelta(t, 0.6, pa.Error.AltitudeError, 1e-9)
	assert.InDelta(t, 0.0, pa.Error.AzimuthError, 1e-9)
	assert.InDelta(t, 0.6, pa.Error.TotalError, 1e-9)
	assert.Equal(t, 1.0, pa.Error.Confidence)

	wantAxis := 0.6 / siderealArcsecPerMinute * 180 / math.Pi * 60
	assert.InDelta(t, wantAxis, pa.Error.AltitudeAxisError, 1e-9)
	assert.InDelta(t, 0.0, pa.Error.AzimuthAxisError, 1e-9)

	assert.Equal(t, "down", pa.Corrections.Altitude.Direction)
	assert.Equal(t, "left", pa.Corrections.Azimuth.Direction)
	assert.InDelta(t, 0.6, pa.Corrections.Altitude.Magnitude, 1e-9)
	assert.Equal(t, "Adjust altitude 0.6' down", pa.Corrections.Altitude.Description)
	assert.Equal(t, quality.Excellent, pa.Quality)
	assert.InDelta(t, AlignmentQuality(0.6), AlignmentQuality(pa.Error.TotalError), 1e-9)
}

func TestAnalyzePolarAlignmentBands(t *testing.T) {
	tests := []struct {
		name      string
		east      float64 // pixels per second
		west      float64
		wantTotal float64
		want      quality.Rating
	}{
		{"excellent", 0.01, -0.01, 0.6, quality.Excellent},
		{"good", 0.04, -0.04, 2.4, quality.Good},
		{"fair", 0.07, -0.07, 4.2, quality.Fair},
		{"poor", 0.1, -0.1, 6.0, quality.Poor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa := AnalyzePolarAlignment(meridianSession(tt.east, tt.west), 45)
			assert.InDelta(t, tt.wantTotal, pa.Error.TotalError, 1e-9)
			assert.Equal(t, tt.want, pa.Quality)
		})
	}
}

func TestAnalyzePolarAlignmentSouthFlipsCorrections(t *testing.T) {
	pa := AnalyzePolarAlignment(meridianSession(0.01, -0.01), -30)
	require.Equal(t, South, pa.Error.Hemisphere)
	assert.Equal(t, "up", pa.Corrections.Altitude.Direction)
	assert.Equal(t, "right", pa.Corrections.Azimuth.Direction)
}

func TestAnalyzePolarAlignmentAzimuth(t *testing.T) {
	pa := AnalyzePolarAlignment(meridianSession(-0.005, -0.005), 45)
	assert.InDelta(t, 0.0, pa.AltitudeDrift, 1e-9)
	assert.InDelta(t, -0.3, pa.AzimuthDrift, 1e-9)
	assert.Equal(t, "left", pa.Corrections.Azimuth.Direction)
	assert.InDelta(t, 0.3, pa.Error.AzimuthError, 1e-9)
	assert.Equal(t, quality.Excellent, pa.Quality)
}

func TestAlignmentRating(t *testing.T) {
	tests := []struct {
		total float64
		want  quality.Rating
	}{
		{0.5, quality.Excellent},
		{2, quality.Good},
		{4, quality.Fair},
		{10, quality.Poor},
	}
	for _, tt := range tests {
		got, advice := alignmentRating(tt.total)
		assert.Equal(t, tt.want, got)
		assert.NotEmpty(t, advice)
	}
}

func TestExtractDriftPatterns(t *testing.T) {
	s := meridianSession(0.01, -0.01)
	patterns := ExtractDriftPatterns(s)
	require.Len(t, patterns, len(s.Frames)-1)
	assert.InDelta(t, 0.6, patterns[0].DecDrift, 1e-9)
	assert.Less(t, patterns[0].HourAngle, 0.0)
	assert.Greater(t, patterns[len(patterns)-1].HourAngle, 0.0)
}

func TestDriftToArcmin(t *testing.T) {
	assert.InDelta(t, 180*60/math.Pi, DriftToArcmin(siderealArcsecPerMinute), 1e-9)
	assert.Equal(t, 0.0, DriftToArcmin(0))
}

func TestAlignmentQuality(t *testing.T) {
	assert.Equal(t, 100.0, AlignmentQuality(0))
	assert.InDelta(t, 100/math.E, AlignmentQuality(4), 1e-9)
	assert.Equal(t, 100.0, AlignmentQuality(-1))
	assert.Less(t, AlignmentQuality(60), 1.0)
}
