package quality

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/models"
)

var samplePoints = []DataPoint{
	{X: 0.1, Y: 0.2},
	{X: -0.3, Y: 0.1},
	{X: 0.2, Y: -0.4},
	{X: -0.1, Y: 0.3},
	{X: 0.4, Y: -0.2},
}

func TestCalculateRMSStats(t *testing.T) {
	rms := CalculateRMSStats(samplePoints)
	assert.InDelta(t, math.Sqrt(0.31/5), rms.RA, 1e-9)
	assert.InDelta(t, math.Sqrt(0.34/5), rms.Dec, 1e-9)
	assert.InDelta(t, 0.2490, rms.RA, 1e-4)
	assert.InDelta(t, 0.2608, rms.Dec, 1e-4)
	assert.InDelta(t, math.Sqrt(0.65/5), rms.Total, 1e-9)

	assert.Equal(t, RMSStats{}, CalculateRMSStats(nil))
}

func TestPercentageAndMaxError(t *testing.T) {
	assert.InDelta(t, 20.0, PercentageWithinThreshold(samplePoints, 0.3), 1e-9)
	assert.InDelta(t, 100.0, PercentageWithinThreshold(samplePoints, 1), 1e-9)
	assert.Equal(t, 0.0, PercentageWithinThreshold(nil, 1))

	assert.InDelta(t, math.Sqrt(0.2), MaxError(samplePoints), 1e-9)
	assert.Equal(t, 0.0, MaxError(nil))
}

func TestSessionDuration(t *testing.T) {
	start := time.Date(2022, 3, 18, 21, 0, 0, 0, time.UTC)
	stamps := []time.Time{start, start.Add(time.Minute), start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, SessionDuration(stamps))
	assert.Equal(t, time.Duration(0), SessionDuration(stamps[:1]))
}

func TestPercentiles(t *testing.T) {
	got := Percentiles([]float64{5, 1, 4, 2, 3}, []float64{0, 25, 50, 100})
	assert.Equal(t, 1.0, got[0])
	assert.Equal(t, 2.0, got[25])
	assert.Equal(t, 3.0, got[50])
	assert.Equal(t, 5.0, got[100])

	even := Percentiles([]float64{1, 2, 3, 4}, []float64{50})
	assert.InDelta(t, 2.5, even[50], 1e-9)

	empty := Percentiles(nil, []float64{50, 90})
	assert.Equal(t, map[float64]float64{50: 0, 90: 0}, empty)
}

func TestPercentilesOutOfRange(t *testing.T) {
	var got map[float64]float64
	require.NotPanics(t, func() {
		got = Percentiles([]float64{5, 1, 4, 2, 3}, []float64{-10, 150})
	})
	assert.Equal(t, 1.0, got[-10])
	assert.Equal(t, 5.0, got[150])
}

func TestSampleData(t *testing.T) {
	data := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, []int{0, 3, 6}, SampleData(data, 3))
	assert.Equal(t, data, SampleData(data, 20))
	assert.Len(t, SampleData(data, 5), 5)
}

func TestCalculateThresholds(t *testing.T) {
	th := CalculateThresholds(2.0)
	assert.Equal(t, 1.0, th.Perfect)
	assert.Equal(t, 2.0, th.Good)
	assert.Equal(t, 6.0, th.LargeError)
	assert.Equal(t, 4.0, th.JumpDetection)
}

func TestAnalyzeFrame(t *testing.T) {
	th := CalculateThresholds(1.0)

	q := AnalyzeFrame(0.3, 0.4, 5, th, nil)
	assert.InDelta(t, 0.5, q.TotalError, 1e-12)
	assert.True(t, q.IsPerfect)
	assert.True(t, q.IsGood)
	assert.False(t, q.HasLargeError)
	assert.True(t, q.HasLowSNR)
	assert.False(t, q.HasJump)

	assert.False(t, AnalyzeFrame(0.3, 0.4, 20, th, &DataPoint{X: -1.5, Y: 0.4}).HasJump)
	assert.True(t, AnalyzeFrame(0.3, 0.4, 20, th, &DataPoint{X: -2, Y: 0.4}).HasJump)

	big := AnalyzeFrame(3, 1, 20, th, nil)
	assert.True(t, big.HasLargeError)
	assert.False(t, big.IsGood)
	assert.False(t, big.HasLowSNR)
}

func TestAssess(t *testing.T) {
	tests := []struct {
		rms, perfect, good float64
		want               Rating
	}{
		{0.4, 85, 90, Excellent},
		{0.4, 85, 40, Excellent},
		{0.4, 50, 90, Good},
		{0.9, 10, 75, Good},
		{1.5, 0, 60, Fair},
		{1.5, 0, 40, Poor},
		{2.5, 100, 100, Poor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Assess(tt.rms, tt.perfect, tt.good), "rms=%v perfect=%v good=%v", tt.rms, tt.perfect, tt.good)
	}
}

func TestImprovementPotential(t *testing.T) {
	th := CalculateThresholds(1.0)
	data := []DataPoint{{X: 0.1}, {Y: 0.2}, {X: 5}}

	imp := ImprovementPotential(data, th)
	assert.Equal(t, 1, imp.FramesRemoved)
	assert.InDelta(t, math.Sqrt(25.05/3), imp.OriginalRMS, 1e-9)
	assert.InDelta(t, math.Sqrt(0.05/2), imp.ImprovedRMS, 1e-9)
	assert.InDelta(t, (imp.OriginalRMS-imp.ImprovedRMS)/imp.OriginalRMS*100, imp.ImprovementPercent, 1e-9)

	allBad := ImprovementPotential([]DataPoint{{X: 5}}, th)
	assert.Equal(t, 0, allBad.FramesRemoved)
	assert.Equal(t, allBad.OriginalRMS, allBad.ImprovedRMS)

	assert.Equal(t, Improvement{}, ImprovementPotential(nil, th))
}

func TestAnalyzeSession(t *testing.T) {
	start := time.Date(2022, 3, 18, 21, 0, 0, 0, time.UTC)
	s := &models.GuidingSession{
		StartTime:  start,
		EndTime:    start.Add(6 * time.Second),
		PixelScale: 2.0,
		Frames: []models.GuidingFrame{
			{Frame: 1, Mount: "Mount", RARawDistance: 0.1, DECRawDistance: 0.2},
			{Frame: 2, Mount: models.MountStatusDrop},
			{Frame: 3, Mount: "Mount", RARawDistance: -0.2, DECRawDistance: 0.1},
			{Frame: 4, Mount: "Mount", RARawDistance: 0.2, DECRawDistance: -0.1},
		},
	}

	points := FramePoints(s)
	require.Len(t, points, 3)
	assert.Equal(t, DataPoint{X: 0.2, Y: 0.4}, points[0])

	report := AnalyzeSession(s)
	assert.Equal(t, 3, report.FrameCount)
	assert.Equal(t, 6.0, report.Duration)
	assert.Equal(t, CalculateRMSStats(points), report.RMS)
	assert.Equal(t, CalculateThresholds(2.0), report.Thresholds)
	assert.InDelta(t, 100.0, report.Percentages.Perfect, 1e-9)
	assert.Equal(t, Excellent, report.Rating)
	assert.LessOrEqual(t, report.Percentiles.P50, report.Percentiles.P99)
}
