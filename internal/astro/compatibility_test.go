package astro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	apsc      = CameraSpecs{SensorWidthMm: 23.5, SensorHeightMm: 15.7, PixelSizeUm: 3.76}
	refractor = TelescopeSpecs{FocalLengthMm: 400, ApertureMm: 80, FocalRatio: 5}
	sct       = TelescopeSpecs{FocalLengthMm: 2000, ApertureMm: 200, FocalRatio: 10}
)

func TestCalculateFieldOfView(t *testing.T) {
	fov := CalculateFieldOfView(apsc, refractor)
	assert.InDelta(t, 201.97, fov.WidthArcmin, 0.01)
	assert.InDelta(t, 134.93, fov.HeightArcmin, 0.01)
	assert.InDelta(t, 242.89, fov.DiagonalArcmin, 0.01)
	assert.InDelta(t, fov.WidthArcmin/60, fov.WidthDegrees, 1e-12)
	assert.InDelta(t, fov.DiagonalArcmin/60, fov.DiagonalDegrees, 1e-12)
	assert.InDelta(t, 1.939, SetupPixelScale(apsc, refractor), 0.001)
}

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name           string
		size           float64
		wantCompatible bool
		wantFraming    string
		wantRecommend  string
		wantMosaic     *MosaicPanels
		wantWarnings   int
	}{
		{"fits with landscape framing", 178, true, FramingLandscape, "Excellent match! Target occupies 88.1% of frame", nil, 1},
		{"tiny target", 1.4, false, FramingEither, "Consider longer focal length (800mm+)", nil, 1},
		{"small target", 30, true, FramingEither, "Good for context", nil, 1},
		{"slightly too large", 270, true, FramingEither, "Consider mosaic or shorter focal length", nil, 1},
		{"needs a mosaic", 600, false, FramingEither, "Requires 6-panel mosaic (3x2) or shorter focal length (200mm)", &MosaicPanels{Rows: 3, Cols: 2, Total: 6}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCompatibility(tt.size, apsc, refractor)
			assert.Equal(t, tt.wantCompatible, got.Compatible)
			assert.Equal(t, tt.wantFraming, got.Framing)
			assert.Contains(t, got.Recommendation, tt.wantRecommend)
			assert.Equal(t, tt.wantMosaic, got.Mosaic)
			assert.Len(t, got.Warnings, tt.wantWarnings, "%v", got.Warnings)
			assert.LessOrEqual(t, got.CoveragePercent, 100.0)
		})
	}
}

func TestCheckCompatibilityCoverage(t *testing.T) {
	small := CheckCompatibility(1.4, apsc, refractor)
	assert.InDelta(t, 1.4/134.93*100, small.CoveragePercent, 0.01)
	assert.InDelta(t, 1.4/134.93, small.SizeRatio, 1e-4)

	huge := CheckCompatibility(600, apsc, refractor)
	assert.Equal(t, 100.0, huge.CoveragePercent)
}

func TestCheckCompatibilityPixelScaleWarnings(t *testing.T) {
	got := CheckCompatibility(178, apsc, sct)
	assert.Contains(t, got.Warnings, `Very fine pixel scale (0.39"/px) - excellent for detail but demands good seeing and guiding`)

	coarse := CheckCompatibility(178, CameraSpecs{SensorWidthMm: 23.5, SensorHeightMm: 15.7, PixelSizeUm: 9}, TelescopeSpecs{FocalLengthMm: 250, ApertureMm: 50})
	assert.Contains(t, coarse.Warnings, `Coarse pixel scale (7.43"/px) - may under-sample finer details`)
	assert.Contains(t, coarse.Warnings, `Under-sampled: pixel scale (7.43"/px) is coarser than 5.52"/px (2x telescope resolution)`)
}

func TestSuggestFocalLength(t *testing.T) {
	got := SuggestFocalLength(60, apsc, 70)
	assert.Equal(t, FocalLengthRange{Min: 400, Max: 1800, Optimal: 650}, got)
	assert.Equal(t, got, SuggestFocalLength(60, apsc, 0))
}

func TestCompareSetups(t *testing.T) {
	ranked := CompareSetups(178, []Setup{
		{Name: "sct", Camera: apsc, Telescope: sct},
		{Name: "refractor", Camera: apsc, Telescope: refractor},
	})
	require.Len(t, ranked, 2)
	assert.Equal(t, "refractor", ranked[0].Name)
	assert.Equal(t, 90.0, ranked[0].Score)
	assert.Equal(t, "sct", ranked[1].Name)
	assert.Equal(t, 40.0, ranked[1].Score)
	assert.NotNil(t, ranked[1].Result.Mosaic)

	assert.Empty(t, CompareSetups(178, nil))
}
