package astro

import (
	"fmt"
	"math"
	"sort"

	"github.com/soniakeys/unit"
)

// rayleighArcsecMm is the resolution in arc-seconds of a 1 mm aperture,
// used for matching pixel scale to optics.
const rayleighArcsecMm = 138.0

// Framing suggestions.
const (
	FramingEither    = "either"
	FramingPortrait  = "portrait"
	FramingLandscape = "landscape"
)

// CameraSpecs describes an imaging sensor.
type CameraSpecs struct {
	SensorWidthMm  float64 `json:"sensorWidthMm"`
	SensorHeightMm float64 `json:"sensorHeightMm"`
	PixelSizeUm    float64 `json:"pixelSizeUm"`
	ResolutionX    int     `json:"resolutionX,omitempty"`
	ResolutionY    int     `json:"resolutionY,omitempty"`
}

// TelescopeSpecs describes an imaging telescope.
type TelescopeSpecs struct {
	FocalLengthMm float64 `json:"focalLengthMm"`
	ApertureMm    float64 `json:"apertureMm"`
	FocalRatio    float64 `json:"focalRatio,omitempty"`
}

// FieldOfView is the sky area a camera covers through a telescope.
type FieldOfView struct {
	WidthArcmin     float64 `json:"widthArcmin"`
	HeightArcmin    float64 `json:"heightArcmin"`
	DiagonalArcmin  float64 `json:"diagonalArcmin"`
	WidthDegrees    float64 `json:"widthDegrees"`
	HeightDegrees   float64 `json:"heightDegrees"`
	DiagonalDegrees float64 `json:"diagonalDegrees"`
}

// MosaicPanels is a rows by cols grid of frames.
type MosaicPanels struct {
	Rows  int `json:"rows"`
	Cols  int `json:"cols"`
	Total int `json:"total"`
}

// Compatibility rates how well a target fits a camera and telescope.
// SizeRatio is the target size over the short side of the field.
type Compatibility struct {
	Compatible       bool          `json:"compatible"`
	FOV              FieldOfView   `json:"fov"`
	TargetSizeArcmin float64       `json:"targetSizeArcmin"`
	CoveragePercent  float64       `json:"coveragePercent"`
	SizeRatio        float64       `json:"sizeRatio"`
	PixelScale       float64       `json:"pixelScale"`
	Recommendation   string        `json:"recommendation"`
	Framing          string        `json:"framingSuggestion"`
	Mosaic           *MosaicPanels `json:"mosaicPanels,omitempty"`
	Warnings         []string      `json:"warnings"`
}

// FocalLengthRange is a focal length suggestion in millimetres, rounded
// to 50 mm steps.
type FocalLengthRange struct {
	Min     float64 `json:"minFocalLength"`
	Max     float64 `json:"maxFocalLength"`
	Optimal float64 `json:"optimalFocalLength"`
}

// Setup is a named camera and telescope pair.
type Setup struct {
	Name      string         `json:"name"`
	Camera    CameraSpecs    `json:"camera"`
	Telescope TelescopeSpecs `json:"telescope"`
}

// RankedSetup is a setup with its compatibility and a 0-100 score.
type RankedSetup struct {
	Name   string        `json:"name"`
	Result Compatibility `json:"result"`
	Score  float64       `json:"score"`
}

func sensorArcmin(mm, focalLengthMm float64) float64 {
	return unit.Angle(mm / focalLengthMm).Min()
}

// CalculateFieldOfView projects the sensor through the focal length.
func CalculateFieldOfView(cam CameraSpecs, scope TelescopeSpecs) FieldOfView {
	w := sensorArcmin(cam.SensorWidthMm, scope.FocalLengthMm)
	h := sensorArcmin(cam.SensorHeightMm, scope.FocalLengthMm)
	d := sensorArcmin(math.Hypot(cam.SensorWidthMm, cam.SensorHeightMm), scope.FocalLengthMm)
	return FieldOfView{
		WidthArcmin:     w,
		HeightArcmin:    h,
		DiagonalArcmin:  d,
		WidthDegrees:    w / 60,
		HeightDegrees:   h / 60,
		DiagonalDegrees: d / 60,
	}
}

// SetupPixelScale is PixelScale for an unbinned camera on a telescope.
func SetupPixelScale(cam CameraSpecs, scope TelescopeSpecs) float64 {
	return PixelScale(cam.PixelSizeUm, scope.FocalLengthMm, 1)
}

func opticalResolution(apertureMm float64) float64 {
	return rayleighArcsecMm / apertureMm
}

// CheckCompatibility frames a target of sizeArcmin with a camera and
// telescope. Targets under a tenth of the field or over three fields are
// incompatible; the latter get a mosaic layout.
func CheckCompatibility(sizeArcmin float64, cam CameraSpecs, scope TelescopeSpecs) Compatibility {
	fov := CalculateFieldOfView(cam, scope)
	scale := SetupPixelScale(cam, scope)
	r := Compatibility{
		Compatible:       true,
		FOV:              fov,
		TargetSizeArcmin: sizeArcmin,
		PixelScale:       scale,
		Framing:          FramingEither,
		Warnings:         []string{},
	}

	minFOV := math.Min(fov.WidthArcmin, fov.HeightArcmin)
	maxFOV := math.Max(fov.WidthArcmin, fov.HeightArcmin)
	switch {
	case sizeArcmin <= minFOV:
		r.CoveragePercent = sizeArcmin / minFOV * 100
	case sizeArcmin <= maxFOV:
		r.CoveragePercent = sizeArcmin / maxFOV * 100
	default:
		r.CoveragePercent = 100
	}
	r.SizeRatio = sizeArcmin / minFOV

	switch ratio := r.SizeRatio; {
	case ratio < 0.1:
		r.Compatible = false
		r.Warnings = append(r.Warnings, "Target is very small compared to FOV (under-sampled)")
		r.Recommendation = fmt.Sprintf("Target occupies only %.1f%% of frame. Consider longer focal length (%.0fmm+) or crop sensor.",
			r.CoveragePercent, math.Ceil(scope.FocalLengthMm*2))
	case ratio < 0.3:
		r.Warnings = append(r.Warnings, "Target is small in frame")
		r.Recommendation = fmt.Sprintf("Target occupies %.1f%% of frame. Good for context, but consider longer focal length for detail.",
			r.CoveragePercent)
	case ratio > 3.0:
		r.Compatible = false
		r.Warnings = append(r.Warnings, "Target is too large for single frame (over-sampled)")
		panels := int(math.Ceil(ratio))
		rows := int(math.Ceil(math.Sqrt(float64(panels))))
		cols := (panels + rows - 1) / rows
		r.Mosaic = &MosaicPanels{Rows: rows, Cols: cols, Total: rows * cols}
		r.Recommendation = fmt.Sprintf("Target is %.1fx larger than FOV. Requires %d-panel mosaic (%dx%d) or shorter focal length (%.0fmm).",
			ratio, r.Mosaic.Total, rows, cols, math.Floor(scope.FocalLengthMm/2))
	case ratio > 1.5:
		r.Warnings = append(r.Warnings, "Target extends beyond single frame")
		r.Recommendation = fmt.Sprintf("Target is %.1fx larger than FOV. Consider mosaic or shorter focal length.", ratio)
	default:
		r.Recommendation = fmt.Sprintf("Excellent match! Target occupies %.1f%% of frame with good framing.", r.CoveragePercent)
	}

	switch {
	case sizeArcmin > fov.WidthArcmin && sizeArcmin <= fov.HeightArcmin:
		r.Framing = FramingPortrait
		r.Warnings = append(r.Warnings, "Portrait orientation recommended for better framing")
	case sizeArcmin > fov.HeightArcmin && sizeArcmin <= fov.WidthArcmin:
		r.Framing = FramingLandscape
		r.Warnings = append(r.Warnings, "Landscape orientation recommended for better framing")
	}

	switch {
	case scale < 0.5:
		r.Warnings = append(r.Warnings, fmt.Sprintf(`Very fine pixel scale (%.2f"/px) - excellent for detail but demands good seeing and guiding`, scale))
	case scale > 3.0:
		r.Warnings = append(r.Warnings, fmt.Sprintf(`Coarse pixel scale (%.2f"/px) - may under-sample finer details`, scale))
	}

	res := opticalResolution(scope.ApertureMm)
	switch {
	case scale < res/2:
		r.Warnings = append(r.Warnings, fmt.Sprintf(`Over-sampled: pixel scale (%.2f"/px) is finer than %.2f"/px (half telescope resolution)`, scale, res/2))
	case scale > res*2:
		r.Warnings = append(r.Warnings, fmt.Sprintf(`Under-sampled: pixel scale (%.2f"/px) is coarser than %.2f"/px (2x telescope resolution)`, scale, res*2))
	}
	return r
}

// SuggestFocalLength returns the focal lengths at which a target fills
// coveragePercent of the sensor's short side (optimal), half of it (min)
// and twice it (max). A non-positive coverage means 70%.
func SuggestFocalLength(sizeArcmin float64, cam CameraSpecs, coveragePercent float64) FocalLengthRange {
	if coveragePercent <= 0 {
		coveragePercent = 70
	}
	short := math.Min(cam.SensorWidthMm, cam.SensorHeightMm)
	focal := func(fovArcmin float64) float64 {
		return short / unit.AngleFromMin(fovArcmin).Rad()
	}
	return FocalLengthRange{
		Min:     math.Floor(focal(sizeArcmin*2)/50) * 50,
		Max:     math.Ceil(focal(sizeArcmin*0.5)/50) * 50,
		Optimal: math.Round(focal(sizeArcmin/(coveragePercent/100))/50) * 50,
	}
}

// CompareSetups scores each setup for a target and returns them best
// first. Framing earns up to 50, pixel scale against the optics up to 30
// and a clean warning list up to 20.
func CompareSetups(sizeArcmin float64, setups []Setup) []RankedSetup {
	ranked := make([]RankedSetup, 0, len(setups))
	for _, s := range setups {
		r := CheckCompatibility(sizeArcmin, s.Camera, s.Telescope)

		score := 0.0
		switch {
		case r.SizeRatio >= 0.3 && r.SizeRatio <= 1.5:
			score += 50
		case r.SizeRatio >= 0.1 && r.SizeRatio <= 3.0:
			score += 25
		}

		res := opticalResolution(s.Telescope.ApertureMm)
		switch {
		case r.PixelScale >= res/2 && r.PixelScale <= res*2:
			score += 30
		case r.PixelScale >= res/3 && r.PixelScale <= res*3:
			score += 15
		}

		switch n := len(r.Warnings); {
		case n == 0:
			score += 20
		case n <= 2:
			score += 10
		}
		ranked = append(ranked, RankedSetup{Name: s.Name, Result: r, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}
