package astro

// ArcsecPerRadian converts radians to arc-seconds.
const ArcsecPerRadian = 206265.0

const (
	mmPerInch        = 25.4
	dawesCoefficient = 4.56
	nyquistFactor    = 2.0
)

// PixelScale returns arc-seconds per pixel for a camera pixel size in
// microns behind a focal length in millimetres. Binning below 1 counts as 1.
func PixelScale(pixelSizeMicrons, focalLengthMm float64, binning int) float64 {
	if binning < 1 {
		binning = 1
	}
	return pixelSizeMicrons * float64(binning) * ArcsecPerRadian / focalLengthMm / 1000
}

// TheoreticalResolution is the Dawes limit in arc-seconds for an aperture.
func TheoreticalResolution(apertureMm float64) float64 {
	return dawesCoefficient / (apertureMm / mmPerInch)
}

// SamplingRatio compares the pixel scale with the Nyquist scale, half
// the resolution. Values near 1 are optimal; above 1 is undersampled.
func SamplingRatio(pixelScale, resolution float64) float64 {
	return pixelScale / (resolution / nyquistFactor)
}

// FieldOfViewArcmin returns the field covered by n pixels.
func FieldOfViewArcmin(pixels int, pixelScale float64) float64 {
	return float64(pixels) * pixelScale / 60
}

func PixelsToArcsec(px, pixelScale float64) float64 {
	return px * pixelScale
}

func ArcsecToPixels(arcsec, pixelScale float64) float64 {
	return arcsec / pixelScale
}

// GuidingTarget is the RMS worth aiming for: a third of the pixel scale.
func GuidingTarget(pixelScale float64) float64 {
	return pixelScale / 3
}
