package analysis

import (
	"math"

	"github.com/agp-analyzer/backend/internal/models"
)

// MinPeriodicErrorFrames is the fewest frames AnalyzePeriodicError accepts.
const MinPeriodicErrorFrames = 32

// Worm periods outside these bounds, in seconds, are clamped.
const (
	MinWormPeriod = 60.0
	MaxWormPeriod = 1200.0
)

// PeriodicError is the dominant cyclic component of the RA error.
// Frequency is Hz, Amplitude arc-seconds and Phase radians.
type PeriodicError struct {
	Frequency  float64 `json:"frequency"`
	Amplitude  float64 `json:"amplitude"`
	Phase      float64 `json:"phase"`
	Confidence float64 `json:"confidence"`
}

// AnalyzePeriodicError resamples the RA error to one-second spacing and
// finds the strongest non-DC frequency with a discrete Fourier transform.
func AnalyzePeriodicError(frames []models.GuidingFrame, pixelScale float64) PeriodicError {
	if len(frames) < MinPeriodicErrorFrames {
		return PeriodicError{}
	}

	values := make([]float64, len(frames))
	times := make([]float64, len(frames))
	for i, f := range frames {
		values[i] = f.DX * pixelScale
		times[i] = f.TimeInMilliseconds
	}
	durationSec := (times[len(times)-1] - times[0]) / 1000
	if durationSec <= 0 {
		return PeriodicError{}
	}

	re, im := dft(resample(values, times, 1000))
	if len(re) < 2 {
		return PeriodicError{}
	}

	mags := make([]float64, len(re))
	var sumSq float64
	for k := range re {
		mags[k] = math.Hypot(re[k], im[k])
		sumSq += mags[k] * mags[k]
	}

	peak := 1
	for k := 1; k < len(mags); k++ {
		if mags[k] > mags[peak] {
			peak = k
		}
	}

	out := PeriodicError{
		Frequency: float64(peak) / durationSec,
		Amplitude: mags[peak] / float64(len(re)) * 2,
		Phase:     math.Atan2(im[peak], re[peak]),
	}
	if rms := math.Sqrt(sumSq / float64(len(mags))); rms > 0 {
		out.Confidence = math.Min(1, math.Max(0, (mags[peak]/rms-1)/9))
	}
	return out
}

// resample linearly interpolates values onto a grid of stepMs starting at
// the first timestamp.
func resample(values, times []float64, stepMs float64) []float64 {
	if len(values) < 2 {
		return values
	}
	start := times[0]
	n := int(math.Floor((times[len(times)-1]-start)/stepMs)) + 1
	out := make([]float64, n)

	j := 0
	for i := range out {
		t := start + float64(i)*stepMs
		for j < len(times)-2 && times[j+1] < t {
			j++
		}
		t1, t2 := times[j], times[j+1]
		v1, v2 := values[j], values[j+1]
		if t2 == t1 {
			out[i] = v1
			continue
		}
		out[i] = v1 + (v2-v1)*(t-t1)/(t2-t1)
	}
	return out
}

// dft zero-pads data to a power of two and returns the first half of its
// spectrum.
func dft(data []float64) ([]float64, []float64) {
	n := 1
	for n < len(data) {
		n <<= 1
	}
	half := n / 2
	re := make([]float64, half)
	im := make([]float64, half)
	if half == 0 {
		return re, im
	}

	// k*m mod n indexes one table of twiddle factors
	cosT := make([]float64, n)
	sinT := make([]float64, n)
	for i := range cosT {
		a := -2 * math.Pi * float64(i) / float64(n)
		cosT[i] = math.Cos(a)
		sinT[i] = math.Sin(a)
	}

	for k := 0; k < half; k++ {
		var rs, is float64
		for m, v := range data {
			idx := (k * m) & (n - 1)
			rs += v * cosT[idx]
			is += v * sinT[idx]
		}
		re[k] = rs
		im[k] = is
	}
	return re, im
}

// GeneratePECTable samples one worm period of the correction curve at
// points evenly spaced phases.
func GeneratePECTable(pe PeriodicError, points int) []float64 {
	if points <= 0 {
		points = 360
	}
	table := make([]float64, points)
	for i := range table {
		phase := float64(i) / float64(points) * 2 * math.Pi
		table[i] = pe.Amplitude * math.Sin(phase+pe.Phase)
	}
	return table
}

// EstimateWormPeriod converts a frequency to a period in seconds, clamped
// to the range of real worm gears. Zero frequency yields zero.
func EstimateWormPeriod(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}
	return math.Max(MinWormPeriod, math.Min(MaxWormPeriod, 1/frequency))
}
