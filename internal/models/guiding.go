// Package models contains domain types for the guiding log analyzer.
package models

import (
	"time"
)

// MountStatusDrop marks a frame where the guide star was lost.
const MountStatusDrop = "DROP"

// SiderealRate is sidereal hours elapsed per solar hour.
const SiderealRate = 1.00273790935

// GuidingFrame is one guide-correction sample.
type GuidingFrame struct {
	Frame              int       `json:"frame"`
	TimeInMilliseconds float64   `json:"timeInMilliseconds"`
	Datetime           time.Time `json:"datetime"`
	Mount              string    `json:"mount"`
	DX                 float64   `json:"dx"`
	DY                 float64   `json:"dy"`
	RARawDistance      float64   `json:"raRawDistance"`
	DECRawDistance     float64   `json:"decRawDistance"`
	RAGuideDistance    float64   `json:"raGuideDistance"`
	DECGuideDistance   float64   `json:"decGuideDistance"`
	RADuration         float64   `json:"raDuration"`
	RADirection        string    `json:"raDirection"`
	DECDuration        float64   `json:"decDuration"`
	DECDirection       string    `json:"decDirection"`
	XStep              float64   `json:"xStep"`
	YStep              float64   `json:"yStep"`
	StarMass           float64   `json:"starMass"`
	SNR                float64   `json:"snr"`
	ErrorCode          string    `json:"errorCode"`
}

// GuidingSession is one contiguous guiding run.
type GuidingSession struct {
	Frames []GuidingFrame `json:"guidingFrames"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	Dither              string  `json:"dither"`
	DitherScale         float64 `json:"ditherScale"`
	ImageNoiseReduction string  `json:"imageNoiseReduction"`

	PixelScale  float64 `json:"pixelScale"`
	Binning     int     `json:"binning"`
	FocalLength float64 `json:"focalLength"`

	SearchRegionInPixels        float64 `json:"searchRegionInPixels"`
	StarMassTolerancePercentage float64 `json:"starMassTolerancePercentage"`

	EquipmentProfile string  `json:"equipmentProfile"`
	Camera           string  `json:"camera"`
	CameraGain       float64 `json:"cameraGain"`
	CameraWidth      int     `json:"cameraWidth"`
	CameraHeight     int     `json:"cameraHeight"`
	CameraPixelSize  float64 `json:"cameraPixelSize"`
	ExposureTime     float64 `json:"exposureTime"`

	Mount  string  `json:"mount"`
	XAngle float64 `json:"xAngle"`
	XRate  float64 `json:"xRate"`
	YAngle float64 `json:"yAngle"`
	YRate  float64 `json:"yRate"`
	Parity string  `json:"parity"`

	XGuidingAlgorithm    string  `json:"xGuidingAlgorithm"`
	YGuidingAlgorithm    string  `json:"yGuidingAlgorithm"`
	BacklashCompensation string  `json:"backlashCompensation"`
	CalibrationStep      string  `json:"calibrationStep"`
	MaxRADuration        float64 `json:"maxRADuration"`
	MaxDECDuration       float64 `json:"maxDECDuration"`
	DECGuideMode         string  `json:"decGuideMode"`
	RAGuideSpeed         string  `json:"raGuideSpeed"`
	DECGuideSpeed        string  `json:"decGuideSpeed"`

	Degrees         float64 `json:"degrees"`
	HourAngle       float64 `json:"hourAngle"`
	PierSide        string  `json:"pierSide"`
	RotatorPosition string  `json:"rotatorPosition"`

	LockPositionX            float64 `json:"lockPositionX"`
	LockPositionY            float64 `json:"lockPositionY"`
	StarPositionX            float64 `json:"starPositionX"`
	StarPositionY            float64 `json:"starPositionY"`
	HalfFluxDiameterInPixels float64 `json:"halfFluxDiameterInPixels"`
}

// Duration returns the wall-clock span covered by the session.
func (s *GuidingSession) Duration() time.Duration {
	if s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// ToArcsec converts a pixel distance to arc-seconds at the session's pixel scale.
func (s *GuidingSession) ToArcsec(px float64) float64 {
	return px * s.PixelScale
}

// HourAngleAt extrapolates the hour angle logged at session start to t.
// The result is not normalized.
func (s *GuidingSession) HourAngleAt(t time.Time) float64 {
	return s.HourAngle + t.Sub(s.StartTime).Hours()*SiderealRate
}

// CalibrationStep is one row of a calibration run.
type CalibrationStep struct {
	Direction string  `json:"direction"`
	Step      int     `json:"step"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Distance  float64 `json:"distance"`
}

// CalibrationSession is one mount calibration run.
type CalibrationSession struct {
	DateTime         time.Time `json:"dateTime"`
	Camera           string    `json:"camera"`
	CameraPixelSize  float64   `json:"cameraPixelSize"`
	EquipmentProfile string    `json:"equipmentProfile"`
	Exposure         float64   `json:"exposure"`
	PixelScale       float64   `json:"pixelScale"`
	Binning          int       `json:"binning"`
	FocalLength      float64   `json:"focalLength"`
	Mount            string    `json:"mount"`

	CalibrationStep      float64 `json:"calibrationStep"`
	CalibrationDistance  float64 `json:"calibrationDistance"`
	AssumeOrthogonalAxes string  `json:"assumeOrthogonalAxes"`

	Steps []CalibrationStep `json:"calibrationSteps"`

	Degrees                  float64 `json:"degrees"`
	HourAngle                float64 `json:"hourAngle"`
	PierSide                 string  `json:"pierSide"`
	RotatorPosition          string  `json:"rotatorPosition"`
	LockPositionX            float64 `json:"lockPositionX"`
	LockPositionY            float64 `json:"lockPositionY"`
	StarPositionX            float64 `json:"starPositionX"`
	StarPositionY            float64 `json:"starPositionY"`
	HalfFluxDiameterInPixels float64 `json:"halfFluxDiameterInPixels"`

	WestCalibrationAngle   float64 `json:"westCalibrationAngle"`
	WestCalibrationRate    float64 `json:"westCalibrationRate"`
	WestCalibrationParity  string  `json:"westCalibrationParity"`
	NorthCalibrationAngle  float64 `json:"northCalibrationAngle"`
	NorthCalibrationRate   float64 `json:"northCalibrationRate"`
	NorthCalibrationParity string  `json:"northCalibrationParity"`
}

// PHDLog is the parse result of one PHD2 guide log.
type PHDLog struct {
	Datetime            time.Time            `json:"datetime"`
	PHDVersion          string               `json:"phdVersion,omitempty"`
	PHDLogVersion       string               `json:"phdLogVersion"`
	GuidingSessions     []GuidingSession     `json:"guidingSessions"`
	CalibrationSessions []CalibrationSession `json:"calibrationSessions"`
}
