package models

import (
	"strconv"
	"strings"
	"time"
)

// FocusPositionCancelled is the focus position recorded when an
// autofocus run was cancelled by the operator.
const FocusPositionCancelled = -1

// Position is a mount or plate-solve position as printed by the controller.
type Position struct {
	RA  string `json:"ra"`
	DEC string `json:"dec"`
}

// ExposureEvent is one captured frame inside an autorun.
type ExposureEvent struct {
	IntegrationTime string    `json:"integrationTime"`
	Image           int       `json:"image"`
	Datetime        time.Time `json:"datetime"`
	Type            string    `json:"type"`
}

// IntegrationSeconds parses the integration time string ("300.0s", "120s").
// Unparseable values count as zero.
func (e ExposureEvent) IntegrationSeconds() float64 {
	s := strings.TrimSuffix(strings.TrimSpace(e.IntegrationTime), "s")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// AutoCenterEvent is one plate-solve and re-center attempt.
type AutoCenterEvent struct {
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	Attempt            int       `json:"attempt"`
	TargetPosition     Position  `json:"targetPosition"`
	SolvedPosition     Position  `json:"solvedPosition"`
	SolvedAngle        float64   `json:"solvedAngle"`
	DetectedStars      int       `json:"detectedStars"`
	IsCentered         bool      `json:"isCentered"`
	DistanceFromCenter string    `json:"distanceFromCenter,omitempty"`
}

// VCurveMeasurement is one star-size sample of an autofocus run.
type VCurveMeasurement struct {
	StarSize    float64   `json:"starSize"`
	EAFPosition int       `json:"eafPosition"`
	Datetime    time.Time `json:"datetime"`
}

// AutoFocusEvent is one autofocus run.
type AutoFocusEvent struct {
	StartTime          time.Time           `json:"startTime"`
	EndTime            time.Time           `json:"endTime"`
	Temperature        float64             `json:"temperature"`
	VCurveMeasurements []VCurveMeasurement `json:"vCurveMeasurements"`
	FocusPosition      int                 `json:"focusPosition"`
}

// Cancelled reports whether the run was aborted by the operator.
func (e AutoFocusEvent) Cancelled() bool {
	return e.FocusPosition == FocusPositionCancelled
}

// DitherEvent is one dither and settle cycle.
type DitherEvent struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	TimedOut  bool      `json:"timedOut"`
}

// Autorun is one imaging-plan execution.
type Autorun struct {
	StartTime        time.Time         `json:"startTime"`
	EndTime          time.Time         `json:"endTime"`
	Plan             string            `json:"plan"`
	ExposureEvents   []ExposureEvent   `json:"exposureEvents"`
	AutoCenterEvents []AutoCenterEvent `json:"autoCenterEvents"`
	AutoFocusEvents  []AutoFocusEvent  `json:"autoFocusEvents"`
	DitherEvents     []DitherEvent     `json:"ditherEvents"`
}

func (a *Autorun) Duration() time.Duration {
	if a.EndTime.Before(a.StartTime) {
		return 0
	}
	return a.EndTime.Sub(a.StartTime)
}

func (a *Autorun) ExposureCount() int {
	return len(a.ExposureEvents)
}

// TotalIntegration sums the integration time of every exposure.
func (a *Autorun) TotalIntegration() time.Duration {
	var total float64
	for _, e := range a.ExposureEvents {
		total += e.IntegrationSeconds()
	}
	return time.Duration(total * float64(time.Second))
}

// AutorunLog is the parse result of one ASIAIR autorun log.
type AutorunLog struct {
	Datetime time.Time `json:"datetime"`
	Autoruns []Autorun `json:"autoruns"`
}
