package models

// Difficulty ratings used by the scheduler's scoring.
const (
	DifficultyEasy     = "Easy"
	DifficultyModerate = "Moderate"
	DifficultyHard     = "Hard"
)

// Target is a deep-sky object that can be planned for imaging.
type Target struct {
	ID            string  `json:"id" yaml:"id"`
	Name          string  `json:"name" yaml:"name"`
	Type          string  `json:"type,omitempty" yaml:"type,omitempty"`
	Constellation string  `json:"constellation,omitempty" yaml:"constellation,omitempty"`
	RA            float64 `json:"ra" yaml:"ra"`   // hours
	Dec           float64 `json:"dec" yaml:"dec"` // degrees
	Magnitude     float64 `json:"magnitude,omitempty" yaml:"magnitude,omitempty"`
	Size          float64 `json:"size,omitempty" yaml:"size,omitempty"` // arcmin
	Difficulty    string  `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// TargetPriority pairs a target with a scheduling priority and the
// imaging time wanted for it.
type TargetPriority struct {
	Target                 Target  `json:"target" yaml:"target"`
	Priority               float64 `json:"priority" yaml:"priority"`
	DesiredExposureMinutes float64 `json:"desiredExposureMinutes" yaml:"desired_exposure_minutes"`
}
