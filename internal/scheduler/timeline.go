package scheduler

import (
	"time"

	"github.com/agp-analyzer/backend/internal/astro"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/visibility"
)

// Timeline entry kinds.
const (
	TimelineIdle    = "idle"
	TimelineImaging = "imaging"
	TimelineFlip    = "flip"
	TimelineSetup   = "setup"
)

// setupGap is the fixed changeover shown after each session.
const setupGap = 10 * time.Minute

// TimelineEntry marks the start of one block of the night.
type TimelineEntry struct {
	Time   time.Time      `json:"time"`
	Type   string         `json:"type"`
	Target *models.Target `json:"target,omitempty"`
}

// GenerateTimeline lays the plan out between dusk and dawn for display.
func GenerateTimeline(plan SessionPlan, loc astro.Location, date time.Time) []TimelineEntry {
	dusk, dawn := visibility.DarkWindow(loc, date)

	timeline := make([]TimelineEntry, 0, len(plan.Sessions)*3+2)
	current := dusk
	for i := range plan.Sessions {
		s := &plan.Sessions[i]
		if s.StartTime.After(current) {
			timeline = append(timeline, TimelineEntry{Time: current, Type: TimelineIdle})
		}
		timeline = append(timeline, TimelineEntry{Time: s.StartTime, Type: TimelineImaging, Target: &s.Target})
		if s.MeridianFlipRequired && s.FlipTime != nil {
			timeline = append(timeline, TimelineEntry{Time: *s.FlipTime, Type: TimelineFlip, Target: &s.Target})
		}
		timeline = append(timeline, TimelineEntry{Time: s.EndTime, Type: TimelineSetup})
		current = s.EndTime.Add(setupGap)
	}
	if current.Before(dawn) {
		timeline = append(timeline, TimelineEntry{Time: current, Type: TimelineIdle})
	}
	return timeline
}
