// Package scheduler plans a night of imaging across several targets.
package scheduler

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/agp-analyzer/backend/internal/astro"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/visibility"
)

// slotStep is the granularity of candidate start times inside a window.
const slotStep = 15.0

// Constraints bound a plan. Durations are minutes.
type Constraints struct {
	MinAltitude             float64 `json:"minAltitude" yaml:"min_altitude"`
	MaxAirmass              float64 `json:"maxAirmass" yaml:"max_airmass"`
	SetupTimeMinutes        float64 `json:"setupTimeMinutes" yaml:"setup_time_minutes"`
	MeridianFlipTimeMinutes float64 `json:"meridianFlipTimeMinutes" yaml:"meridian_flip_time_minutes"`
	MoonAvoidanceAngle      float64 `json:"moonAvoidanceAngle" yaml:"moon_avoidance_angle"`
	MinimumSessionMinutes   float64 `json:"minimumSessionMinutes" yaml:"minimum_session_minutes"`
}

// DefaultConstraints returns the planner defaults.
func DefaultConstraints() Constraints {
	return Constraints{
		MinAltitude:             30,
		MaxAirmass:              2.0,
		SetupTimeMinutes:        10,
		MeridianFlipTimeMinutes: 5,
		MoonAvoidanceAngle:      30,
		MinimumSessionMinutes:   30,
	}
}

// Slot is a half-open span of the night.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s Slot) overlaps(o Slot) bool {
	return (!s.Start.Before(o.Start) && s.Start.Before(o.End)) ||
		(s.End.After(o.Start) && !s.End.After(o.End)) ||
		(!s.Start.After(o.Start) && !s.End.Before(o.End))
}

// ScheduledSession is one target placed in the plan.
type ScheduledSession struct {
	Target               models.Target `json:"target"`
	StartTime            time.Time     `json:"startTime"`
	EndTime              time.Time     `json:"endTime"`
	DurationMinutes      float64       `json:"durationMinutes"`
	MaxAltitude          float64       `json:"maxAltitude"`
	AverageAirmass       float64       `json:"averageAirmass"`
	MeridianFlipRequired bool          `json:"meridianFlipRequired"`
	FlipTime             *time.Time    `json:"flipTime"`
	Score                float64       `json:"score"`
}

// SessionPlan is the result of scheduling a night.
type SessionPlan struct {
	Sessions            []ScheduledSession `json:"sessions"`
	TotalImagingMinutes float64            `json:"totalImagingMinutes"`
	TotalSetupMinutes   float64            `json:"totalSetupMinutes"`
	TotalFlipMinutes    float64            `json:"totalFlipMinutes"`
	Efficiency          float64            `json:"efficiency"`
	UnscheduledTargets  []models.Target    `json:"unscheduledTargets"`
}

// TotalScore sums the session scores.
func (p SessionPlan) TotalScore() float64 {
	total := 0.0
	for _, s := range p.Sessions {
		total += s.Score
	}
	return total
}

func equatorial(t models.Target) astro.Equatorial {
	return astro.Equatorial{RA: t.RA, Dec: t.Dec}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func difficultyBonus(d string) float64 {
	switch d {
	case models.DifficultyEasy:
		return 10
	case models.DifficultyModerate:
		return 5
	}
	return 0
}

// SessionScore rates imaging target from start for durationMin minutes:
// altitude at the midpoint, priority, difficulty and length all count.
func SessionScore(target models.Target, start time.Time, durationMin float64, loc astro.Location, priority float64) float64 {
	mid := start.Add(minutes(durationMin / 2))
	alt := astro.AltAz(equatorial(target), loc, mid).Altitude
	return alt*0.3 + priority*50 + difficultyBonus(target.Difficulty) + durationMin*0.1
}

// FindBestTimeSlot scans the target's best observing window in quarter-hour
// steps and returns the highest scoring free slot.
func FindBestTimeSlot(target models.Target, loc astro.Location, date time.Time, durationMin, priority float64, occupied []Slot, c Constraints) (Slot, float64, bool) {
	vis := visibility.Calculate(equatorial(target), loc, date, visibility.DefaultInterval)
	if vis.NeverRises || vis.BestWindow == nil {
		return Slot{}, 0, false
	}

	win := Slot{Start: vis.BestWindow.Start, End: vis.BestWindow.End}
	available := win.End.Sub(win.Start).Minutes()
	if available < durationMin+c.MinimumSessionMinutes {
		return Slot{}, 0, false
	}

	var best Slot
	bestScore := math.Inf(-1)
	found := false
	for offset := 0.0; offset <= available-durationMin; offset += slotStep {
		s := Slot{Start: win.Start.Add(minutes(offset))}
		s.End = s.Start.Add(minutes(durationMin))
		if s.End.After(win.End) || anyOverlap(s, occupied) {
			continue
		}
		mid := s.Start.Add(minutes(durationMin / 2))
		if astro.AltAz(equatorial(target), loc, mid).Altitude < c.MinAltitude {
			continue
		}
		score := SessionScore(target, s.Start, durationMin, loc, priority)
		if score > bestScore {
			best, bestScore, found = s, score, true
		}
	}
	return best, bestScore, found
}

func anyOverlap(s Slot, occupied []Slot) bool {
	for _, o := range occupied {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

// CalculateAverageAirmass averages eleven evenly spaced samples across the
// slot. Samples below the horizon count as zero.
func CalculateAverageAirmass(target models.Target, start, end time.Time, loc astro.Location) float64 {
	const samples = 10
	step := end.Sub(start) / samples

	total := 0.0
	for i := 0; i <= samples; i++ {
		alt := astro.AltAz(equatorial(target), loc, start.Add(time.Duration(i)*step)).Altitude
		if alt > 0 {
			total += visibility.Airmass(alt)
		}
	}
	return total / (samples + 1)
}

// ScheduleSession places targets greedily in descending priority. Each
// placed slot reserves setup time after it, plus the flip when one falls
// inside the slot.
func ScheduleSession(targets []models.TargetPriority, loc astro.Location, date time.Time, c Constraints, limits visibility.MountLimits) SessionPlan {
	sorted := make([]models.TargetPriority, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return schedule(sorted, loc, date, c, limits)
}

// schedule places targets in the order given.
func schedule(order []models.TargetPriority, loc astro.Location, date time.Time, c Constraints, limits visibility.MountLimits) SessionPlan {
	plan := SessionPlan{
		Sessions:           make([]ScheduledSession, 0, len(order)),
		UnscheduledTargets: make([]models.Target, 0),
	}
	var occupied []Slot

	for _, tp := range order {
		target := tp.Target
		slot, score, ok := FindBestTimeSlot(target, loc, date, tp.DesiredExposureMinutes, tp.Priority, occupied, c)
		if !ok {
			plan.UnscheduledTargets = append(plan.UnscheduledTargets, target)
			continue
		}

		avgAirmass := CalculateAverageAirmass(target, slot.Start, slot.End, loc)
		if c.MaxAirmass > 0 && avgAirmass > c.MaxAirmass {
			plan.UnscheduledTargets = append(plan.UnscheduledTargets, target)
			continue
		}

		vis := visibility.Calculate(equatorial(target), loc, date, visibility.DefaultInterval)
		flip := visibility.PredictMeridianFlip(equatorial(target), loc, slot.Start, limits)
		flipInSlot := flip.FlipTime != nil &&
			!flip.FlipTime.Before(slot.Start) && !flip.FlipTime.After(slot.End)

		s := ScheduledSession{
			Target:               target,
			StartTime:            slot.Start,
			EndTime:              slot.End,
			DurationMinutes:      tp.DesiredExposureMinutes,
			AverageAirmass:       avgAirmass,
			MeridianFlipRequired: flipInSlot,
			Score:                score,
		}
		if vis.BestWindow != nil {
			s.MaxAltitude = vis.BestWindow.MaxAltitude
		}
		if flipInSlot {
			s.FlipTime = flip.FlipTime
		}
		plan.Sessions = append(plan.Sessions, s)

		occupied = append(occupied, slot)
		if flipInSlot {
			occupied = append(occupied, Slot{
				Start: *flip.FlipTime,
				End:   flip.FlipTime.Add(minutes(c.MeridianFlipTimeMinutes)),
			})
		}
		occupied = append(occupied, Slot{Start: slot.End, End: slot.End.Add(minutes(c.SetupTimeMinutes))})
	}

	sort.SliceStable(plan.Sessions, func(i, j int) bool {
		return plan.Sessions[i].StartTime.Before(plan.Sessions[j].StartTime)
	})

	flips := 0
	for _, s := range plan.Sessions {
		plan.TotalImagingMinutes += s.DurationMinutes
		if s.MeridianFlipRequired {
			flips++
		}
	}
	plan.TotalSetupMinutes = float64(len(plan.Sessions)) * c.SetupTimeMinutes
	plan.TotalFlipMinutes = float64(flips) * c.MeridianFlipTimeMinutes
	if busy := plan.TotalImagingMinutes + plan.TotalSetupMinutes + plan.TotalFlipMinutes; busy > 0 {
		plan.Efficiency = plan.TotalImagingMinutes / busy * 100
	}
	return plan
}

// OptimizeSchedule starts from the priority-ordered plan and tries
// iterations random target orders, keeping the highest total score.
// A nil rng uses a fixed seed.
func OptimizeSchedule(targets []models.TargetPriority, loc astro.Location, date time.Time, c Constraints, limits visibility.MountLimits, iterations int, rng *rand.Rand) SessionPlan {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	best := ScheduleSession(targets, loc, date, c, limits)
	bestScore := best.TotalScore()

	order := make([]models.TargetPriority, len(targets))
	copy(order, targets)
	for i := 0; i < iterations; i++ {
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		plan := schedule(order, loc, date, c, limits)
		if score := plan.TotalScore(); score > bestScore {
			best, bestScore = plan, score
		}
	}
	return best
}
