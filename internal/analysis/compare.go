package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/quality"
)

// Equipment change kinds.
const (
	ChangeMount      = "mount"
	ChangeCamera     = "camera"
	ChangeTelescope  = "telescope"
	ChangePixelScale = "pixelScale"
)

// ImpactNeutral is the only impact reported for equipment changes; the
// effect of a change is not inferred.
const ImpactNeutral = "neutral"

// pixelScaleChange is the smallest pixel scale difference, arcsec/px,
// reported as an equipment change.
const pixelScaleChange = 0.1

// Equipment identifies the gear used for a session.
type Equipment struct {
	Mount     string `json:"mount,omitempty"`
	Camera    string `json:"camera,omitempty"`
	Telescope string `json:"telescope,omitempty"`
}

// SessionComparison is one session's row in a comparison.
type SessionComparison struct {
	SessionID         string    `json:"sessionId"`
	SessionDate       time.Time `json:"sessionDate"`
	DurationSeconds   float64   `json:"duration"`
	FrameCount        int       `json:"frameCount"`
	RMSTotal          float64   `json:"rmsTotal"`
	RMSRA             float64   `json:"rmsRA"`
	RMSDec            float64   `json:"rmsDec"`
	PerfectPercentage float64   `json:"perfectPercentage"`
	GoodPercentage    float64   `json:"goodPercentage"`
	PixelScale        float64   `json:"pixelScale"`
	Equipment         Equipment `json:"equipment"`
}

// EquipmentChange records gear that differs from the previous session.
type EquipmentChange struct {
	SessionIndex int    `json:"sessionIndex"`
	ChangeType   string `json:"changeType"`
	OldValue     string `json:"oldValue"`
	NewValue     string `json:"newValue"`
	Impact       string `json:"impact"`
}

// OverallStats aggregate sessions with a non-zero RMS. ImprovementTrend is
// the percent RMS reduction from the first to the last such session;
// ConsistencyScore is the coefficient of variation in percent.
type OverallStats struct {
	AverageRMS       float64 `json:"averageRMS"`
	BestRMS          float64 `json:"bestRMS"`
	WorstRMS         float64 `json:"worstRMS"`
	ImprovementTrend float64 `json:"improvementTrend"`
	ConsistencyScore float64 `json:"consistencyScore"`
}

// Comparison is the result of CompareSessions.
type Comparison struct {
	Sessions         []SessionComparison `json:"sessions"`
	OverallStats     OverallStats        `json:"overallStats"`
	EquipmentChanges []EquipmentChange   `json:"equipmentChanges"`
}

// CompareSessions summarizes each session's guiding RMS and quality and
// looks for trends and equipment changes across them. RMS and quality
// percentages are taken over the raw RA/Dec guide distances of each frame.
func CompareSessions(sessions []models.GuidingSession) Comparison {
	out := Comparison{
		Sessions:         make([]SessionComparison, 0, len(sessions)),
		EquipmentChanges: make([]EquipmentChange, 0),
	}
	if len(sessions) == 0 {
		return out
	}

	for i := range sessions {
		s := &sessions[i]
		points := quality.FramePoints(s)
		rms := quality.CalculateRMSStats(points)
		pct := quality.QualityPercentages(points, s.PixelScale)
		out.Sessions = append(out.Sessions, SessionComparison{
			SessionID:         fmt.Sprintf("Session %d", i+1),
			SessionDate:       s.StartTime,
			DurationSeconds:   s.Duration().Seconds(),
			FrameCount:        len(s.Frames),
			RMSTotal:          rms.Total,
			RMSRA:             rms.RA,
			RMSDec:            rms.Dec,
			PerfectPercentage: pct.Perfect,
			GoodPercentage:    pct.Good,
			PixelScale:        s.PixelScale,
			Equipment: Equipment{
				Mount:     s.Mount,
				Camera:    s.Camera,
				Telescope: s.EquipmentProfile,
			},
		})
	}

	out.OverallStats = overallStats(out.Sessions)
	out.EquipmentChanges = detectEquipmentChanges(out.Sessions)
	return out
}

func overallStats(rows []SessionComparison) OverallStats {
	var rms []float64
	for _, r := range rows {
		if r.RMSTotal > 0 {
			rms = append(rms, r.RMSTotal)
		}
	}
	if len(rms) == 0 {
		return OverallStats{}
	}

	st := OverallStats{BestRMS: rms[0], WorstRMS: rms[0]}
	var sum float64
	for _, v := range rms {
		sum += v
		st.BestRMS = math.Min(st.BestRMS, v)
		st.WorstRMS = math.Max(st.WorstRMS, v)
	}
	st.AverageRMS = sum / float64(len(rms))

	if len(rms) >= 2 {
		first, last := rms[0], rms[len(rms)-1]
		st.ImprovementTrend = (first - last) / first * 100
	}

	var variance float64
	for _, v := range rms {
		variance += (v - st.AverageRMS) * (v - st.AverageRMS)
	}
	st.ConsistencyScore = math.Sqrt(variance/float64(len(rms))) / st.AverageRMS * 100
	return st
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func detectEquipmentChanges(rows []SessionComparison) []EquipmentChange {
	changes := make([]EquipmentChange, 0)
	add := func(i int, kind, old, cur string) {
		changes = append(changes, EquipmentChange{
			SessionIndex: i,
			ChangeType:   kind,
			OldValue:     old,
			NewValue:     cur,
			Impact:       ImpactNeutral,
		})
	}

	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].Equipment, rows[i].Equipment
		if prev.Mount != cur.Mount {
			add(i, ChangeMount, orUnknown(prev.Mount), orUnknown(cur.Mount))
		}
		if prev.Camera != cur.Camera {
			add(i, ChangeCamera, orUnknown(prev.Camera), orUnknown(cur.Camera))
		}
		if prev.Telescope != cur.Telescope {
			add(i, ChangeTelescope, orUnknown(prev.Telescope), orUnknown(cur.Telescope))
		}
		if ps, cs := rows[i-1].PixelScale, rows[i].PixelScale; math.Abs(ps-cs) > pixelScaleChange {
			add(i, ChangePixelScale, fmt.Sprintf(`%.2f"`, ps), fmt.Sprintf(`%.2f"`, cs))
		}
	}
	return changes
}
