package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/models"
)

func comparisonSession(start time.Time, raRaw, pixelScale float64) models.GuidingSession {
	return models.GuidingSession{
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		PixelScale: pixelScale,
		Mount:      "EQ6-R",
		Frames: []models.GuidingFrame{
			{Frame: 1, Mount: "Mount", RARawDistance: raRaw},
			{Frame: 2, Mount: "Mount", RARawDistance: -raRaw},
			{Frame: 3, Mount: models.MountStatusDrop},
		},
	}
}

func TestCompareSessions(t *testing.T) {
	first := comparisonSession(epoch, 1, 1.0)
	first.Camera = "ASI120MM"
	second := comparisonSession(epoch.Add(24*time.Hour), 0.2, 1.5)
	second.Camera = "ASI174MM"
	second.EquipmentProfile = "Redcat 51"

	c := CompareSessions([]models.GuidingSession{first, second})
	require.Len(t, c.Sessions, 2)

	row := c.Sessions[1]
	assert.Equal(t, "Session 2", row.SessionID)
	assert.Equal(t, epoch.Add(24*time.Hour), row.SessionDate)
	assert.Equal(t, 3600.0, row.DurationSeconds)
	assert.Equal(t, 3, row.FrameCount)
	assert.InDelta(t, 0.3, row.RMSTotal, 1e-9)
	assert.InDelta(t, 0.3, row.RMSRA, 1e-9)
	assert.Equal(t, 0.0, row.RMSDec)
	assert.InDelta(t, 100.0, row.PerfectPercentage, 1e-9)
	assert.Equal(t, Equipment{Mount: "EQ6-R", Camera: "ASI174MM", Telescope: "Redcat 51"}, row.Equipment)

	st := c.OverallStats
	assert.InDelta(t, 0.65, st.AverageRMS, 1e-9)
	assert.InDelta(t, 0.3, st.BestRMS, 1e-9)
	assert.InDelta(t, 1.0, st.WorstRMS, 1e-9)
	assert.InDelta(t, 70.0, st.ImprovementTrend, 1e-9)
	assert.InDelta(t, 0.35/0.65*100, st.ConsistencyScore, 1e-9)

	assert.Equal(t, []EquipmentChange{
		{SessionIndex: 1, ChangeType: ChangeCamera, OldValue: "ASI120MM", NewValue: "ASI174MM", Impact: ImpactNeutral},
		{SessionIndex: 1, ChangeType: ChangeTelescope, OldValue: "Unknown", NewValue: "Redcat 51", Impact: ImpactNeutral},
		{SessionIndex: 1, ChangeType: ChangePixelScale, OldValue: `1.00"`, NewValue: `1.50"`, Impact: ImpactNeutral},
	}, c.EquipmentChanges)
}

func TestCompareSessionsSmallPixelScaleChangeIgnored(t *testing.T) {
	a := comparisonSession(epoch, 1, 1.0)
	b := comparisonSession(epoch, 1, 1.05)
	c := CompareSessions([]models.GuidingSession{a, b})
	assert.Empty(t, c.EquipmentChanges)
}

func TestCompareSessionsEmpty(t *testing.T) {
	c := CompareSessions(nil)
	assert.Empty(t, c.Sessions)
	assert.NotNil(t, c.EquipmentChanges)
	assert.Equal(t, OverallStats{}, c.OverallStats)
}

func TestCompareSessionsSkipsZeroRMS(t *testing.T) {
	flat := comparisonSession(epoch, 0, 1.0)
	noisy := comparisonSession(epoch, 2, 1.0)
	c := CompareSessions([]models.GuidingSession{flat, noisy})

	assert.InDelta(t, 2.0, c.OverallStats.AverageRMS, 1e-9)
	assert.InDelta(t, 2.0, c.OverallStats.BestRMS, 1e-9)
	assert.Equal(t, 0.0, c.OverallStats.ImprovementTrend)
	assert.Equal(t, 0.0, c.OverallStats.ConsistencyScore)
}
