package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agp-analyzer/backend/internal/models"
)

const guideHeader = `Dither = both axes, Dither scale = 1.000, Image noise reduction = none, Guide-frame time lapse = 0, Server enabled
Pixel scale = 2.00 arc-sec/px, Binning = 1, Focal length = 400 mm
Search region = 15 px, Star mass tolerance = 50.0%
Equipment Profile = Backyard
Camera = ZWO ASI120MM Mini, gain = 60, full size = 1280 x 960, have dark, dark dur = 0, pixel size = 3.8 um
Exposure = 2000 ms
Mount = Sky-Watcher EQ6-R,  connected, guiding enabled, xAngle = 178.8, xRate = 1.075, yAngle = -88.6, yRate = 0.999, parity = +/-,
X guide algorithm = Hysteresis, Hysteresis = 0.100, Aggression = 0.700, Minimum move = 0.150
Y guide algorithm = Resist Switch, Minimum move = 0.150 Aggression = 100% FastSwitch = enabled
Backlash comp = disabled, pulse = 20 ms
Calibration step = 1250, Max RA duration = 2500, Max DEC duration = 2500, DEC guide mode = Auto
RA Guide Speed = 7.5 a-s/s, Dec Guide Speed = 7.5 a-s/s, Cal Dec = 41.3, Last Cal Issue = None, Timestamp = 3/18/2022 8:57:12 PM
Dec = 41.3 deg, Hour angle = -1.23 hr, Pier side = West, Rotator pos = N/A
Lock position = 640.123, 480.456, Star position = 640.200, 480.500, HFD = 2.61 px
Frame,Time,mount,dx,dy,RARawDistance,DECRawDistance,RAGuideDistance,DECGuideDistance,RADuration,RADirection,DECDuration,DECDirection,XStep,YStep,StarMass,SNR,ErrorCode
`

var guideLog = "PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55\n" +
	"Guiding Begins at 2022-03-18 21:00:00\n" +
	guideHeader +
	"1,2.000,\"Mount\",0.100,0.200,0.100,0.200,0,0,0,,0,,,,1300,25.0,0\n" +
	"2,4.000,\"Mount\",-0.100,0.100,-0.100,0.100,0,0,0,,0,,,,1300,25.0,0\n" +
	"3,6.000,\"Mount\",0.200,-0.200,0.200,-0.200,0,0,0,,0,,,,1300,25.0,0\n" +
	"Guiding Ends at 2022-03-18 21:00:07\n"

const autorunLog = "Log enabled at 2022/03/18 20:50:12\r\n" +
	"2022/03/18 20:55:01 [Autorun|Begin] M42 Start\r\n" +
	"2022/03/18 20:58:01 Exposure 300.0s image 1#\r\n" +
	"2022/03/18 21:09:30 [Autorun|End] M42 End\r\n"

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func waitForSession(t *testing.T, m *Manager, id string) *models.ParseSession {
	t.Helper()
	var s *models.ParseSession
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = m.GetSession(id)
		if !ok {
			return false
		}
		return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
	}, 10*time.Second, 20*time.Millisecond)
	return s
}

func TestManagerParsesGuideLog(t *testing.T) {
	m := NewManager(t.TempDir())
	defer m.Close()

	var mu sync.Mutex
	var outcomes []bool
	m.SetObserver(func(kind models.LogKind, ok bool, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, models.LogKindGuiding, kind)
		outcomes = append(outcomes, ok)
	})

	started, err := m.StartSession("file-1", writeLog(t, "guide.txt", guideLog))
	require.NoError(t, err)
	assert.Equal(t, "file-1", started.FileID)

	s := waitForSession(t, m, started.ID)
	require.Equal(t, models.SessionStatusComplete, s.Status, "errors: %v", s.Errors)
	assert.Equal(t, models.LogKindGuiding, s.Kind)
	assert.Equal(t, 1, s.SessionCount)
	assert.Equal(t, 3, s.RecordCount)
	assert.Equal(t, 100.0, s.Progress)
	assert.Equal(t, "phd2_guide_log", s.ParserName)

	gs, err := m.GuidingSession(started.ID, 0)
	require.NoError(t, err)
	assert.Len(t, gs.Frames, 3)
	assert.Equal(t, 2.0, gs.PixelScale)

	_, err = m.GuidingSession(started.ID, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = m.AutorunLog(started.ID)
	assert.ErrorIs(t, err, ErrWrongKind)

	from := time.Date(2022, 3, 18, 21, 0, 3, 0, time.UTC)
	frames, err := m.FramesInRange(context.Background(), started.ID, 0, from, time.Time{})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].Frame)

	sums, indexed, err := m.Summaries(context.Background(), started.ID)
	require.NoError(t, err)
	require.True(t, indexed)
	require.Len(t, sums, 1)
	assert.Equal(t, 3, sums[0].FrameCount)

	mu.Lock()
	assert.Equal(t, []bool{true}, outcomes)
	mu.Unlock()
}

func TestManagerWithoutFrameIndex(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	started, err := m.StartSession("file-1", writeLog(t, "guide.txt", guideLog))
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusComplete, waitForSession(t, m, started.ID).Status)

	frames, err := m.FramesInRange(context.Background(), started.ID, 0, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, frames, 3)

	_, indexed, err := m.Summaries(context.Background(), started.ID)
	require.NoError(t, err)
	assert.False(t, indexed)
}

func TestManagerParsesAutorunLog(t *testing.T) {
	m := NewManager(t.TempDir())
	defer m.Close()

	started, err := m.StartSession("file-2", writeLog(t, "autorun.txt", autorunLog))
	require.NoError(t, err)

	s := waitForSession(t, m, started.ID)
	require.Equal(t, models.SessionStatusComplete, s.Status, "errors: %v", s.Errors)
	assert.Equal(t, models.LogKindAutorun, s.Kind)
	assert.Equal(t, 1, s.SessionCount)
	assert.Equal(t, 1, s.RecordCount)

	log, err := m.AutorunLog(started.ID)
	require.NoError(t, err)
	require.Len(t, log.Autoruns, 1)
	assert.Equal(t, "M42", log.Autoruns[0].Plan)

	_, err = m.GuidingLog(started.ID)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestManagerReportsFormatError(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	broken := "PHD2 version 2.6.11, Log version 2.5. Log enabled at 2022-03-18 20:54:55\n" +
		"Guiding Begins at 2022-03-18 21:00:00\n" +
		"this is not a session header\n"
	started, err := m.StartSession("file-3", writeLog(t, "broken.txt", broken))
	require.NoError(t, err)

	s := waitForSession(t, m, started.ID)
	require.Equal(t, models.SessionStatusError, s.Status)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, 3, s.Errors[0].Line)
	assert.True(t, strings.HasPrefix(s.Errors[0].Reason, "expected "), s.Errors[0].Reason)

	_, err = m.GetResult(started.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestManagerUnknownFormat(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	started, err := m.StartSession("file-4", writeLog(t, "plc.log", "2025-09-22 13:00:00.199 [Debug] something\n"))
	require.NoError(t, err)

	s := waitForSession(t, m, started.ID)
	require.Equal(t, models.SessionStatusError, s.Status)
	assert.Contains(t, s.Errors[0].Reason, "failed to find parser")
}

func TestManagerLookupMisses(t *testing.T) {
	m := NewManager("")
	_, ok := m.GetSession("nope")
	assert.False(t, ok)
	assert.False(t, m.TouchSession("nope"))
	assert.False(t, m.DeleteSession("nope"))
	_, err := m.GuidingSession("nope", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerEvictsFinishedSessions(t *testing.T) {
	m := NewManager("")
	defer m.Close()
	m.SetMaxSessions(2)

	path := writeLog(t, "autorun.txt", autorunLog)
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := m.StartSession("file", path)
		require.NoError(t, err)
		waitForSession(t, m, s.ID)
		ids = append(ids, s.ID)
	}

	_, ok := m.GetSession(ids[0])
	assert.False(t, ok, "oldest session should be evicted")
	_, ok = m.GetSession(ids[2])
	assert.True(t, ok)
}

func TestCleanupOldSessions(t *testing.T) {
	m := NewManager("")
	defer m.Close()

	s, err := m.StartSession("file", writeLog(t, "autorun.txt", autorunLog))
	require.NoError(t, err)
	waitForSession(t, m, s.ID)

	// recently touched sessions survive
	m.CleanupOldSessions(0)
	_, ok := m.GetSession(s.ID)
	require.True(t, ok)

	m.withState(s.ID, func(state *SessionState) {
		state.LastAccessed = time.Now().Add(-time.Hour)
	})
	m.CleanupOldSessions(SessionMaxAge)
	_, ok = m.GetSession(s.ID)
	assert.False(t, ok)
}
