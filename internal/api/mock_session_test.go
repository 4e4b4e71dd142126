// mock_session_test.go - In-memory SessionManager for handler tests
package api

import (
	"context"
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/parser"
	"github.com/agp-analyzer/backend/internal/session"
)

// MockSessionManager serves canned parse results.
type MockSessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*models.ParseSession
	results   map[string]*models.ParsedLog
	summaries map[string][]parser.SessionSummary
	touched   map[string]int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions:  make(map[string]*models.ParseSession),
		results:   make(map[string]*models.ParsedLog),
		summaries: make(map[string][]parser.SessionSummary),
		touched:   make(map[string]int),
	}
}

// AddResult registers a complete session holding result.
func (m *MockSessionManager) AddResult(id string, result *models.ParsedLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, records := result.Summary()
	m.sessions[id] = &models.ParseSession{
		ID:           id,
		FileID:       "file-" + id,
		Status:       models.SessionStatusComplete,
		Progress:     100,
		Kind:         result.Kind,
		SessionCount: sessions,
		RecordCount:  records,
	}
	m.results[id] = result
}

func (m *MockSessionManager) StartSession(fileID, filePath string) (*models.ParseSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("session-%d", len(m.sessions)+1)
	sess := models.NewParseSession(id, fileID)
	m.sessions[id] = sess
	cp := *sess
	return &cp, nil
}

func (m *MockSessionManager) GetSession(id string) (*models.ParseSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

func (m *MockSessionManager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.touched[id]++
	return true
}

func (m *MockSessionManager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	delete(m.results, id)
	return true
}

func (m *MockSessionManager) GetResult(id string) (*models.ParsedLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, session.ErrSessionNotFound
	}
	res, ok := m.results[id]
	if !ok {
		return nil, session.ErrNotReady
	}
	return res, nil
}

func (m *MockSessionManager) GuidingLog(id string) (*models.PHDLog, error) {
	res, err := m.GetResult(id)
	if err != nil {
		return nil, err
	}
	if res.Kind != models.LogKindGuiding {
		return nil, session.ErrWrongKind
	}
	return res.Guiding, nil
}

func (m *MockSessionManager) AutorunLog(id string) (*models.AutorunLog, error) {
	res, err := m.GetResult(id)
	if err != nil {
		return nil, err
	}
	if res.Kind != models.LogKindAutorun {
		return nil, session.ErrWrongKind
	}
	return res.Autorun, nil
}

func (m *MockSessionManager) GuidingSession(id string, index int) (*models.GuidingSession, error) {
	log, err := m.GuidingLog(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(log.GuidingSessions) {
		return nil, fmt.Errorf("%w: %d", session.ErrIndexOutOfRange, index)
	}
	return &log.GuidingSessions[index], nil
}

func (m *MockSessionManager) FramesInRange(ctx context.Context, id string, index int, from, to time.Time) ([]models.GuidingFrame, error) {
	gs, err := m.GuidingSession(id, index)
	if err != nil {
		return nil, err
	}
	frames := []models.GuidingFrame{}
	for _, f := range gs.Frames {
		if !from.IsZero() && f.Datetime.Before(from) {
			continue
		}
		if !to.IsZero() && f.Datetime.After(to) {
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func (m *MockSessionManager) Summaries(ctx context.Context, id string) ([]parser.SessionSummary, bool, error) {
	if _, err := m.GuidingLog(id); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sums, ok := m.summaries[id]
	return sums, ok, nil
}

func (m *MockSessionManager) touchCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched[id]
}

var _ SessionManager = (*MockSessionManager)(nil)

var fixtureStart = time.Date(2022, 3, 18, 21, 0, 0, 0, time.UTC)

// syntheticSession builds n frames two seconds apart. RA error (pixels)
// follows a sine with the given period (seconds), Dec drifts linearly and
// RA corrections alternate direction every ten frames.
func syntheticSession(n int, period float64, hourAngle float64) models.GuidingSession {
	frames := make([]models.GuidingFrame, n)
	for i := range frames {
		sec := float64(i * 2)
		ra := 0.5 * math.Sin(2*math.Pi*sec/period)
		dec := 0.002 * sec
		dir := "E"
		if (i/10)%2 == 1 {
			dir = "W"
		}
		frames[i] = models.GuidingFrame{
			Frame:              i + 1,
			TimeInMilliseconds: sec * 1000,
			Datetime:           fixtureStart.Add(time.Duration(sec) * time.Second),
			Mount:              "Mount",
			DX:                 ra,
			DY:                 dec,
			RARawDistance:      ra,
			DECRawDistance:     dec,
			RADuration:         100,
			RADirection:        dir,
			StarMass:           1300,
			SNR:                25,
		}
	}
	return models.GuidingSession{
		Frames:      frames,
		StartTime:   fixtureStart,
		EndTime:     frames[n-1].Datetime,
		PixelScale:  2.0,
		Binning:     1,
		FocalLength: 400,
		Camera:      "ZWO ASI120MM Mini",
		Mount:       "Sky-Watcher EQ6-R",
		Degrees:     41.3,
		HourAngle:   hourAngle,
		PierSide:    "West",
	}
}

func guidingFixture() *models.ParsedLog {
	return models.NewGuidingResult(&models.PHDLog{
		Datetime:      fixtureStart.Add(-5 * time.Minute),
		PHDVersion:    "2.6.11",
		PHDLogVersion: "2.5",
		GuidingSessions: []models.GuidingSession{
			syntheticSession(120, 40, -0.5),
			syntheticSession(60, 60, 0.5),
		},
		CalibrationSessions: []models.CalibrationSession{},
	})
}

func autorunFixture() *models.ParsedLog {
	start := fixtureStart.Add(-10 * time.Minute)
	return models.NewAutorunResult(&models.AutorunLog{
		Datetime: start,
		Autoruns: []models.Autorun{{
			StartTime: start,
			EndTime:   start.Add(time.Hour),
			Plan:      "M42",
			ExposureEvents: []models.ExposureEvent{
				{IntegrationTime: "300.0s", Image: 1, Datetime: start.Add(5 * time.Minute), Type: "Light"},
				{IntegrationTime: "300.0s", Image: 2, Datetime: start.Add(10 * time.Minute), Type: "Light"},
			},
			AutoFocusEvents: []models.AutoFocusEvent{
				{StartTime: start, EndTime: start.Add(time.Minute), Temperature: 10, FocusPosition: 3000},
				{StartTime: start.Add(30 * time.Minute), EndTime: start.Add(31 * time.Minute), Temperature: 8, FocusPosition: 3010},
			},
		}},
	})
}

// newContext builds an echo context for target with path params set.
func newContext(method, target string, body string, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req = httptest.NewRequest(method, target, nil)
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}
