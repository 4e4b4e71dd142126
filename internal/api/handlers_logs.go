// handlers_logs.go - Parsed guiding and autorun record handlers
package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/quality"
)

// MIMEMsgpack is the content type of msgpack frame exports.
const MIMEMsgpack = "application/x-msgpack"

// LogHandlerImpl implements the LogHandler interface
type LogHandlerImpl struct {
	sessionMgr SessionManager
}

// NewLogHandler creates a new log record handler
func NewLogHandler(sessionMgr SessionManager) LogHandler {
	return &LogHandlerImpl{sessionMgr: sessionMgr}
}

// HandleListGuidingSessions lists the guiding sessions without frames
func (h *LogHandlerImpl) HandleListGuidingSessions(c echo.Context) error {
	id := c.Param("sessionId")
	log, err := h.sessionMgr.GuidingLog(id)
	if err != nil {
		return fromDomainError(err, id)
	}
	h.sessionMgr.TouchSession(id)
	return c.JSON(http.StatusOK, guidingOverviews(log))
}

// HandleGetGuidingSession returns one guiding session. Frames are evenly
// down-sampled when maxPoints is given.
func (h *LogHandlerImpl) HandleGetGuidingSession(c echo.Context) error {
	id, index, err := sessionIndex(c)
	if err != nil {
		return err
	}
	gs, err := h.sessionMgr.GuidingSession(id, index)
	if err != nil {
		return fromDomainError(err, id)
	}
	maxPoints, err := optionalInt(c, "maxPoints")
	if err != nil {
		return err
	}

	out := *gs
	if maxPoints > 0 {
		out.Frames = quality.SampleData(gs.Frames, maxPoints)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleGetFrames returns frames between the optional from/to bounds
// (Unix milliseconds)
func (h *LogHandlerImpl) HandleGetFrames(c echo.Context) error {
	id, index, frames, err := h.framesInRange(c)
	if err != nil {
		return err
	}
	maxPoints, err := optionalInt(c, "maxPoints")
	if err != nil {
		return err
	}
	total := len(frames)
	if maxPoints > 0 {
		frames = quality.SampleData(frames, maxPoints)
	}

	return c.JSON(http.StatusOK, framesResponse{
		SessionID: id,
		Index:     index,
		Frames:    frames,
		Total:     total,
	})
}

// HandleGetFramesMsgpack returns the same frames as HandleGetFrames
// encoded as MessagePack
func (h *LogHandlerImpl) HandleGetFramesMsgpack(c echo.Context) error {
	id, index, frames, err := h.framesInRange(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(framesResponse{SessionID: id, Index: index, Frames: frames, Total: len(frames)}); err != nil {
		return NewInternalError("failed to encode frames", err)
	}
	return c.Blob(http.StatusOK, MIMEMsgpack, buf.Bytes())
}

// HandleGetFrameSummaries returns the per-session SQL aggregates from the
// frame index
func (h *LogHandlerImpl) HandleGetFrameSummaries(c echo.Context) error {
	id := c.Param("sessionId")
	sums, indexed, err := h.sessionMgr.Summaries(c.Request().Context(), id)
	if err != nil {
		return fromDomainError(err, id)
	}
	if !indexed {
		return NewServiceUnavailableError("frame index is not available for this session")
	}
	return c.JSON(http.StatusOK, sums)
}

// HandleListCalibrations returns the calibration runs of a guide log
func (h *LogHandlerImpl) HandleListCalibrations(c echo.Context) error {
	id := c.Param("sessionId")
	log, err := h.sessionMgr.GuidingLog(id)
	if err != nil {
		return fromDomainError(err, id)
	}
	return c.JSON(http.StatusOK, log.CalibrationSessions)
}

// HandleListAutoruns returns the autoruns of an autorun log with their
// events. With summary=true only the overview is returned.
func (h *LogHandlerImpl) HandleListAutoruns(c echo.Context) error {
	id := c.Param("sessionId")
	log, err := h.sessionMgr.AutorunLog(id)
	if err != nil {
		return fromDomainError(err, id)
	}
	h.sessionMgr.TouchSession(id)
	if c.QueryParam("summary") == "true" {
		return c.JSON(http.StatusOK, autorunOverviews(log))
	}
	return c.JSON(http.StatusOK, log.Autoruns)
}

func (h *LogHandlerImpl) framesInRange(c echo.Context) (string, int, []models.GuidingFrame, error) {
	id, index, err := sessionIndex(c)
	if err != nil {
		return "", 0, nil, err
	}
	from, err := optionalMillis(c, "from")
	if err != nil {
		return "", 0, nil, err
	}
	to, err := optionalMillis(c, "to")
	if err != nil {
		return "", 0, nil, err
	}
	frames, err := h.sessionMgr.FramesInRange(c.Request().Context(), id, index, from, to)
	if err != nil {
		return "", 0, nil, fromDomainError(err, id)
	}
	h.sessionMgr.TouchSession(id)
	return id, index, frames, nil
}

// Request/Response types

type framesResponse struct {
	SessionID string                `json:"sessionId"`
	Index     int                   `json:"index"`
	Frames    []models.GuidingFrame `json:"frames"`
	Total     int                   `json:"total"`
}

type guidingOverview struct {
	Index           int       `json:"index"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationSeconds float64   `json:"durationSeconds"`
	FrameCount      int       `json:"frameCount"`
	PixelScale      float64   `json:"pixelScale"`
	Camera          string    `json:"camera"`
	Mount           string    `json:"mount"`
	Declination     float64   `json:"declination"`
	HourAngle       float64   `json:"hourAngle"`
	PierSide        string    `json:"pierSide"`
}

func guidingOverviews(log *models.PHDLog) []guidingOverview {
	out := make([]guidingOverview, len(log.GuidingSessions))
	for i := range log.GuidingSessions {
		s := &log.GuidingSessions[i]
		out[i] = guidingOverview{
			Index:           i,
			StartTime:       s.StartTime,
			EndTime:         s.EndTime,
			DurationSeconds: s.Duration().Seconds(),
			FrameCount:      len(s.Frames),
			PixelScale:      s.PixelScale,
			Camera:          s.Camera,
			Mount:           s.Mount,
			Declination:     s.Degrees,
			HourAngle:       s.HourAngle,
			PierSide:        s.PierSide,
		}
	}
	return out
}

type autorunOverview struct {
	Plan               string    `json:"plan"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	DurationSeconds    float64   `json:"durationSeconds"`
	ExposureCount      int       `json:"exposureCount"`
	IntegrationSeconds float64   `json:"integrationSeconds"`
	AutoCenterCount    int       `json:"autoCenterCount"`
	AutoFocusCount     int       `json:"autoFocusCount"`
	DitherCount        int       `json:"ditherCount"`
}

func autorunOverviews(log *models.AutorunLog) []autorunOverview {
	out := make([]autorunOverview, len(log.Autoruns))
	for i := range log.Autoruns {
		a := &log.Autoruns[i]
		out[i] = autorunOverview{
			Plan:               a.Plan,
			StartTime:          a.StartTime,
			EndTime:            a.EndTime,
			DurationSeconds:    a.Duration().Seconds(),
			ExposureCount:      a.ExposureCount(),
			IntegrationSeconds: a.TotalIntegration().Seconds(),
			AutoCenterCount:    len(a.AutoCenterEvents),
			AutoFocusCount:     len(a.AutoFocusEvents),
			DitherCount:        len(a.DitherEvents),
		}
	}
	return out
}

// Helper functions

func sessionIndex(c echo.Context) (string, int, error) {
	id := c.Param("sessionId")
	if id == "" {
		return "", 0, NewValidationError("sessionId")
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return "", 0, NewValidationError("index")
	}
	return id, index, nil
}

func optionalInt(c echo.Context, name string) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewBadRequestError("invalid "+name, err)
	}
	return v, nil
}

func optionalFloat(c echo.Context, name string) (float64, bool, error) {
	s := c.QueryParam(name)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, NewBadRequestError("invalid "+name, err)
	}
	return v, true, nil
}

// optionalMillis reads a Unix-millisecond query parameter; absent means zero.
func optionalMillis(c echo.Context, name string) (time.Time, error) {
	s := c.QueryParam(name)
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, NewBadRequestError("invalid "+name+" time", err)
	}
	return time.UnixMilli(ms), nil
}
