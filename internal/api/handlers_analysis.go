// handlers_analysis.go - Guiding analysis handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/analysis"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/quality"
)

// AnalysisSettings are the configured analysis defaults. Requests may
// override each one.
type AnalysisSettings struct {
	BacklashThreshold float64 // arc-seconds
	PECTablePoints    int
	Latitude          float64 // observer latitude, degrees
}

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	sessionMgr SessionManager
	settings   AnalysisSettings
	metrics    *Metrics
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(sessionMgr SessionManager, settings AnalysisSettings, metrics *Metrics) AnalysisHandler {
	return &AnalysisHandlerImpl{
		sessionMgr: sessionMgr,
		settings:   settings,
		metrics:    metrics,
	}
}

// HandleQuality returns RMS, thresholds, percentiles and a rating
func (h *AnalysisHandlerImpl) HandleQuality(c echo.Context) error {
	gs, err := h.guidingSession(c, "quality")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quality.AnalyzeSession(gs))
}

// HandleDrift returns the drift analysis of a guiding session. Passing
// autorunSessionId correlates drift with that log's autofocus temperatures.
func (h *AnalysisHandlerImpl) HandleDrift(c echo.Context) error {
	gs, err := h.guidingSession(c, "drift")
	if err != nil {
		return err
	}

	var focus []models.AutoFocusEvent
	if autorunID := c.QueryParam("autorunSessionId"); autorunID != "" {
		log, err := h.sessionMgr.AutorunLog(autorunID)
		if err != nil {
			return fromDomainError(err, autorunID)
		}
		for _, a := range log.Autoruns {
			focus = append(focus, a.AutoFocusEvents...)
		}
	}

	return c.JSON(http.StatusOK, analysis.AnalyzeDrift(gs.Frames, gs.PixelScale, focus))
}

// HandleBacklash returns backlash events; threshold is in arc-seconds
func (h *AnalysisHandlerImpl) HandleBacklash(c echo.Context) error {
	gs, err := h.guidingSession(c, "backlash")
	if err != nil {
		return err
	}
	threshold, ok, err := optionalFloat(c, "threshold")
	if err != nil {
		return err
	}
	if !ok {
		threshold = h.settings.BacklashThreshold
	}

	events := analysis.DetectBacklashEvents(gs.Frames, gs.PixelScale, threshold)
	if events == nil {
		events = []analysis.BacklashEvent{}
	}
	return c.JSON(http.StatusOK, backlashResponse{Threshold: threshold, Events: events})
}

// HandlePeriodicError returns the dominant periodic error with a PEC table
func (h *AnalysisHandlerImpl) HandlePeriodicError(c echo.Context) error {
	gs, err := h.guidingSession(c, "periodic")
	if err != nil {
		return err
	}
	points, err := optionalInt(c, "points")
	if err != nil {
		return err
	}
	if points <= 0 {
		points = h.settings.PECTablePoints
	}

	pe := analysis.AnalyzePeriodicError(gs.Frames, gs.PixelScale)
	return c.JSON(http.StatusOK, periodicResponse{
		PeriodicError: pe,
		WormPeriod:    analysis.EstimateWormPeriod(pe.Frequency),
		PECTable:      analysis.GeneratePECTable(pe, points),
	})
}

// HandlePolarAlignment estimates polar alignment error from Dec drift.
// latitude defaults to the observing profile.
func (h *AnalysisHandlerImpl) HandlePolarAlignment(c echo.Context) error {
	gs, err := h.guidingSession(c, "polar")
	if err != nil {
		return err
	}
	lat, ok, err := optionalFloat(c, "latitude")
	if err != nil {
		return err
	}
	if !ok {
		lat = h.settings.Latitude
	}
	if lat < -90 || lat > 90 {
		return NewValidationError("latitude")
	}

	pa := analysis.AnalyzePolarAlignment(gs, lat)
	resp := polarResponse{
		PolarAlignment: pa,
		Score:          analysis.AlignmentQuality(pa.Error.TotalError),
	}
	if c.QueryParam("patterns") == "true" {
		resp.Patterns = analysis.ExtractDriftPatterns(gs)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleCompare compares every guiding session of the log. Sessions from
// other guide logs are appended with repeated "with" parameters.
func (h *AnalysisHandlerImpl) HandleCompare(c echo.Context) error {
	id := c.Param("sessionId")
	ids := append([]string{id}, c.QueryParams()["with"]...)

	var sessions []models.GuidingSession
	for _, sid := range ids {
		log, err := h.sessionMgr.GuidingLog(sid)
		if err != nil {
			return fromDomainError(err, sid)
		}
		sessions = append(sessions, log.GuidingSessions...)
	}
	h.metrics.CountAnalysis("compare")

	return c.JSON(http.StatusOK, analysis.CompareSessions(sessions))
}

func (h *AnalysisHandlerImpl) guidingSession(c echo.Context, name string) (*models.GuidingSession, error) {
	id, index, err := sessionIndex(c)
	if err != nil {
		return nil, err
	}
	gs, err := h.sessionMgr.GuidingSession(id, index)
	if err != nil {
		return nil, fromDomainError(err, id)
	}
	h.sessionMgr.TouchSession(id)
	h.metrics.CountAnalysis(name)
	return gs, nil
}

// Response types

type backlashResponse struct {
	Threshold float64                  `json:"threshold"`
	Events    []analysis.BacklashEvent `json:"events"`
}

type periodicResponse struct {
	analysis.PeriodicError
	WormPeriod float64   `json:"wormPeriod"`
	PECTable   []float64 `json:"pecTable"`
}

type polarResponse struct {
	analysis.PolarAlignment
	Score    float64                 `json:"score"`
	Patterns []analysis.DriftPattern `json:"driftPatterns,omitempty"`
}
