// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/parser"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ParseHandler handles parsing session operations
type ParseHandler interface {
	HandleStartParse(c echo.Context) error
	HandleParseStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleParseProgressStream(c echo.Context) error
	HandleParseResult(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// LogHandler serves the parsed records of a complete session
type LogHandler interface {
	HandleListGuidingSessions(c echo.Context) error
	HandleGetGuidingSession(c echo.Context) error
	HandleGetFrames(c echo.Context) error
	HandleGetFramesMsgpack(c echo.Context) error
	HandleGetFrameSummaries(c echo.Context) error
	HandleListCalibrations(c echo.Context) error
	HandleListAutoruns(c echo.Context) error
}

// AnalysisHandler runs the guiding analyses over a parsed session
type AnalysisHandler interface {
	HandleQuality(c echo.Context) error
	HandleDrift(c echo.Context) error
	HandleBacklash(c echo.Context) error
	HandlePeriodicError(c echo.Context) error
	HandlePolarAlignment(c echo.Context) error
	HandleCompare(c echo.Context) error
}

// PlanningHandler answers visibility and scheduling questions for the
// observing profile
type PlanningHandler interface {
	HandleGetProfile(c echo.Context) error
	HandleVisibility(c echo.Context) error
	HandleMeridianFlip(c echo.Context) error
	HandleSchedule(c echo.Context) error
	HandleSky(c echo.Context) error
	HandleOptics(c echo.Context) error
	HandleCompatibility(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileID, filePath string) (*models.ParseSession, error)
	GetSession(id string) (*models.ParseSession, bool)
	TouchSession(id string) bool
	DeleteSession(id string) bool
	GetResult(id string) (*models.ParsedLog, error)
	GuidingLog(id string) (*models.PHDLog, error)
	AutorunLog(id string) (*models.AutorunLog, error)
	GuidingSession(id string, index int) (*models.GuidingSession, error)
	FramesInRange(ctx context.Context, id string, index int, from, to time.Time) ([]models.GuidingFrame, error)
	Summaries(ctx context.Context, id string) ([]parser.SessionSummary, bool, error)
}
