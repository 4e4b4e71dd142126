// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agp-analyzer/backend/internal/config"
	"github.com/agp-analyzer/backend/internal/session"
	"github.com/agp-analyzer/backend/internal/storage"
	"github.com/agp-analyzer/backend/internal/upload"
)

// Session manager used by the server
var _ SessionManager = (*session.Manager)(nil)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store          storage.Store
	SessionMgr     SessionManager
	UploadMgr      *upload.Manager
	Profile        *config.Profile
	Zone           *time.Location
	Settings       AnalysisSettings
	OptimizeRounds int
	Metrics        *Metrics
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Upload   UploadHandler
	Parse    ParseHandler
	Logs     LogHandler
	Analysis AnalysisHandler
	Planning PlanningHandler
	Metrics  *Metrics
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Upload:   NewUploadHandler(deps.Store, deps.UploadMgr, deps.Metrics),
		Parse:    NewParseHandler(deps.Store, deps.SessionMgr),
		Logs:     NewLogHandler(deps.SessionMgr),
		Analysis: NewAnalysisHandler(deps.SessionMgr, deps.Settings, deps.Metrics),
		Planning: NewPlanningHandler(deps.Profile, deps.Zone, deps.OptimizeRounds, deps.Metrics),
		Metrics:  deps.Metrics,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// File upload routes
	files := apiGroup.Group("/files")
	files.POST("/upload", handlers.Upload.HandleUploadFile)
	files.POST("/upload/binary", handlers.Upload.HandleUploadBinary)
	files.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	files.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	files.GET("/upload/:jobId/status", handlers.Upload.HandleUploadJobStatus)
	files.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	files.GET("/:id", handlers.Upload.HandleGetFile)
	files.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	files.PUT("/:id", handlers.Upload.HandleRenameFile)

	// Parse session routes
	parse := apiGroup.Group("/parse")
	parse.POST("", handlers.Parse.HandleStartParse)
	parse.GET("/:sessionId/status", handlers.Parse.HandleParseStatus)
	parse.POST("/:sessionId/keepalive", handlers.Parse.HandleSessionKeepAlive)
	parse.GET("/:sessionId/progress", handlers.Parse.HandleParseProgressStream)
	parse.GET("/:sessionId/result", handlers.Parse.HandleParseResult)
	parse.DELETE("/:sessionId", handlers.Parse.HandleDeleteSession)

	// Parsed records
	parse.GET("/:sessionId/autoruns", handlers.Logs.HandleListAutoruns)
	guiding := parse.Group("/:sessionId/guiding")
	guiding.GET("", handlers.Logs.HandleListGuidingSessions)
	guiding.GET("/summaries", handlers.Logs.HandleGetFrameSummaries)
	guiding.GET("/calibrations", handlers.Logs.HandleListCalibrations)
	guiding.GET("/compare", handlers.Analysis.HandleCompare)
	guiding.GET("/:index", handlers.Logs.HandleGetGuidingSession)
	guiding.GET("/:index/frames", handlers.Logs.HandleGetFrames)
	guiding.GET("/:index/frames/msgpack", handlers.Logs.HandleGetFramesMsgpack)

	// Guiding analysis
	guiding.GET("/:index/quality", handlers.Analysis.HandleQuality)
	guiding.GET("/:index/drift", handlers.Analysis.HandleDrift)
	guiding.GET("/:index/backlash", handlers.Analysis.HandleBacklash)
	guiding.GET("/:index/periodic", handlers.Analysis.HandlePeriodicError)
	guiding.GET("/:index/polar", handlers.Analysis.HandlePolarAlignment)

	// Planning
	planning := apiGroup.Group("/planning")
	planning.GET("/profile", handlers.Planning.HandleGetProfile)
	planning.GET("/visibility", handlers.Planning.HandleVisibility)
	planning.GET("/meridian", handlers.Planning.HandleMeridianFlip)
	planning.POST("/schedule", handlers.Planning.HandleSchedule)
	planning.GET("/sky", handlers.Planning.HandleSky)
	planning.POST("/optics", handlers.Planning.HandleOptics)
	planning.POST("/compatibility", handlers.Planning.HandleCompatibility)

	if handlers.Metrics != nil {
		e.GET("/metrics", handlers.Metrics.Handler())
	}
}

// SetupMiddleware configures common middleware. Request logging skips
// status polling, progress streams and metrics scrapes.
func SetupMiddleware(e *echo.Echo, requestLogging bool) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !requestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				path == "/api/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))
}
