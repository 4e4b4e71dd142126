package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agp-analyzer/backend/internal/api"
	"github.com/agp-analyzer/backend/internal/config"
	"github.com/agp-analyzer/backend/internal/parser"
	"github.com/agp-analyzer/backend/internal/session"
	"github.com/agp-analyzer/backend/internal/storage"
	"github.com/agp-analyzer/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "agp-analyzer.config.xml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.Analysis.ProfilePath)
	if err != nil {
		fmt.Printf("Failed to load observing profile: %v\n", err)
		os.Exit(1)
	}

	// LoadConfig has already validated the zone
	zone, _ := cfg.Location()

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	var metrics *api.Metrics
	if cfg.Advanced.EnableMetrics {
		metrics = api.NewMetrics()
	}

	// Initialize session manager
	sessionMgr := session.NewManagerWithRegistry(cfg.Storage.FrameStoreDirectory, parser.NewRegistryInLocation(zone))
	sessionMgr.SetMaxSessions(cfg.Processing.MaxSessions)
	if metrics != nil {
		sessionMgr.SetObserver(metrics.ObserveParse)
	}
	defer sessionMgr.Close()

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(fileStore)

	// Start background session and upload job cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(cfg.SessionTimeout())
			uploadMgr.CleanupOldJobs(cfg.SessionTimeout())
		}
	}()

	e := echo.New()
	e.HideBanner = true

	api.SetupMiddleware(e, cfg.Advanced.EnableRequestLogging)

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/progress") ||
				strings.Contains(path, "/upload") ||
				strings.HasSuffix(path, "/schedule") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout - analysis took too long",
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:      fileStore,
		SessionMgr: sessionMgr,
		UploadMgr:  uploadMgr,
		Profile:    profile,
		Zone:       zone,
		Settings: api.AnalysisSettings{
			BacklashThreshold: cfg.Analysis.BacklashThreshold,
			PECTablePoints:    cfg.Analysis.PECTablePoints,
			Latitude:          profile.Observer.Latitude,
		},
		OptimizeRounds: cfg.Analysis.OptimizeRounds,
		Metrics:        metrics,
		Version:        Version,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           AGP Guiding Log Analyzer                        ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Time Zone:  %-45s║\n", zone.String())
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Profile:   %-46s║\n", cfg.Analysis.ProfilePath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
