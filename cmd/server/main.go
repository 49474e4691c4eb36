package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/api"
	"github.com/ud7-tracker/backend/internal/config"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/session"
	"github.com/ud7-tracker/backend/internal/storage"
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
	configPath := filepath.Join(filepath.Dir(exePath), config.FileName)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LoggerConfig())
	defer logger.Sync()
	log := logger.L()

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}

	fileStore, err := storage.NewUploadStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	sessionMgr := session.NewManager(session.Options{
		TempDir:      cfg.Storage.TempDirectory,
		MaxSessions:  cfg.Processing.MaxSessions,
		StoreOptions: cfg.StoreOptions(),
		Files:        fileStore,
	})
	defer sessionMgr.Close()

	defaultChannels, err := models.ParseChannels(strings.Split(cfg.Processing.DefaultChannels, ","))
	if err != nil {
		log.Warnf("Invalid DefaultChannels %q, using FREQ,IFB: %v", cfg.Processing.DefaultChannels, err)
		defaultChannels = models.DefaultChannelMask
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go cleanupLoop(ctx, sessionMgr,
		time.Duration(cfg.Processing.CleanupIntervalMinutes)*time.Minute,
		time.Duration(cfg.Processing.SessionTimeoutMinutes)*time.Minute)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, api.MiddlewareOptions{
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:               fileStore,
		Sessions:            sessionMgr,
		AllowFolderSessions: cfg.Processing.AllowFolderSessions,
		DefaultChannels:     defaultChannels,
		WorkbookName:        cfg.Export.WorkbookName,
		Version:             Version,
	}), cfg.Storage.MaxUploadSize)
	if cfg.Advanced.EnableMetrics {
		api.RegisterMetricsRoute(e)
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Infof("UD7 Tracker %s (built %s)", Version, BuildTime)
	log.Infof("Config:   %s", configPath)
	log.Infof("Listen:   http://%s", cfg.GetServerAddr())
	log.Infof("Data Dir: %s", cfg.Storage.DataDirectory)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Shutdown failed: %v", err)
	}
}

// cleanupLoop drops sessions idle for longer than maxAge until ctx ends.
func cleanupLoop(ctx context.Context, mgr *session.Manager, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mgr.CleanupOldSessions(maxAge); n > 0 {
				logger.L().Infof("[Manager] Cleaned up %d idle sessions", n)
			}
		}
	}
}
