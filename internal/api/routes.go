// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store               storage.Store
	Sessions            SessionManager
	AllowFolderSessions bool
	DefaultChannels     models.ChannelMask
	WorkbookName        string
	Version             string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Files    FileHandler
	Sessions SessionHandler
	Episodes EpisodeHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Sessions),
		Files:    NewFileHandler(deps.Store),
		Sessions: NewSessionHandler(deps.Store, deps.Sessions, deps.AllowFolderSessions),
		Episodes: NewEpisodeHandler(deps.Sessions, deps.DefaultChannels, deps.WorkbookName),
	}
}

// RegisterRoutes registers all API routes with the Echo instance.
// uploadLimit caps multipart uploads, e.g. "512M"; empty means no extra limit.
func RegisterRoutes(e *echo.Echo, handlers *Handlers, uploadLimit string) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Uploaded files
	filesGroup := apiGroup.Group("/files")
	if uploadLimit != "" {
		filesGroup.POST("/upload", handlers.Files.HandleUploadFile, middleware.BodyLimit(uploadLimit))
	} else {
		filesGroup.POST("/upload", handlers.Files.HandleUploadFile)
	}
	filesGroup.GET("/recent", handlers.Files.HandleGetRecentFiles)
	filesGroup.GET("/:id", handlers.Files.HandleGetFile)
	filesGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Sessions.HandleCreateSession)
	sessionGroup.GET("/:id", handlers.Sessions.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Sessions.HandleDeleteSession)
	sessionGroup.POST("/:id/keepalive", handlers.Sessions.HandleSessionKeepAlive)
	sessionGroup.GET("/:id/records", handlers.Sessions.HandleGetRecords)
	sessionGroup.GET("/:id/events", handlers.Sessions.HandleGetEvents)

	// Episodes
	sessionGroup.POST("/:id/episodes", handlers.Episodes.HandleAnalyze)
	sessionGroup.POST("/:id/episodes/msgpack", handlers.Episodes.HandleAnalyzeMsgpack)
	sessionGroup.GET("/:id/episodes/:index/plot", handlers.Episodes.HandleEpisodePlot)
	sessionGroup.POST("/:id/export", handlers.Episodes.HandleExportWorkbook)
}

// RegisterMetricsRoute exposes the prometheus registry at /metrics
func RegisterMetricsRoute(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// MiddlewareOptions selects the optional middleware
type MiddlewareOptions struct {
	RequestLogging bool
	EnableCORS     bool
	AllowOrigins   string // comma separated
	BodyLimit      string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.L().Errorf("[API] PANIC recovered on %s: %v\n%s", c.Path(), err, stack)
			return err
		},
	}))

	if opts.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" || path == "/metrics"
			},
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				logger.L().Infof("[HTTP] %s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond))
				return nil
			},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCORS {
		origins := strings.Split(opts.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}))
	}
}
