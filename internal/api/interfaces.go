// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/tracking"
)

// FileHandler handles uploaded HMI files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// SessionHandler handles merge sessions and record browsing
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetRecords(c echo.Context) error
	HandleGetEvents(c echo.Context) error
}

// EpisodeHandler handles episode analysis and exports
type EpisodeHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleAnalyzeMsgpack(c echo.Context) error
	HandleExportWorkbook(c echo.Context) error
	HandleEpisodePlot(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(files []parser.SourceFile, fileIDs []string) (*models.AnalysisSession, error)
	StartFolderSession(dir string) (*models.AnalysisSession, error)
	GetSession(id string) (*models.AnalysisSession, bool)
	TouchSession(id string) bool
	DeleteSession(id string) bool
	Count() int
	Analyze(ctx context.Context, id string, window models.TimeRange, mask models.ChannelMask) (*tracking.Report, error)
	Records(ctx context.Context, id string, q parser.RecordQuery) ([]models.LogRecord, int, error)
	EventCounts(ctx context.Context, id string) ([]parser.EventCount, error)
}
