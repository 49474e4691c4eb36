// handlers_sessions.go - Merge session and record browsing handlers
package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/storage"
)

const (
	defaultRecordLimit = 200
	maxRecordLimit     = 1000
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store        storage.Store
	sessions     SessionManager
	allowFolders bool
}

// NewSessionHandler creates a new session handler. allowFolders enables
// sessions over a server-side folder.
func NewSessionHandler(store storage.Store, sessions SessionManager, allowFolders bool) SessionHandler {
	return &SessionHandlerImpl{
		store:        store,
		sessions:     sessions,
		allowFolders: allowFolders,
	}
}

// HandleCreateSession starts merging uploaded files or a server folder
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	var (
		sess *models.AnalysisSession
		err  error
	)
	if req.Folder != "" {
		if !h.allowFolders {
			return NewForbiddenError("folder sessions are disabled")
		}
		sess, err = h.sessions.StartFolderSession(req.Folder)
	} else {
		files, apiErr := h.resolveFiles(req.FileIDs)
		if apiErr != nil {
			return apiErr
		}
		sess, err = h.sessions.StartSession(files, req.FileIDs)
	}
	if err != nil {
		return startError(err)
	}

	logger.Get(c.Request().Context()).Infof("[Sessions] Started %s", sess.ID)
	return c.JSON(http.StatusAccepted, sess)
}

// HandleGetSession returns session status, time range and default window
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleDeleteSession drops a session and its record store
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.DeleteSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive marks a session as in use
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetRecords returns merged records, filtered by window and event text
func (h *SessionHandlerImpl) HandleGetRecords(c echo.Context) error {
	id := c.Param("id")
	q, apiErr := buildRecordQuery(c)
	if apiErr != nil {
		return apiErr
	}

	records, total, err := h.sessions.Records(c.Request().Context(), id, q)
	if err != nil {
		return sessionError(id, err)
	}
	return c.JSON(http.StatusOK, recordsResponse{
		Records: records,
		Total:   total,
		Offset:  q.Offset,
		Limit:   q.Limit,
	})
}

// HandleGetEvents returns how often each event text occurs
func (h *SessionHandlerImpl) HandleGetEvents(c echo.Context) error {
	id := c.Param("id")
	counts, err := h.sessions.EventCounts(c.Request().Context(), id)
	if err != nil {
		return sessionError(id, err)
	}
	return c.JSON(http.StatusOK, counts)
}

// Request/Response types

type createSessionRequest struct {
	FileIDs []string `json:"fileIds"`
	Folder  string   `json:"folder"`
}

func (r *createSessionRequest) validate() error {
	r.Folder = strings.TrimSpace(r.Folder)
	if r.Folder == "" && len(r.FileIDs) == 0 {
		return NewValidationError("fileIds")
	}
	if r.Folder != "" && len(r.FileIDs) > 0 {
		return NewBadRequestError("give either fileIds or folder, not both", nil)
	}
	return nil
}

type recordsResponse struct {
	Records []models.LogRecord `json:"records"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
	Limit   int                `json:"limit"`
}

// Helper methods

// resolveFiles maps upload ids to source files, ordered by file name so an
// upload set merges the same way as the folder holding it.
func (h *SessionHandlerImpl) resolveFiles(fileIDs []string) ([]parser.SourceFile, *APIError) {
	files := make([]parser.SourceFile, 0, len(fileIDs))
	for _, fid := range fileIDs {
		info, err := h.store.Get(fid)
		if err != nil {
			return nil, fileError(fid, err)
		}
		path, err := h.store.GetFilePath(fid)
		if err != nil {
			return nil, fileError(fid, err)
		}
		files = append(files, parser.SourceFile{ID: fid, Name: info.Name, Path: path})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func buildRecordQuery(c echo.Context) (parser.RecordQuery, *APIError) {
	q := parser.RecordQuery{
		Event: c.QueryParam("event"),
		Limit: defaultRecordLimit,
	}
	for _, b := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		raw := c.QueryParam(b.name)
		if raw == "" {
			continue
		}
		t, err := parser.ParseWindowBound(raw)
		if err != nil {
			return q, NewBadRequestError("invalid "+b.name, err)
		}
		*b.dst = &t
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, NewValidationError("offset")
		}
		q.Offset = n
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecordLimit {
			return q, NewValidationError("limit")
		}
		q.Limit = n
	}
	return q, nil
}
