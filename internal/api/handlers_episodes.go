// handlers_episodes.go - Episode analysis and export handlers
package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/export"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/metrics"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/tracking"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	mimeMsgpack = "application/msgpack"
	mimeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// EpisodeHandlerImpl implements the EpisodeHandler interface
type EpisodeHandlerImpl struct {
	sessions        SessionManager
	defaultChannels models.ChannelMask
	workbookName    string
}

// NewEpisodeHandler creates a new episode handler. An empty channel mask
// falls back to FREQ and IFB, an empty workbook name to the default file name.
func NewEpisodeHandler(sessions SessionManager, defaultChannels models.ChannelMask, workbookName string) EpisodeHandler {
	if defaultChannels.Empty() {
		defaultChannels = models.DefaultChannelMask
	}
	if workbookName == "" {
		workbookName = export.DefaultWorkbookName
	}
	return &EpisodeHandlerImpl{
		sessions:        sessions,
		defaultChannels: defaultChannels,
		workbookName:    workbookName,
	}
}

// HandleAnalyze segments the session within a window and returns the tables
func (h *EpisodeHandlerImpl) HandleAnalyze(c echo.Context) error {
	resp, err := h.analyzeBody(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleAnalyzeMsgpack is HandleAnalyze with a MessagePack body
func (h *EpisodeHandlerImpl) HandleAnalyzeMsgpack(c echo.Context) error {
	resp, err := h.analyzeBody(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(resp); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, mimeMsgpack, buf.Bytes())
}

// HandleExportWorkbook analyzes the window and returns the XLSX workbook.
// A window without episodes answers with the JSON analysis instead.
func (h *EpisodeHandlerImpl) HandleExportWorkbook(c echo.Context) error {
	resp, err := h.analyzeBody(c)
	if err != nil {
		return err
	}
	if len(resp.Tables) == 0 {
		return c.JSON(http.StatusOK, resp)
	}

	var buf bytes.Buffer
	if err := export.WriteWorkbook(&buf, resp.Tables); err != nil {
		return NewInternalError("failed to build workbook", err)
	}
	metrics.ObserveExport("xlsx")
	logger.Get(c.Request().Context()).Infof("[Export] Workbook with %d sheets for session %s", len(resp.Tables), c.Param("id"))

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", h.workbookName))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

// HandleEpisodePlot renders one episode of the window as a PNG line plot
func (h *EpisodeHandlerImpl) HandleEpisodePlot(c echo.Context) error {
	id := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return NewValidationError("index")
	}

	req := analyzeRequest{
		Start: c.QueryParam("start"),
		End:   c.QueryParam("end"),
	}
	if raw := c.QueryParam("channels"); raw != "" {
		req.Channels = strings.Split(raw, ",")
	}
	resp, apiErr := h.analyze(c, id, req)
	if apiErr != nil {
		return apiErr
	}
	if index >= len(resp.Tables) {
		return NewNotFoundError("episode", strconv.Itoa(index))
	}

	var buf bytes.Buffer
	if err := export.RenderPlot(&buf, resp.Tables[index]); err != nil {
		if errors.Is(err, export.ErrNotEnoughSamples) {
			return &APIError{
				Status:  http.StatusUnprocessableEntity,
				Code:    "PLOT_UNAVAILABLE",
				Message: err.Error(),
			}
		}
		return NewInternalError("failed to render plot", err)
	}
	metrics.ObserveExport("png")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// Request/Response types

type analyzeRequest struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Channels []string `json:"channels"`
}

type episodesResponse struct {
	Window      models.TimeRange      `json:"window"`
	Channels    []string              `json:"channels"`
	Labels      []string              `json:"labels"`
	Tables      []models.EpisodeTable `json:"tables"`
	Diagnostics []models.Diagnostic   `json:"diagnostics"`
	Message     string                `json:"message,omitempty"`
}

// Helper methods

func (h *EpisodeHandlerImpl) analyzeBody(c echo.Context) (*episodesResponse, error) {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return nil, NewBadRequestError("invalid request body", err)
	}
	resp, apiErr := h.analyze(c, c.Param("id"), req)
	if apiErr != nil {
		return nil, apiErr
	}
	return resp, nil
}

func (h *EpisodeHandlerImpl) analyze(c echo.Context, id string, req analyzeRequest) (*episodesResponse, *APIError) {
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}

	mask := h.defaultChannels
	if len(req.Channels) > 0 {
		m, err := models.ParseChannels(req.Channels)
		if err != nil {
			return nil, NewBadRequestError("invalid channels", err)
		}
		mask = m
	}
	if mask.Empty() {
		return nil, NewValidationError("channels")
	}

	window, apiErr := resolveWindow(req, sess.DefaultWindow)
	if apiErr != nil {
		return nil, apiErr
	}

	report, err := h.sessions.Analyze(c.Request().Context(), id, window, mask)
	noEpisodes := errors.Is(err, tracking.ErrNoEpisodesInWindow)
	if err != nil && !noEpisodes {
		return nil, sessionError(id, err)
	}

	resp := &episodesResponse{
		Window:      report.Window,
		Channels:    mask.Tags(),
		Labels:      report.Labels(),
		Tables:      report.Tables,
		Diagnostics: report.Diagnostics,
	}
	if resp.Tables == nil {
		resp.Tables = []models.EpisodeTable{}
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []models.Diagnostic{}
	}
	if noEpisodes {
		resp.Message = tracking.ErrNoEpisodesInWindow.Error()
	}
	return resp, nil
}

// resolveWindow fills missing bounds from the session's default window.
func resolveWindow(req analyzeRequest, def *models.TimeRange) (models.TimeRange, *APIError) {
	var window models.TimeRange
	if def != nil {
		window = *def
	}
	if req.Start != "" {
		t, err := parser.ParseWindowBound(req.Start)
		if err != nil {
			return window, NewBadRequestError("invalid start", err)
		}
		window.Start = t
	}
	if req.End != "" {
		t, err := parser.ParseWindowBound(req.End)
		if err != nil {
			return window, NewBadRequestError("invalid end", err)
		}
		window.End = t
	}
	return window, nil
}
