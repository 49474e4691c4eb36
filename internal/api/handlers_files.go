// handlers_files.go - Uploaded HMI file handlers
package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/storage"
)

const recentFilesLimit = 20

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store storage.Store
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store) FileHandler {
	return &FileHandlerImpl{store: store}
}

// HandleUploadFile accepts one CSV export as multipart/form-data field "file"
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if !isCSVName(file.Filename) {
		return NewBadRequestError("only .csv files are accepted", nil)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(filepath.Base(file.Filename), src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	logger.Get(c.Request().Context()).Infof("[Files] Stored %s as %s (%d bytes)", info.Name, info.ID, info.Size)

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns the most recently uploaded files
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	files, err := h.store.List(recentFilesLimit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return fileError(id, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes an uploaded file. Sessions already merged from it
// keep their records.
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return fileError(id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func isCSVName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
