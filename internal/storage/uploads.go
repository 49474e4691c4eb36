// Package storage keeps uploaded HMI exports on disk until sessions merge them.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
)

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// Store holds uploaded HMI CSV exports and the outcome of their last merge.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
	SetStatus(id string, status models.FileStatus, message string) error
}

// UploadStore keeps every upload in one directory under a uuid, with its
// metadata in memory. The FileInfo values it hands out are copies.
type UploadStore struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*models.FileInfo
}

// NewUploadStore creates dir if needed and returns an empty store over it.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &UploadStore{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}, nil
}

// Save stores r under a fresh ID and classifies it by its header row. Files
// without a channel column are kept but flagged, since a merge skips them.
func (s *UploadStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.NewString()
	path := s.path(id)

	size, err := writeFile(path, r)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	info := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		UploadedAt: time.Now(),
		Status:     models.FileStatusUploaded,
	}
	inspectHeader(info, path)

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()
	return clone(info), nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return size, nil
}

// inspectHeader records the channel tags of the stored file, or flags it.
func inspectHeader(info *models.FileInfo, path string) {
	f, err := os.Open(path)
	if err != nil {
		info.Status, info.Message = models.FileStatusError, err.Error()
		return
	}
	defer f.Close()

	header, err := parser.ReadHeader(f)
	switch {
	case err != nil:
		info.Status, info.Message = models.FileStatusError, fmt.Sprintf("reading header: %v", err)
	case !parser.HasChannelTag(header):
		info.Status, info.Message = models.FileStatusNoChannels, "header has no FREQ/IFB/VFB column"
	default:
		info.Channels = parser.ChannelTags(header)
	}
}

// Get returns the metadata of one upload.
func (s *UploadStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(info), nil
}

// List returns the most recent uploads first. limit <= 0 returns all.
func (s *UploadStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, clone(info))
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b *models.FileInfo) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// SetStatus records the outcome of a merge for one upload.
func (s *UploadStore) SetStatus(id string, status models.FileStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	info.Status, info.Message = status, message
	return nil
}

// Delete removes an upload and its file.
func (s *UploadStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	delete(s.files, id)
	return nil
}

// GetFilePath returns where an upload lives on disk.
func (s *UploadStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.path(id), nil
}

func (s *UploadStore) path(id string) string {
	return filepath.Join(s.dir, id)
}

func clone(info *models.FileInfo) *models.FileInfo {
	c := *info
	c.Channels = slices.Clone(info.Channels)
	return &c
}
