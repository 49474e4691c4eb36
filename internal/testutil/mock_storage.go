// mock_storage.go - Disk-backed mock storage for handler and session tests
package testutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/storage"
)

// MockStorage implements storage.Store with predictable IDs. Files are written
// to dir so the merge can read them back like real uploads.
type MockStorage struct {
	mu      sync.RWMutex
	dir     string
	files   map[string]*models.FileInfo
	nextID  int
	SaveErr error // returned by Save when set
}

// NewMockStorage creates a mock storage writing into dir.
func NewMockStorage(dir string) *MockStorage {
	return &MockStorage{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("test-id-%d", m.nextID)
	m.mu.Unlock()

	return m.AddFile(id, name, data), nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return file, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]*models.FileInfo, 0, len(m.files))
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	os.Remove(m.path(id))
	delete(m.files, id)
	return nil
}

func (m *MockStorage) SetStatus(id string, status models.FileStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	file.Status, file.Message = status, message
	return nil
}

// GetFilePath returns the actual file path on disk
func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return m.path(id), nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// AddFile writes the file to disk and registers it under id.
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.WriteFile(m.path(id), data, 0644); err != nil {
		panic(fmt.Sprintf("failed to write test file: %v", err))
	}
	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     models.FileStatusUploaded,
	}
	m.files[id] = file
	return file
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *MockStorage) path(id string) string {
	return filepath.Join(m.dir, id)
}
