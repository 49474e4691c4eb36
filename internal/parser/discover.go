package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ud7-tracker/backend/internal/tracking"
)

var (
	// ErrNoInputFiles means a folder holds no CSV files.
	ErrNoInputFiles = fmt.Errorf("%w: no .csv files found", tracking.ErrInputEmpty)

	// ErrFolderNotFound means the folder to scan does not exist or is a file.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrUnsupportedFile means no parser recognised the file.
	ErrUnsupportedFile = errors.New("no suitable parser found for file")
)

// csvPattern matches HMI exports in either case of extension.
const csvPattern = "*.{csv,CSV}"

// SourceFile is a file to merge: a display name and where it lives on disk.
// ID is set for uploaded files.
type SourceFile struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// DiscoverFiles lists the CSV files directly inside dir, sorted by name.
func DiscoverFiles(dir string) ([]SourceFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFolderNotFound, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a folder", ErrFolderNotFound, dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), csvPattern)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(matches)

	files := make([]SourceFile, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(dir, m)
		if st, err := os.Stat(path); err != nil || st.IsDir() {
			continue
		}
		files = append(files, SourceFile{Name: m, Path: path})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}
	return files, nil
}
