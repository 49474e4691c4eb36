package parser

import (
	"errors"
	"fmt"

	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/tracking"
)

// MergeFiles parses files in order and concatenates their records into one log.
// It handles:
// 1. Skipping files whose header names no channel tag (and empty files)
// 2. Dropping every file's header row; the first one becomes the merged header
// 3. Renumbering record positions across the whole sequence
//
// A malformed row in any merged file aborts the merge with its *models.ParseError.
func MergeFiles(registry *Registry, files []SourceFile, onProgress ProgressCallback) (*models.MergedLog, error) {
	if registry == nil {
		registry = GetGlobalRegistry()
	}
	log := logger.L()
	merged := models.NewMergedLog()

	for i, f := range files {
		p, err := registry.FindParser(f.Path)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedFile) {
				return nil, err
			}
			log.Warnf("[Merge] skipping %s: header has no FREQ/IFB/VFB column", f.Name)
			merged.Skipped = append(merged.Skipped, f.Name)
			reportProgress(onProgress, i+1, len(files))
			continue
		}

		offset := len(merged.Records)
		parsed, err := p.Parse(f.Path)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, withSource(err, f.Name, offset))
		}
		if merged.Header == nil {
			merged.Header = parsed.Header
		}

		for _, rec := range parsed.Records {
			rec.Position = offset + rec.Position
			rec.Source = f.Name
			merged.Records = append(merged.Records, rec)
		}
		merged.Files = append(merged.Files, f.Name)
		log.Debugf("[Merge] %s: %d records", f.Name, len(parsed.Records))
		reportProgress(onProgress, i+1, len(files))
	}

	if len(merged.Records) == 0 {
		return merged, fmt.Errorf("%w: %d file(s) merged, %d skipped", tracking.ErrInputEmpty, len(merged.Files), len(merged.Skipped))
	}
	return merged, nil
}

// MergeFolder discovers and merges every CSV file directly inside dir.
func MergeFolder(dir string, onProgress ProgressCallback) (*models.MergedLog, error) {
	files, err := DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	return MergeFiles(nil, files, onProgress)
}

// withSource swaps a storage path in a parse error for the display name and
// shifts its position into the merged sequence.
func withSource(err error, name string, offset int) error {
	var perr *models.ParseError
	if errors.As(err, &perr) {
		perr.Source = name
		perr.Position += offset
	}
	return err
}

func reportProgress(cb ProgressCallback, done, total int) {
	if cb != nil {
		cb(done, total)
	}
}
