package tracking

import (
	"fmt"
	"time"

	"github.com/ud7-tracker/backend/internal/models"
)

// Report is everything an exporter needs from one analysis run.
type Report struct {
	Window      models.TimeRange      `json:"window"`
	Channels    models.ChannelMask    `json:"-"`
	Episodes    []models.Episode      `json:"-"`
	Tables      []models.EpisodeTable `json:"tables"`
	Diagnostics []models.Diagnostic   `json:"diagnostics"`
}

// Labels returns the table labels, usable as sheet or figure titles.
func (r *Report) Labels() []string {
	labels := make([]string, len(r.Tables))
	for i, t := range r.Tables {
		labels[i] = t.Label
	}
	return labels
}

// SampleCount totals the rows over all tables.
func (r *Report) SampleCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Rows)
	}
	return n
}

// Analyze segments log within window and projects the episodes onto mask.
//
// Hard failures (ErrInputEmpty, *models.ParseError, ErrNoChannelSelected) return
// a nil report. ErrNoEpisodesInWindow comes back with an empty, non-nil report.
func Analyze(log *models.MergedLog, window models.TimeRange, mask models.ChannelMask) (*Report, error) {
	if mask.Empty() {
		return nil, ErrNoChannelSelected
	}
	if log == nil || len(log.Records) == 0 {
		return nil, ErrInputEmpty
	}

	seg, err := Segment(log.Records, window)
	if err != nil {
		return nil, fmt.Errorf("segmenting episodes: %w", err)
	}
	tables, err := Select(seg.Episodes, mask)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Window:      seg.Window,
		Channels:    mask,
		Episodes:    seg.Episodes,
		Tables:      tables,
		Diagnostics: seg.Diagnostics,
	}
	if len(report.Tables) == 0 {
		return report, ErrNoEpisodesInWindow
	}
	return report, nil
}

// DefaultWindow spans the whole log at second resolution, the end rounded up
// by one second so the last record is always inside.
func DefaultWindow(log *models.MergedLog) (models.TimeRange, bool) {
	tr := log.TimeRange()
	if tr == nil {
		return models.TimeRange{}, false
	}
	return models.TimeRange{
		Start: tr.Start.Truncate(time.Second),
		End:   tr.End.Truncate(time.Second).Add(time.Second),
	}, true
}
