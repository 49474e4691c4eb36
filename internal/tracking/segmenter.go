// Package tracking segments merged UD7 HMI logs into tracking episodes.
package tracking

import (
	"fmt"

	"github.com/ud7-tracker/backend/internal/models"
)

// Result is the output of Segment.
type Result struct {
	Window      models.TimeRange    `json:"window"`
	Episodes    []models.Episode    `json:"episodes"`
	Diagnostics []models.Diagnostic `json:"diagnostics"`
}

// Labels returns the episode labels in episode order.
func (r *Result) Labels() []string {
	labels := make([]string, len(r.Episodes))
	for i, ep := range r.Episodes {
		labels[i] = ep.Label
	}
	return labels
}

// Segment partitions records into tracking episodes.
//
// Every start-tracking record whose timestamp lies in window (inclusive, swapped
// if reversed) opens an episode. The episode collects success-marker samples
// until a stop command, an alarm, another start marker or a mode change closes
// it, or the records run out. Records between a terminator and the next start
// marker belong to no episode.
//
// A malformed channel value on a sample row aborts the call with a
// *models.ParseError. Abnormal terminations are reported as diagnostics.
func Segment(records []models.LogRecord, window models.TimeRange) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrInputEmpty
	}
	window = window.Normalized()

	var starts []int
	for i, rec := range records {
		if rec.IsStartTrack() && window.Contains(rec.Timestamp) {
			starts = append(starts, i)
		}
	}

	res := &Result{
		Window:      window,
		Episodes:    make([]models.Episode, 0, len(starts)),
		Diagnostics: make([]models.Diagnostic, 0),
	}
	for _, start := range starts {
		ep, err := scanEpisode(records, start)
		if err != nil {
			return nil, err
		}
		res.Episodes = append(res.Episodes, ep)
		if ep.Diagnostic != nil {
			res.Diagnostics = append(res.Diagnostics, *ep.Diagnostic)
		}
	}
	return res, nil
}

// scanEpisode walks forward from the start marker at index start.
func scanEpisode(records []models.LogRecord, start int) (models.Episode, error) {
	ep := models.Episode{
		Label:       episodeLabel(records, start),
		Start:       records[start].Position,
		End:         records[len(records)-1].Position,
		Samples:     make([]models.Sample, 0),
		Termination: models.TerminationEndOfLog,
	}

	// lastClaimed is the index of the last record owned by this episode.
	lastClaimed := start
	for n := start + 1; n < len(records); n++ {
		rec := records[n]
		switch {
		case rec.IsTrackSuccess():
			s, err := rec.Sample()
			if err != nil {
				return ep, err
			}
			ep.Samples = append(ep.Samples, s)
			lastClaimed = n
			continue
		case rec.IsStopCommand():
			ep.Termination = models.TerminationStopped
		case rec.IsAlarm():
			ep.Termination = models.TerminationAlarm
		case rec.IsStartTrack():
			ep.Termination = models.TerminationUncleanShutdown
		case rec.IsModeReady():
			ep.Termination = models.TerminationModeChange
		default:
			continue
		}
		ep.End = rec.Position
		if ep.Termination.Abnormal() {
			ep.Diagnostic = newDiagnostic(ep, diagnosticAt(records, n, lastClaimed))
		}
		break
	}
	return ep, nil
}

func episodeLabel(records []models.LogRecord, start int) string {
	ref := records[start]
	if start+1 < len(records) {
		ref = records[start+1]
	}
	return ref.Timestamp.Format(models.LabelLayout)
}

var diagnosticFormats = map[models.Termination]string{
	models.TerminationAlarm:           "driver tracking alarm: %s",
	models.TerminationUncleanShutdown: "driver or HMI did not shut down normally: %s",
	models.TerminationModeChange:      "operating mode switch interrupted tracking: %s",
}

// diagnosticAt picks the record a diagnostic points at. An unclean shutdown
// is located right after the last record the episode claimed.
func diagnosticAt(records []models.LogRecord, terminator, lastClaimed int) models.LogRecord {
	if records[terminator].IsStartTrack() {
		return records[lastClaimed+1]
	}
	return records[terminator]
}

func newDiagnostic(ep models.Episode, at models.LogRecord) *models.Diagnostic {
	return &models.Diagnostic{
		Kind:     ep.Termination,
		Episode:  ep.Label,
		Position: at.Position,
		At:       at.Timestamp,
		Message:  fmt.Sprintf(diagnosticFormats[ep.Termination], at.RawTimestamp),
	}
}
