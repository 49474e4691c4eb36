package models

import "time"

// MergedLog is the ordered record sequence built from one set of HMI files.
type MergedLog struct {
	Header  []string    `json:"header"`
	Records []LogRecord `json:"records"`
	Files   []string    `json:"files"`
	Skipped []string    `json:"skipped,omitempty"`
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Normalized returns the range with Start <= End.
func (r TimeRange) Normalized() TimeRange {
	if r.End.Before(r.Start) {
		return TimeRange{Start: r.End, End: r.Start}
	}
	return r
}

// Contains reports whether t lies within the range, both ends inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// NewMergedLog creates a new empty MergedLog.
func NewMergedLog() *MergedLog {
	return &MergedLog{
		Records: make([]LogRecord, 0),
		Files:   make([]string, 0),
	}
}

// TimeRange spans the first and last record, or nil for an empty log.
func (l *MergedLog) TimeRange() *TimeRange {
	if l == nil || len(l.Records) == 0 {
		return nil
	}
	return &TimeRange{
		Start: l.Records[0].Timestamp,
		End:   l.Records[len(l.Records)-1].Timestamp,
	}
}
