package models

import "fmt"

// ParseError describes a row value that could not be converted.
// It is fatal to the run that hit it.
type ParseError struct {
	Source   string `json:"source,omitempty"`
	Line     int    `json:"line,omitempty"`
	Position int    `json:"position"`
	Field    string `json:"field"`
	Value    string `json:"value"`
	Reason   string `json:"reason"`
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s:%d: %s %q: %s", e.Source, e.Line, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("record %d: %s %q: %s", e.Position, e.Field, e.Value, e.Reason)
}
