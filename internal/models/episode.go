package models

import "time"

// SampleHeader names the columns of a full sample row.
var SampleHeader = []string{"Timestamp", "FREQ", "IFB", "VFB"}

// LabelLayout formats an episode label, e.g. Track_2024-10-22_15.52.13.
const LabelLayout = "Track_2006-01-02_15.04.05"

// Sample is one tracking measurement taken from a success-marker row.
type Sample struct {
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	Frequency int       `json:"freq"`
	Current   int       `json:"ifb"`
	Power     int       `json:"vfb"`
}

// Termination says how a tracking episode ended.
type Termination string

const (
	TerminationStopped         Termination = "stopped"
	TerminationAlarm           Termination = "alarm"
	TerminationUncleanShutdown Termination = "unclean_shutdown"
	TerminationModeChange      Termination = "mode_change"
	TerminationEndOfLog        Termination = "end_of_log"
)

// Abnormal reports whether the termination produces a diagnostic.
func (t Termination) Abnormal() bool {
	switch t {
	case TerminationAlarm, TerminationUncleanShutdown, TerminationModeChange:
		return true
	}
	return false
}

// Diagnostic is a finding about an abnormally terminated episode.
type Diagnostic struct {
	Kind     Termination `json:"kind"`
	Episode  string      `json:"episode"`
	Position int         `json:"position"`
	At       time.Time   `json:"at"`
	Message  string      `json:"message"`
}

// Episode is one tracking run between a start marker and its terminator.
type Episode struct {
	Label       string      `json:"label"`
	Start       int         `json:"start"`
	End         int         `json:"end"`
	Samples     []Sample    `json:"samples"`
	Termination Termination `json:"termination"`
	Diagnostic  *Diagnostic `json:"diagnostic,omitempty"`
}

// TableRow is a sample reduced to the selected channels.
type TableRow struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Values    []int     `json:"values" msgpack:"values"`
}

// EpisodeTable is an episode projected onto a channel selection.
type EpisodeTable struct {
	Label       string      `json:"label" msgpack:"label"`
	Channels    ChannelMask `json:"-" msgpack:"-"`
	Header      []string    `json:"header" msgpack:"header"`
	Rows        []TableRow  `json:"rows" msgpack:"rows"`
	Termination Termination `json:"termination" msgpack:"termination"`
	Diagnostic  *Diagnostic `json:"diagnostic,omitempty" msgpack:"diagnostic,omitempty"`
}

// Cells returns the table as a list of rows with the header first.
func (t EpisodeTable) Cells() [][]interface{} {
	cells := make([][]interface{}, 0, len(t.Rows)+1)
	header := make([]interface{}, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	cells = append(cells, header)
	for _, r := range t.Rows {
		row := make([]interface{}, 0, len(r.Values)+1)
		row = append(row, r.Timestamp)
		for _, v := range r.Values {
			row = append(row, v)
		}
		cells = append(cells, row)
	}
	return cells
}

// Column returns the values of the i-th selected channel.
func (t EpisodeTable) Column(i int) []int {
	out := make([]int, len(t.Rows))
	for j, r := range t.Rows {
		out[j] = r.Values[i]
	}
	return out
}
