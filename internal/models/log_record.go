// Package models contains domain types for the UD7 HMI tracking analyzer.
package models

import (
	"strconv"
	"strings"
	"time"
)

// Event phrases written by the UD7 HMI into the event column.
const (
	EventStartTrack   = "Mode/Status changed to: UD7_Stutas_StartTrack"
	EventTrackSuccess = "Status updated: ModeStatus=52. Errorcode=0"
	EventStopCommand  = "User operation: User Send Stop UD7 Command."
	EventAlarmPrefix  = "UD7 Alarm"
	EventModeReady    = "Mode/Status changed to: UD7_Stutas_Ready"
)

// CSV column layout of an HMI log row.
const (
	ColumnTimestamp = 1
	ColumnEvent     = 5
	ColumnPower     = 6
	ColumnCurrent   = 7
	ColumnFrequency = 8
)

// MinRecordFields is the number of columns a row needs to carry a timestamp and an event.
const MinRecordFields = ColumnEvent + 1

// LogRecord is one data row of a merged HMI log.
type LogRecord struct {
	Position     int       `json:"position"`
	Source       string    `json:"source,omitempty"`
	Line         int       `json:"line,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	RawTimestamp string    `json:"rawTimestamp"`
	Event        string    `json:"event"`
	Power        string    `json:"power,omitempty"`
	Current      string    `json:"current,omitempty"`
	Frequency    string    `json:"frequency,omitempty"`
}

// IsStartTrack reports whether the record opens a tracking episode.
func (r LogRecord) IsStartTrack() bool { return r.Event == EventStartTrack }

// IsTrackSuccess reports whether the record is a tracking sample row.
func (r LogRecord) IsTrackSuccess() bool { return r.Event == EventTrackSuccess }

// IsStopCommand reports whether the operator stopped the driver.
func (r LogRecord) IsStopCommand() bool { return r.Event == EventStopCommand }

// IsAlarm reports whether the record is a driver alarm of any kind.
func (r LogRecord) IsAlarm() bool { return strings.HasPrefix(r.Event, EventAlarmPrefix) }

// IsModeReady reports whether the HMI switched back to ready mode.
func (r LogRecord) IsModeReady() bool { return r.Event == EventModeReady }

// Sample converts the channel columns into a Sample.
// Missing or non-integer values produce a *ParseError.
func (r LogRecord) Sample() (Sample, error) {
	power, err := r.channelValue(ChannelPower, r.Power)
	if err != nil {
		return Sample{}, err
	}
	current, err := r.channelValue(ChannelCurrent, r.Current)
	if err != nil {
		return Sample{}, err
	}
	freq, err := r.channelValue(ChannelFrequency, r.Frequency)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Position:  r.Position,
		Timestamp: r.Timestamp,
		Frequency: freq,
		Current:   current,
		Power:     power,
	}, nil
}

func (r LogRecord) channelValue(ch Channel, raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		reason := "not an integer"
		if strings.TrimSpace(raw) == "" {
			reason = "missing value"
		}
		return 0, &ParseError{
			Source:   r.Source,
			Line:     r.Line,
			Position: r.Position,
			Field:    ch.Tag(),
			Value:    raw,
			Reason:   reason,
		}
	}
	return v, nil
}
