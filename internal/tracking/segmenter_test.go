package tracking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ud7-tracker/backend/internal/models"
)

var base = time.Date(2024, 10, 22, 15, 52, 13, 0, time.UTC)

// logBuilder appends records one second apart.
type logBuilder struct {
	records []models.LogRecord
}

func (b *logBuilder) add(event string, channels ...string) *logBuilder {
	ts := base.Add(time.Duration(len(b.records)) * time.Second)
	rec := models.LogRecord{
		Position:     len(b.records),
		Source:       "test.csv",
		Line:         len(b.records) + 2,
		Timestamp:    ts,
		RawTimestamp: ts.Format("2006-01-02 15:04:05.000000"),
		Event:        event,
	}
	if len(channels) == 3 {
		rec.Power, rec.Current, rec.Frequency = channels[0], channels[1], channels[2]
	}
	b.records = append(b.records, rec)
	return b
}

func (b *logBuilder) start() *logBuilder { return b.add(models.EventStartTrack) }
func (b *logBuilder) stop() *logBuilder  { return b.add(models.EventStopCommand) }
func (b *logBuilder) idle() *logBuilder  { return b.add("Heartbeat") }
func (b *logBuilder) sample(freq, ifb, vfb int) *logBuilder {
	return b.add(models.EventTrackSuccess, fmt.Sprint(vfb), fmt.Sprint(ifb), fmt.Sprint(freq))
}

func everything() models.TimeRange {
	return models.TimeRange{Start: base.Add(-time.Hour), End: base.Add(time.Hour)}
}

func at(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

func TestSegment_EmptyInput(t *testing.T) {
	_, err := Segment(nil, everything())
	assert.ErrorIs(t, err, ErrInputEmpty)
}

func TestSegment_NoStartInWindow(t *testing.T) {
	b := (&logBuilder{}).idle().start().sample(20000, 300, 40).stop()

	res, err := Segment(b.records, models.TimeRange{Start: at(5), End: at(10)})
	require.NoError(t, err)
	assert.Empty(t, res.Episodes)
	assert.Empty(t, res.Diagnostics)
}

func TestSegment_StartThenStop(t *testing.T) {
	b := (&logBuilder{}).idle().start().stop()

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)

	ep := res.Episodes[0]
	assert.Empty(t, ep.Samples)
	assert.Nil(t, ep.Diagnostic)
	assert.Equal(t, models.TerminationStopped, ep.Termination)
	assert.Equal(t, 1, ep.Start)
	assert.Equal(t, 2, ep.End)
	assert.Empty(t, res.Diagnostics)
}

func TestSegment_SamplesUntilAlarm(t *testing.T) {
	b := (&logBuilder{}).idle().start().
		sample(20100, 310, 41).
		sample(20150, 320, 42).
		add("UD7 Alarm: overcurrent").
		sample(1, 1, 1)

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)

	ep := res.Episodes[0]
	require.Len(t, ep.Samples, 2)
	assert.Equal(t, models.Sample{Position: 2, Timestamp: at(2), Frequency: 20100, Current: 310, Power: 41}, ep.Samples[0])
	assert.Equal(t, 20150, ep.Samples[1].Frequency)
	assert.Equal(t, models.TerminationAlarm, ep.Termination)

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, models.TerminationAlarm, d.Kind)
	assert.Equal(t, 4, d.Position)
	assert.Equal(t, at(4), d.At)
	assert.Contains(t, d.Message, b.records[4].RawTimestamp)
	assert.Equal(t, ep.Label, d.Episode)
}

func TestSegment_UncleanShutdown(t *testing.T) {
	b := (&logBuilder{}).idle().
		start().             // 1
		sample(20000, 1, 1). // 2
		idle().              // 3
		start().             // 4
		stop()               // 5

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 2)

	first := res.Episodes[0]
	assert.Equal(t, models.TerminationUncleanShutdown, first.Termination)
	require.NotNil(t, first.Diagnostic)
	assert.Equal(t, 3, first.Diagnostic.Position, "record right after the last sample")
	assert.Contains(t, first.Diagnostic.Message, "did not shut down normally")
	assert.Contains(t, first.Diagnostic.Message, b.records[3].RawTimestamp)
	assert.Len(t, first.Samples, 1)
	assert.Equal(t, 4, first.End)

	second := res.Episodes[1]
	assert.Equal(t, 4, second.Start)
	assert.Empty(t, second.Samples)
	assert.Equal(t, models.TerminationStopped, second.Termination)
	assert.Nil(t, second.Diagnostic)

	assert.Len(t, res.Diagnostics, 1)
}

func TestSegment_UncleanShutdownDuplicateTimestamps(t *testing.T) {
	b := (&logBuilder{}).idle().start().sample(20000, 1, 1).idle().start().stop()
	// The record after the last sample shares its timestamp with an earlier record.
	b.records[3].Timestamp = b.records[0].Timestamp

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.NotNil(t, res.Episodes[0].Diagnostic)
	assert.Equal(t, 3, res.Episodes[0].Diagnostic.Position)
}

func TestSegment_UncleanShutdownWithoutSamples(t *testing.T) {
	b := (&logBuilder{}).start().idle().start()

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 2)
	require.NotNil(t, res.Episodes[0].Diagnostic)
	assert.Equal(t, 1, res.Episodes[0].Diagnostic.Position)
}

func TestSegment_ModeChange(t *testing.T) {
	b := (&logBuilder{}).start().sample(20000, 1, 1).add(models.EventModeReady).sample(1, 1, 1)

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	ep := res.Episodes[0]
	assert.Equal(t, models.TerminationModeChange, ep.Termination)
	assert.Len(t, ep.Samples, 1)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, 2, res.Diagnostics[0].Position)
	assert.Contains(t, res.Diagnostics[0].Message, "operating mode switch")
}

func TestSegment_EndOfLog(t *testing.T) {
	b := (&logBuilder{}).start().sample(20000, 1, 1).idle().sample(20001, 2, 2)

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	ep := res.Episodes[0]
	assert.Equal(t, models.TerminationEndOfLog, ep.Termination)
	assert.Len(t, ep.Samples, 2)
	assert.Nil(t, ep.Diagnostic)
	assert.Equal(t, 3, ep.End)
}

func TestSegment_StartAsLastRecord(t *testing.T) {
	b := (&logBuilder{}).idle().start()

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)
	assert.Empty(t, res.Episodes[0].Samples)
	assert.Equal(t, at(1).Format(models.LabelLayout), res.Episodes[0].Label)
}

func TestSegment_LabelFromNextRecord(t *testing.T) {
	b := (&logBuilder{}).start().sample(20000, 1, 1).stop()

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	assert.Equal(t, "Track_2024-10-22_15.52.14", res.Episodes[0].Label)
	assert.Equal(t, []string{"Track_2024-10-22_15.52.14"}, res.Labels())
}

func TestSegment_WindowSwap(t *testing.T) {
	b := (&logBuilder{}).idle().start().stop().start().stop()

	forward, err := Segment(b.records, models.TimeRange{Start: at(0), End: at(2)})
	require.NoError(t, err)
	reversed, err := Segment(b.records, models.TimeRange{Start: at(2), End: at(0)})
	require.NoError(t, err)

	assert.Equal(t, forward.Episodes, reversed.Episodes)
	assert.Equal(t, models.TimeRange{Start: at(0), End: at(2)}, reversed.Window)
	assert.Len(t, reversed.Episodes, 1)
}

func TestSegment_WindowInclusive(t *testing.T) {
	b := (&logBuilder{}).start().stop().start().stop().start().stop()

	res, err := Segment(b.records, models.TimeRange{Start: at(0), End: at(4)})
	require.NoError(t, err)
	require.Len(t, res.Episodes, 3)
	assert.Equal(t, 0, res.Episodes[0].Start)
	assert.Equal(t, 4, res.Episodes[2].Start)
}

func TestSegment_ScanIgnoresWindowEnd(t *testing.T) {
	b := (&logBuilder{}).start().sample(1, 1, 1).sample(2, 2, 2).stop()

	res, err := Segment(b.records, models.TimeRange{Start: at(0), End: at(0)})
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)
	assert.Len(t, res.Episodes[0].Samples, 2)
}

func TestSegment_ExclusiveOwnership(t *testing.T) {
	b := (&logBuilder{}).
		start().sample(1, 1, 1).stop().
		sample(9, 9, 9).idle().
		start().sample(2, 2, 2).add("UD7 Alarm 7").
		start().sample(3, 3, 3)

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	require.Len(t, res.Episodes, 3)

	seen := map[int]bool{}
	for _, ep := range res.Episodes {
		for _, s := range ep.Samples {
			assert.False(t, seen[s.Position], "sample %d claimed twice", s.Position)
			seen[s.Position] = true
			assert.Greater(t, s.Position, ep.Start)
			assert.LessOrEqual(t, s.Position, ep.End)
		}
	}
	assert.False(t, seen[3], "sample between episodes must stay unclaimed")
	assert.Len(t, res.Diagnostics, 1)
}

func TestSegment_MalformedChannelAborts(t *testing.T) {
	b := (&logBuilder{}).start().sample(1, 1, 1).add(models.EventTrackSuccess, "40", "x1", "20000").stop()

	res, err := Segment(b.records, everything())
	assert.Nil(t, res)

	var perr *models.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "IFB", perr.Field)
	assert.Equal(t, "x1", perr.Value)
	assert.Equal(t, 2, perr.Position)
}

func TestSegment_MissingChannelAborts(t *testing.T) {
	b := (&logBuilder{}).start().add(models.EventTrackSuccess)

	_, err := Segment(b.records, everything())
	var perr *models.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "missing value", perr.Reason)
}

func TestSegment_MalformedOutsideEpisodeIgnored(t *testing.T) {
	b := (&logBuilder{}).add(models.EventTrackSuccess, "a", "b", "c").start().stop()

	res, err := Segment(b.records, everything())
	require.NoError(t, err)
	assert.Len(t, res.Episodes, 1)
}

func TestSegment_Idempotent(t *testing.T) {
	b := (&logBuilder{}).start().sample(1, 2, 3).start().sample(4, 5, 6).add(models.EventModeReady)

	first, err := Segment(b.records, everything())
	require.NoError(t, err)
	second, err := Segment(b.records, everything())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
