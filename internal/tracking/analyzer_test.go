package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ud7-tracker/backend/internal/models"
)

func TestAnalyze(t *testing.T) {
	b := (&logBuilder{}).idle().
		start().sample(20000, 300, 40).sample(20010, 305, 41).stop().
		start().sample(20100, 310, 42).add("UD7 Alarm E12")
	log := &models.MergedLog{Header: []string{"No", "Time"}, Records: b.records}

	report, err := Analyze(log, everything(), models.DefaultChannelMask)
	require.NoError(t, err)

	assert.Equal(t, []string{"Track_2024-10-22_15.52.15", "Track_2024-10-22_15.52.19"}, report.Labels())
	assert.Equal(t, []string{"Timestamp", "FREQ", "IFB"}, report.Tables[0].Header)
	assert.Equal(t, 3, report.SampleCount())
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, models.TerminationAlarm, report.Diagnostics[0].Kind)
	assert.Len(t, report.Episodes, 2)
}

func TestAnalyze_NoEpisodes(t *testing.T) {
	b := (&logBuilder{}).idle().idle()
	log := &models.MergedLog{Records: b.records}

	report, err := Analyze(log, everything(), models.DefaultChannelMask)
	assert.ErrorIs(t, err, ErrNoEpisodesInWindow)
	require.NotNil(t, report)
	assert.Empty(t, report.Tables)
}

func TestAnalyze_HardFailures(t *testing.T) {
	_, err := Analyze(models.NewMergedLog(), everything(), models.DefaultChannelMask)
	assert.ErrorIs(t, err, ErrInputEmpty)

	_, err = Analyze(nil, everything(), models.DefaultChannelMask)
	assert.ErrorIs(t, err, ErrInputEmpty)

	b := (&logBuilder{}).start().add(models.EventTrackSuccess, "1", "2", "three")
	report, err := Analyze(&models.MergedLog{Records: b.records}, everything(), models.DefaultChannelMask)
	assert.Nil(t, report)
	var perr *models.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "FREQ", perr.Field)

	_, err = Analyze(&models.MergedLog{Records: b.records}, everything(), 0)
	assert.ErrorIs(t, err, ErrNoChannelSelected)
}

func TestDefaultWindow(t *testing.T) {
	b := (&logBuilder{}).idle().idle()
	b.records[0].Timestamp = base.Add(250 * time.Millisecond)
	b.records[1].Timestamp = base.Add(90*time.Second + 700*time.Millisecond)

	w, ok := DefaultWindow(&models.MergedLog{Records: b.records})
	require.True(t, ok)
	assert.Equal(t, base, w.Start)
	assert.Equal(t, base.Add(91*time.Second), w.End)

	_, ok = DefaultWindow(models.NewMergedLog())
	assert.False(t, ok)
}
