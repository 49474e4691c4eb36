package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/tracking"
)

const hmiHeader = "No,Timestamp,Level,User,Module,Event,VFB,IFB,FREQ"

func writeCSV(t *testing.T, dir, name string, rows ...string) parser.SourceFile {
	t.Helper()
	path := filepath.Join(dir, name)
	content := hmiHeader + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return parser.SourceFile{Name: name, Path: path}
}

func trackingRows() []string {
	return []string{
		"1,2024-10-22 15:52:13.086,I,op,HMI," + models.EventStartTrack + ",,,",
		"2,2024-10-22 15:52:14.000,I,op,HMI," + models.EventTrackSuccess + ",80,1200,40500",
		"3,2024-10-22 15:52:15.000,I,op,HMI," + models.EventTrackSuccess + ",81,1210,40510",
		"4,2024-10-22 15:52:16.000,I,op,HMI,UD7 Alarm 0x12,,,",
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Options{TempDir: t.TempDir(), MaxSessions: 3})
	t.Cleanup(m.Close)
	return m
}

func waitForSession(t *testing.T, m *Manager, id string) *models.AnalysisSession {
	t.Helper()
	var s *models.AnalysisSession
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = m.GetSession(id)
		require.True(t, ok)
		return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
	}, 10*time.Second, 20*time.Millisecond)
	return s
}

func TestManager_MergeAndAnalyze(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	f := writeCSV(t, dir, "day1.csv", trackingRows()...)

	sess, err := m.StartSession([]parser.SourceFile{f}, []string{"file-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"file-1"}, sess.FileIDs)

	done := waitForSession(t, m, sess.ID)
	require.Equal(t, models.SessionStatusComplete, done.Status, done.Message)
	assert.Equal(t, 4, done.RecordCount)
	assert.Equal(t, 100.0, done.Progress)
	assert.Equal(t, []string{"day1.csv"}, done.Files)
	require.NotNil(t, done.DefaultWindow)
	assert.Equal(t, time.Date(2024, 10, 22, 15, 52, 13, 0, time.UTC), done.DefaultWindow.Start)
	assert.Equal(t, time.Date(2024, 10, 22, 15, 52, 17, 0, time.UTC), done.DefaultWindow.End)

	report, err := m.Analyze(context.Background(), sess.ID, *done.DefaultWindow, models.DefaultChannelMask)
	require.NoError(t, err)
	require.Len(t, report.Tables, 1)
	assert.Equal(t, "Track_2024-10-22_15.52.14", report.Tables[0].Label)
	assert.Len(t, report.Tables[0].Rows, 2)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, models.TerminationAlarm, report.Diagnostics[0].Kind)
}

func TestManager_AnalyzeEmptyWindow(t *testing.T) {
	m := newTestManager(t)
	f := writeCSV(t, t.TempDir(), "day1.csv", trackingRows()...)

	sess, err := m.StartSession([]parser.SourceFile{f}, nil)
	require.NoError(t, err)
	waitForSession(t, m, sess.ID)

	far := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	report, err := m.Analyze(context.Background(), sess.ID, models.TimeRange{Start: far, End: far.Add(time.Hour)}, models.DefaultChannelMask)
	assert.ErrorIs(t, err, tracking.ErrNoEpisodesInWindow)
	require.NotNil(t, report)
	assert.Empty(t, report.Tables)
}

func TestManager_ParseFailure(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	good := writeCSV(t, dir, "01.csv", trackingRows()...)
	bad := writeCSV(t, dir, "02.csv", "1,garbage,I,op,HMI,x,,,")

	sess, err := m.StartSession([]parser.SourceFile{good, bad}, nil)
	require.NoError(t, err)

	done := waitForSession(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusError, done.Status)
	assert.Equal(t, models.SessionErrorParseFailure, done.ErrorCode)
	require.NotNil(t, done.Error)
	assert.Equal(t, "02.csv", done.Error.Source)
	assert.Equal(t, "garbage", done.Error.Value)

	_, err = m.Analyze(context.Background(), sess.ID, models.TimeRange{}, models.DefaultChannelMask)
	assert.ErrorIs(t, err, ErrSessionFailed)
	var perr *models.ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestManager_InputEmpty(t *testing.T) {
	m := newTestManager(t)
	f := writeCSV(t, t.TempDir(), "only-header.csv")

	sess, err := m.StartSession([]parser.SourceFile{f}, nil)
	require.NoError(t, err)

	done := waitForSession(t, m, sess.ID)
	assert.Equal(t, models.SessionErrorInputEmpty, done.ErrorCode)

	_, err = m.StartSession(nil, nil)
	assert.ErrorIs(t, err, tracking.ErrInputEmpty)
}

func TestManager_FolderSession(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	writeCSV(t, dir, "day1.csv", trackingRows()...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("a,b\n1,2\n"), 0644))

	sess, err := m.StartFolderSession(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, sess.Folder)

	done := waitForSession(t, m, sess.ID)
	assert.Equal(t, []string{"other.csv"}, done.Skipped)

	_, err = m.StartFolderSession(t.TempDir())
	assert.ErrorIs(t, err, parser.ErrNoInputFiles)
}

func TestManager_RecordsAndEvents(t *testing.T) {
	m := newTestManager(t)
	f := writeCSV(t, t.TempDir(), "day1.csv", trackingRows()...)
	sess, err := m.StartSession([]parser.SourceFile{f}, nil)
	require.NoError(t, err)
	waitForSession(t, m, sess.ID)

	recs, total, err := m.Records(context.Background(), sess.ID, parser.RecordQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, recs, 2)

	counts, err := m.EventCounts(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventTrackSuccess, counts[0].Event)
	assert.Equal(t, 2, counts[0].Count)

	_, _, err = m.Records(context.Background(), "missing", parser.RecordQuery{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_DeleteAndCleanup(t *testing.T) {
	m := newTestManager(t)
	f := writeCSV(t, t.TempDir(), "day1.csv", trackingRows()...)

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := m.StartSession([]parser.SourceFile{f}, nil)
		require.NoError(t, err)
		waitForSession(t, m, sess.ID)
		ids = append(ids, sess.ID)
	}
	assert.Equal(t, 3, m.Count())

	// A fourth session evicts the least recently used one.
	m.TouchSession(ids[0])
	sess, err := m.StartSession([]parser.SourceFile{f}, nil)
	require.NoError(t, err)
	waitForSession(t, m, sess.ID)
	assert.Equal(t, 3, m.Count())
	_, ok := m.GetSession(ids[1])
	assert.False(t, ok)

	assert.True(t, m.DeleteSession(ids[0]))
	assert.False(t, m.DeleteSession(ids[0]))

	m.mu.Lock()
	for _, st := range m.sessions {
		st.LastAccessed = time.Now().Add(-time.Hour)
	}
	m.mu.Unlock()
	assert.Equal(t, 2, m.CleanupOldSessions(30*time.Minute))
	assert.Zero(t, m.Count())
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses map[string]models.FileStatus
	messages map[string]string
}

func (r *statusRecorder) SetStatus(id string, status models.FileStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[id] = status
	r.messages[id] = message
	return nil
}

func TestManager_RecordsFileStatus(t *testing.T) {
	rec := &statusRecorder{statuses: map[string]models.FileStatus{}, messages: map[string]string{}}
	m := NewManager(Options{TempDir: t.TempDir(), Files: rec})
	t.Cleanup(m.Close)
	dir := t.TempDir()

	good := writeCSV(t, dir, "01.csv", trackingRows()...)
	good.ID = "good"
	plain := filepath.Join(dir, "02.csv")
	require.NoError(t, os.WriteFile(plain, []byte("No,Timestamp,Event\n1,2024-10-22 15:52:17,x\n"), 0644))
	noTags := parser.SourceFile{ID: "plain", Name: "02.csv", Path: plain}

	sess, err := m.StartSession([]parser.SourceFile{good, noTags}, []string{"good", "plain"})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusComplete, waitForSession(t, m, sess.ID).Status)

	rec.mu.Lock()
	assert.Equal(t, models.FileStatusMerged, rec.statuses["good"])
	assert.Equal(t, models.FileStatusNoChannels, rec.statuses["plain"])
	rec.mu.Unlock()

	bad := writeCSV(t, dir, "03.csv", "1,not-a-time,I,op,HMI,x,,,")
	bad.ID = "bad"
	sess, err = m.StartSession([]parser.SourceFile{bad}, []string{"bad"})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusError, waitForSession(t, m, sess.ID).Status)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, models.FileStatusError, rec.statuses["bad"])
	assert.Contains(t, rec.messages["bad"], "not-a-time")
}
