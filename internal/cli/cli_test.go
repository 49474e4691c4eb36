package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ud7-tracker/backend/internal/export"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/tracking"
)

const trackingCSV = "No,Timestamp,Level,User,Module,Event,VFB,IFB,FREQ\n" +
	"1,2024-10-22 15:52:13.086,I,op,HMI," + models.EventStartTrack + ",,,\n" +
	"2,2024-10-22 15:52:14.000,I,op,HMI," + models.EventTrackSuccess + ",80,1200,40500\n" +
	"3,2024-10-22 15:52:15.000,I,op,HMI," + models.EventTrackSuccess + ",81,1210,40510\n" +
	"4,2024-10-22 15:52:16.000,I,op,HMI,UD7 Alarm 0x12,,,\n"

// executeCommand runs a fresh command tree and returns its combined output.
func executeCommand(args ...string) (string, error) {
	cmd := NewRootCmd("test")
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func logDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "day1.csv"), []byte(content), 0644))
	return dir
}

func TestRootHelp(t *testing.T) {
	output, err := executeCommand("--help")
	assert.NoError(t, err)
	assert.Contains(t, output, "ud7convert")
	assert.Contains(t, output, "range")
	assert.Contains(t, output, "run")
}

func TestRangeCommand(t *testing.T) {
	dir := logDir(t, trackingCSV)

	output, err := executeCommand("range", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, output, "Files:          day1.csv")
	assert.Contains(t, output, "Records:        4")
	assert.Contains(t, output, "Time range:     2024-10-22 15:52:13 .. 2024-10-22 15:52:16")
	assert.Contains(t, output, "Default window: 2024-10-22 15:52:13 .. 2024-10-22 15:52:17")

	_, err = executeCommand("range")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	dir := logDir(t, trackingCSV)
	plots := filepath.Join(t.TempDir(), "plots")

	output, err := executeCommand("run", "--dir", dir, "--plots", plots)
	require.NoError(t, err, output)
	assert.Contains(t, output, "Episodes: 1")
	assert.Contains(t, output, "Track_2024-10-22_15.52.14")
	assert.Contains(t, output, "Diagnostics:")
	assert.Contains(t, output, "1. Track_2024-10-22_15.52.14: ")

	assert.FileExists(t, filepath.Join(dir, export.DefaultWorkbookName))
	assert.FileExists(t, filepath.Join(plots, "Track_2024-10-22_15.52.14.png"))
}

func TestRunPlotsForEpisodesSharingALabel(t *testing.T) {
	// Both episodes take their label from a record at 15:52:14.
	content := "No,Timestamp,Level,User,Module,Event,VFB,IFB,FREQ\n" +
		"1,2024-10-22 15:52:13.086,I,op,HMI," + models.EventStartTrack + ",,,\n" +
		"2,2024-10-22 15:52:14.100,I,op,HMI," + models.EventTrackSuccess + ",80,1200,40500\n" +
		"3,2024-10-22 15:52:14.200,I,op,HMI," + models.EventTrackSuccess + ",81,1210,40510\n" +
		"4,2024-10-22 15:52:14.300,I,op,HMI," + models.EventStopCommand + ",,,\n" +
		"5,2024-10-22 15:52:14.400,I,op,HMI," + models.EventStartTrack + ",,,\n" +
		"6,2024-10-22 15:52:14.500,I,op,HMI," + models.EventTrackSuccess + ",82,1220,40520\n" +
		"7,2024-10-22 15:52:14.600,I,op,HMI," + models.EventTrackSuccess + ",83,1230,40530\n" +
		"8,2024-10-22 15:52:14.700,I,op,HMI," + models.EventStopCommand + ",,,\n"
	dir := logDir(t, content)
	plots := filepath.Join(t.TempDir(), "plots")

	output, err := executeCommand("run", "--dir", dir, "--plots", plots, "--no-xlsx")
	require.NoError(t, err, output)
	assert.Contains(t, output, "Episodes: 2")

	entries, err := os.ReadDir(plots)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(plots, "Track_2024-10-22_15.52.14.png"))
	assert.FileExists(t, filepath.Join(plots, "Track_2024-10-22_15.52.14_2.png"))
}

func TestRunNoEpisodesIsAWarning(t *testing.T) {
	dir := logDir(t, trackingCSV)

	output, err := executeCommand("run", "--dir", dir, "--start", "2030-01-01", "--end", "2030-01-02")
	require.NoError(t, err)
	assert.Contains(t, output, "warning: no tracking activity in range")
	assert.NoFileExists(t, filepath.Join(dir, export.DefaultWorkbookName))
}

func TestRunHardFailures(t *testing.T) {
	_, err := executeCommand("run", "--dir", t.TempDir())
	assert.ErrorIs(t, err, tracking.ErrInputEmpty)

	bad := strings.Replace(trackingCSV, "80,1200,40500", "80,x,40500", 1)
	_, err = executeCommand("run", "--dir", logDir(t, bad), "--no-xlsx")
	var perr *models.ParseError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "day1.csv", perr.Source)
	assert.Equal(t, "IFB", perr.Field)

	_, err = executeCommand("run", "--dir", logDir(t, trackingCSV), "--channels", "XYZ")
	assert.Error(t, err)

	_, err = executeCommand("run", "--dir", logDir(t, trackingCSV), "--start", "soon")
	assert.Error(t, err)

	_, err = executeCommand("run")
	assert.Error(t, err)
}

func TestRunJobFileWithFlagOverrides(t *testing.T) {
	dir := logDir(t, trackingCSV)
	out := filepath.Join(t.TempDir(), "custom.xlsx")
	jobPath := filepath.Join(t.TempDir(), "job.yaml")
	job := "dir: " + dir + "\nchannels: [VFB]\nnoXlsx: true\n"
	require.NoError(t, os.WriteFile(jobPath, []byte(job), 0644))

	output, err := executeCommand("run", "--job", jobPath)
	require.NoError(t, err, output)
	assert.NoFileExists(t, filepath.Join(dir, export.DefaultWorkbookName))

	output, err = executeCommand("run", "--job", jobPath, "--no-xlsx=false", "--xlsx", out)
	require.NoError(t, err, output)
	assert.FileExists(t, out)
	assert.Contains(t, output, "Workbook: "+out)
}

func TestLoadJob(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: /data/hmi\nstart: 2024-10-22 15:00:00\nchannels: [FREQ, VFB]\nplots: out\n"), 0644))
	job, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/hmi", job.Dir)
	assert.Equal(t, "2024-10-22 15:00:00", job.Start)
	assert.Equal(t, []string{"FREQ", "VFB"}, job.Channels)
	assert.Equal(t, "out", job.Plots)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	job, err = LoadJob(empty)
	require.NoError(t, err)
	assert.Empty(t, job.Dir)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("folder: x\n"), 0644))
	_, err = LoadJob(unknown)
	assert.Error(t, err)

	_, err = LoadJob(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
