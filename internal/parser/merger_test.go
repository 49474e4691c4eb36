package parser

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/tracking"
)

func writeFolder(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestDiscoverFiles(t *testing.T) {
	dir := writeFolder(t, map[string]string{
		"b.csv":     hmiFile(),
		"a.CSV":     hmiFile(),
		"notes.txt": "x",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0755))

	files, err := DiscoverFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.CSV", files[0].Name)
	assert.Equal(t, "b.csv", files[1].Name)
	assert.Equal(t, filepath.Join(dir, "b.csv"), files[1].Path)
}

func TestDiscoverFiles_Empty(t *testing.T) {
	_, err := DiscoverFiles(writeFolder(t, map[string]string{"readme.md": "x"}))
	assert.ErrorIs(t, err, ErrNoInputFiles)
	assert.ErrorIs(t, err, tracking.ErrInputEmpty)

	_, err = DiscoverFiles(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestMergeFolder(t *testing.T) {
	dir := writeFolder(t, map[string]string{
		"01.csv": hmiFile(
			"1,2024-10-22 15:52:13,I,op,HMI,"+models.EventStartTrack+",,,",
			"2,2024-10-22 15:52:14,I,op,HMI,"+models.EventTrackSuccess+",80,1200,40500",
		),
		"02.csv": hmiFile(
			"1,2024-10-22 15:52:15,I,op,HMI,"+models.EventTrackSuccess+",81,1210,40510",
			"2,2024-10-22 15:52:16,I,op,HMI,"+models.EventStopCommand+",,,",
		),
		"03.csv": "No,Timestamp,a,b,c,Event\n1,2024-10-22 15:52:17,I,op,HMI,x\n",
	})

	var calls []int
	merged, err := MergeFolder(dir, func(done, total int) {
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, calls)
	assert.Equal(t, []string{"01.csv", "02.csv"}, merged.Files)
	assert.Equal(t, []string{"03.csv"}, merged.Skipped)
	assert.Equal(t, "FREQ", merged.Header[8])
	require.Len(t, merged.Records, 4)
	for i, rec := range merged.Records {
		assert.Equal(t, i, rec.Position)
	}
	assert.Equal(t, "02.csv", merged.Records[2].Source)
	assert.Equal(t, 2, merged.Records[2].Line)
	assert.True(t, merged.Records[3].IsStopCommand())
}

func TestMergeFolder_ParseFailureNamesFile(t *testing.T) {
	dir := writeFolder(t, map[string]string{
		"01.csv": hmiFile("1,2024-10-22 15:52:13,I,op,HMI,x,,,"),
		"02.csv": hmiFile("1,not-a-time,I,op,HMI,x,,,"),
	})

	_, err := MergeFolder(dir, nil)
	var perr *models.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "02.csv", perr.Source)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, 1, perr.Position, "position counts the records merged before the file")
	assert.Contains(t, err.Error(), "not-a-time")
}

func TestMergeFiles_UnreadableFileAborts(t *testing.T) {
	dir := writeFolder(t, map[string]string{"01.csv": hmiFile("1,2024-10-22 15:52:13,I,op,HMI,x,,,")})
	files := []SourceFile{
		{Name: "01.csv", Path: filepath.Join(dir, "01.csv")},
		{Name: "02.csv", Path: filepath.Join(dir, "02.csv")},
	}

	merged, err := MergeFiles(nil, files, nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrUnsupportedFile)
	assert.Nil(t, merged)
}

func TestMergeFiles_OnlyHeaders(t *testing.T) {
	dir := writeFolder(t, map[string]string{"01.csv": hmiFile()})

	merged, err := MergeFolder(dir, nil)
	assert.ErrorIs(t, err, tracking.ErrInputEmpty)
	require.NotNil(t, merged)
	assert.Empty(t, merged.Records)
}
