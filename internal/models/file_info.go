package models

import "time"

// FileStatus tracks an uploaded export from upload through its last merge.
type FileStatus string

const (
	// FileStatusUploaded is a stored file whose header names a channel tag.
	FileStatusUploaded FileStatus = "uploaded"
	// FileStatusNoChannels is a file the merge will skip: no FREQ/IFB/VFB column.
	FileStatusNoChannels FileStatus = "no_channels"
	// FileStatusMerged is a file whose records went into a completed session.
	FileStatusMerged FileStatus = "merged"
	// FileStatusError is a file that could not be read or holds a malformed row.
	FileStatusError FileStatus = "error"
)

// FileInfo represents metadata about an uploaded HMI log file.
type FileInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Size       int64      `json:"size"`
	UploadedAt time.Time  `json:"uploadedAt"`
	Channels   []string   `json:"channels,omitempty"`
	Status     FileStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
}
