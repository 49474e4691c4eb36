package models

// SessionStatus represents the status of an analysis session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusMerging  SessionStatus = "merging"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// AnalysisSession tracks the merge of a set of HMI files.
type AnalysisSession struct {
	ID               string        `json:"id"`
	FileIDs          []string      `json:"fileIds,omitempty"`
	Folder           string        `json:"folder,omitempty"`
	Files            []string      `json:"files,omitempty"`
	Skipped          []string      `json:"skipped,omitempty"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	RecordCount      int           `json:"recordCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	TimeRange        *TimeRange    `json:"timeRange,omitempty"`
	DefaultWindow    *TimeRange    `json:"defaultWindow,omitempty"`
	ErrorCode        string        `json:"errorCode,omitempty"`
	Error            *ParseError   `json:"parseError,omitempty"`
	Message          string        `json:"message,omitempty"`
}

// Session error codes, matching the API error codes.
const (
	SessionErrorParseFailure = "PARSE_FAILURE"
	SessionErrorInputEmpty   = "INPUT_EMPTY"
	SessionErrorMergeFailed  = "MERGE_FAILED"
)

// NewAnalysisSession creates a new AnalysisSession in pending status.
func NewAnalysisSession(id string) *AnalysisSession {
	return &AnalysisSession{
		ID:       id,
		Status:   SessionStatusPending,
		Progress: 0,
	}
}
