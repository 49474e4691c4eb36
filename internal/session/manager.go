package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ud7-tracker/backend/internal/logger"
	"github.com/ud7-tracker/backend/internal/metrics"
	"github.com/ud7-tracker/backend/internal/models"
	"github.com/ud7-tracker/backend/internal/parser"
	"github.com/ud7-tracker/backend/internal/tracking"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady means the merge is still running.
	ErrSessionNotReady = errors.New("session is still merging")
	// ErrSessionFailed means the merge ended in an error.
	ErrSessionFailed = errors.New("session merge failed")
)

// FileStatusRecorder receives the merge outcome of each uploaded file.
type FileStatusRecorder interface {
	SetStatus(id string, status models.FileStatus, message string) error
}

// Options configures a Manager.
type Options struct {
	TempDir      string
	MaxSessions  int
	StoreOptions parser.StoreOptions
	Registry     *parser.Registry
	Files        FileStatusRecorder // optional
}

// Manager handles active analysis sessions.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	registry    *parser.Registry
	tempDir     string
	maxSessions int
	storeOpts   parser.StoreOptions
	files       FileStatusRecorder
}

// SessionState holds the session metadata and the DuckDB-backed record store.
type SessionState struct {
	Session      *models.AnalysisSession
	Store        *parser.RecordStore
	Header       []string
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)

	mergeErr error
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.TempDir == "" {
		opts.TempDir = "./data/temp"
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Registry == nil {
		opts.Registry = parser.GetGlobalRegistry()
	}
	if opts.StoreOptions.BatchSize <= 0 {
		opts.StoreOptions = parser.DefaultStoreOptions()
	}
	os.MkdirAll(opts.TempDir, 0755)

	return &Manager{
		sessions:    make(map[string]*SessionState),
		registry:    opts.Registry,
		tempDir:     opts.TempDir,
		maxSessions: opts.MaxSessions,
		storeOpts:   opts.StoreOptions,
		files:       opts.Files,
	}
}

// StartSession begins merging files in the background. fileIDs are recorded
// on the session for display only.
func (m *Manager) StartSession(files []parser.SourceFile, fileIDs []string) (*models.AnalysisSession, error) {
	return m.start(files, fileIDs, "")
}

// StartFolderSession discovers the CSV files in dir and merges them.
func (m *Manager) StartFolderSession(dir string) (*models.AnalysisSession, error) {
	files, err := parser.DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	return m.start(files, nil, dir)
}

func (m *Manager) start(files []parser.SourceFile, fileIDs []string, folder string) (*models.AnalysisSession, error) {
	if len(files) == 0 {
		return nil, parser.ErrNoInputFiles
	}

	// Clean up old sessions if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewAnalysisSession(sessionID)
	session.FileIDs = fileIDs
	session.Folder = folder
	session.Status = models.SessionStatusMerging

	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	metrics.SetActiveSessions(len(m.sessions))
	snapshot := *session
	m.mu.Unlock()

	go m.runMerge(sessionID, files)

	return &snapshot, nil
}

func (m *Manager) runMerge(sessionID string, files []parser.SourceFile) {
	log := logger.L()
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Merge %s] PANIC recovered: %v", shortID(sessionID), r)
			m.updateSessionError(sessionID, fmt.Errorf("merge panicked: %v", r))
		}
	}()

	start := time.Now()
	log.Infof("[Merge %s] Merging %d file(s)", shortID(sessionID), len(files))

	progressCb := func(done, total int) {
		m.mu.Lock()
		if state, ok := m.sessions[sessionID]; ok {
			state.Session.Progress = float64(done) * 80.0 / float64(total)
		}
		m.mu.Unlock()
	}

	merged, err := parser.MergeFiles(m.registry, files, progressCb)
	m.recordFileStatus(files, merged, err)
	if merged != nil {
		metrics.ObserveMerge(len(merged.Files), len(merged.Skipped), len(merged.Records))
	}
	if err != nil {
		log.Warnf("[Merge %s] merge failed: %v", shortID(sessionID), err)
		m.updateSessionError(sessionID, err)
		if merged != nil {
			m.mu.Lock()
			if state, ok := m.sessions[sessionID]; ok {
				state.Session.Files = merged.Files
				state.Session.Skipped = merged.Skipped
			}
			m.mu.Unlock()
		}
		return
	}

	store, err := parser.NewRecordStore(m.tempDir, sessionID, m.storeOpts)
	if err != nil {
		m.updateSessionError(sessionID, fmt.Errorf("failed to create storage: %w", err))
		return
	}
	if err := store.AppendLog(merged); err != nil {
		store.Close()
		m.updateSessionError(sessionID, fmt.Errorf("failed to store records: %w", err))
		return
	}
	if err := store.Finalize(); err != nil {
		store.Close()
		m.updateSessionError(sessionID, fmt.Errorf("failed to finalize storage: %w", err))
		return
	}

	elapsed := time.Since(start).Milliseconds()
	log.Infof("[Merge %s] Complete: %d records from %d file(s), %d skipped, %dms",
		shortID(sessionID), len(merged.Records), len(merged.Files), len(merged.Skipped), elapsed)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		store.Close()
		return
	}

	state.Store = store
	state.Header = merged.Header
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.Files = merged.Files
	state.Session.Skipped = merged.Skipped
	state.Session.RecordCount = store.Len()
	state.Session.ProcessingTimeMs = elapsed
	state.Session.TimeRange = store.TimeRange()
	if w, ok := tracking.DefaultWindow(merged); ok {
		state.Session.DefaultWindow = &w
	}
}

// recordFileStatus reports the merge outcome of every uploaded file to the
// file store. Files the merge never reached keep their status.
func (m *Manager) recordFileStatus(files []parser.SourceFile, merged *models.MergedLog, err error) {
	if m.files == nil {
		return
	}
	var perr *models.ParseError
	parseFailed := errors.As(err, &perr)

	var mergedNames, skippedNames map[string]bool
	if merged != nil {
		mergedNames, skippedNames = nameSet(merged.Files), nameSet(merged.Skipped)
	}

	for _, f := range files {
		if f.ID == "" {
			continue
		}
		var status models.FileStatus
		var message string
		switch {
		case parseFailed && perr.Source == f.Name:
			status, message = models.FileStatusError, perr.Error()
		case skippedNames[f.Name]:
			status, message = models.FileStatusNoChannels, "header has no FREQ/IFB/VFB column"
		case err == nil && mergedNames[f.Name]:
			status = models.FileStatusMerged
		default:
			continue
		}
		if serr := m.files.SetStatus(f.ID, status, message); serr != nil {
			logger.L().Debugf("[Merge] file %s: %v", f.ID, serr)
		}
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func (m *Manager) updateSessionError(sessionID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.mergeErr = err
	state.Session.Status = models.SessionStatusError
	state.Session.Message = err.Error()

	var perr *models.ParseError
	switch {
	case errors.As(err, &perr):
		state.Session.ErrorCode = models.SessionErrorParseFailure
		state.Session.Error = perr
	case errors.Is(err, tracking.ErrInputEmpty):
		state.Session.ErrorCode = models.SessionErrorInputEmpty
	default:
		state.Session.ErrorCode = models.SessionErrorMergeFailed
	}
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.AnalysisSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	return &snapshot, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// Analyze runs the episode analysis over a completed session.
func (m *Manager) Analyze(ctx context.Context, id string, window models.TimeRange, mask models.ChannelMask) (*tracking.Report, error) {
	start := time.Now()
	merged, err := m.mergedLog(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := tracking.Analyze(merged, window, mask)

	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, tracking.ErrNoEpisodesInWindow):
		result = metrics.ResultNoEpisodes
	case errors.Is(err, tracking.ErrInputEmpty):
		result = metrics.ResultInputEmpty
	case parser.IsParseError(err):
		result = metrics.ResultParseFailure
	default:
		result = metrics.ResultError
	}
	var episodes int
	var diags []models.Diagnostic
	if report != nil {
		episodes, diags = len(report.Episodes), report.Diagnostics
	}
	metrics.ObserveAnalysis(result, time.Since(start), episodes, diags)

	return report, err
}

// mergedLog reads the session's records back from its store.
func (m *Manager) mergedLog(ctx context.Context, id string) (*models.MergedLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := stateErr(state); err != nil {
		return nil, err
	}
	records, err := state.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	return &models.MergedLog{Header: state.Header, Records: records, Files: state.Session.Files}, nil
}

func stateErr(state *SessionState) error {
	switch state.Session.Status {
	case models.SessionStatusComplete:
		return nil
	case models.SessionStatusError:
		return fmt.Errorf("%w: %w", ErrSessionFailed, state.mergeErr)
	default:
		return ErrSessionNotReady
	}
}

// Records returns one page of a session's stored records.
func (m *Manager) Records(ctx context.Context, id string, q parser.RecordQuery) ([]models.LogRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := stateErr(state); err != nil {
		return nil, 0, err
	}
	return state.Store.Query(ctx, q)
}

// EventCounts tallies a session's records per event text.
func (m *Manager) EventCounts(ctx context.Context, id string) ([]parser.EventCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := stateErr(state); err != nil {
		return nil, err
	}
	return state.Store.EventCounts(ctx)
}

// DeleteSession drops a session and its store.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	m.closeLocked(id, state)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close drops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, state := range m.sessions {
		m.closeLocked(id, state)
	}
}

func (m *Manager) closeLocked(id string, state *SessionState) {
	if state.Store != nil {
		state.Store.Close()
	}
	delete(m.sessions, id)
	metrics.SetActiveSessions(len(m.sessions))
}

// cleanupOldSessionsIfNeeded removes the least recently used finished sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.sessions) >= m.maxSessions {
		var oldestID string
		var oldest time.Time
		for id, state := range m.sessions {
			if state.Session.Status != models.SessionStatusComplete &&
				state.Session.Status != models.SessionStatusError {
				continue
			}
			if oldestID == "" || state.LastAccessed.Before(oldest) {
				oldestID, oldest = id, state.LastAccessed
			}
		}
		if oldestID == "" {
			return
		}
		m.closeLocked(oldestID, m.sessions[oldestID])
		logger.L().Infof("[Manager] Evicted session %s to stay under %d sessions", shortID(oldestID), m.maxSessions)
	}
}

// CleanupOldSessions removes finished sessions not accessed within maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			m.closeLocked(id, state)
			removed++
			logger.L().Infof("[Manager] Cleaned up aged session %s (last accessed: %s ago)",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	return removed
}

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
