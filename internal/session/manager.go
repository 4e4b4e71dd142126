package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/parser"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// Lookup failures returned by the accessors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotReady        = errors.New("session is not complete")
	ErrWrongKind       = errors.New("session holds a different log kind")
	ErrIndexOutOfRange = errors.New("guiding session index out of range")
)

// ParseObserver is told the outcome of every finished parse.
type ParseObserver func(kind models.LogKind, ok bool, elapsed time.Duration)

// Manager handles active log parsing sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	registry *parser.Registry

	// DuckDB frame stores live here; empty disables indexing
	frameDir    string
	maxSessions int
	observer    ParseObserver
}

// SessionState holds the session metadata, the parsed log and, for guide
// logs, its frame index.
type SessionState struct {
	Session      *models.ParseSession
	Result       *models.ParsedLog
	Frames       *parser.FrameStore
	LastAccessed time.Time
}

// NewManager creates a session manager that indexes guide-log frames in
// frameDir using the global parser registry.
func NewManager(frameDir string) *Manager {
	return NewManagerWithRegistry(frameDir, parser.GetGlobalRegistry())
}

// NewManagerWithRegistry creates a session manager that detects formats
// with registry.
func NewManagerWithRegistry(frameDir string, registry *parser.Registry) *Manager {
	if frameDir != "" {
		if err := os.MkdirAll(frameDir, 0755); err != nil {
			fmt.Printf("[Manager] Frame indexing disabled, cannot create %s: %v\n", frameDir, err)
			frameDir = ""
		}
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		registry:    registry,
		frameDir:    frameDir,
		maxSessions: MaxSessions,
	}
}

// SetMaxSessions changes how many sessions are held before the oldest
// finished ones are evicted.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.maxSessions = n
	}
}

// SetObserver installs a callback for parse outcomes.
func (m *Manager) SetObserver(obs ParseObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = obs
}

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// StartSession begins the parsing process for a file.
func (m *Manager) StartSession(fileID, filePath string) (*models.ParseSession, error) {
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()

	session := models.NewParseSession(sessionID, fileID)
	session.Status = models.SessionStatusParsing

	m.mu.Lock()
	m.sessions[sessionID] = &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}
	m.mu.Unlock()

	go m.runParse(sessionID, filePath)

	snapshot := *session
	return &snapshot, nil
}

func (m *Manager) runParse(sessionID, filePath string) {
	id := shortID(sessionID)
	start := time.Now()
	kind := models.LogKind("")

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Parse %s] PANIC recovered: %v\n", id, r)
			m.updateSessionError(sessionID, models.ParseError{Reason: fmt.Sprintf("parse panicked: %v", r)})
			m.notify(kind, false, time.Since(start))
		}
	}()

	fmt.Printf("[Parse %s] Starting parse of %s\n", id, filePath)
	if info, err := os.Stat(filePath); err != nil {
		fmt.Printf("[Parse %s] ERROR stat file: %v\n", id, err)
	} else {
		fmt.Printf("[Parse %s] File info: size=%d bytes\n", id, info.Size())
	}

	p, err := m.registry.FindParser(filePath)
	if err != nil {
		fmt.Printf("[Parse %s] ERROR: failed to find parser: %v\n", id, err)
		m.updateSessionError(sessionID, models.ParseError{Reason: fmt.Sprintf("failed to find parser: %v", err)})
		m.notify(kind, false, time.Since(start))
		return
	}
	kind = p.Kind()
	fmt.Printf("[Parse %s] Using parser: %s\n", id, p.Name())

	m.withState(sessionID, func(state *SessionState) {
		state.Session.Progress = 10
		state.Session.Kind = kind
		state.Session.ParserName = p.Name()
	})

	progressCb := func(lines int, bytesRead, totalBytes int64) {
		progress := 10.0
		if totalBytes > 0 {
			progress += float64(bytesRead) * 80.0 / float64(totalBytes)
		}
		// 90-100% is for indexing
		if progress > 89.9 {
			progress = 89.9
		}
		m.withState(sessionID, func(state *SessionState) {
			state.Session.Progress = progress
		})

		if lines%500000 == 0 {
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			fmt.Printf("[Parse %s] Progress: %.1f%% (%d lines) - Memory: %.1f MB, Intern: %d\n",
				id, progress, lines, float64(memStats.Alloc)/1024/1024, parser.GetGlobalIntern().Len())
		}
	}

	result, err := p.ParseWithProgress(filePath, progressCb)
	if err != nil {
		fmt.Printf("[Parse %s] ERROR: parse failed: %v\n", id, err)
		var fe *parser.FormatError
		if errors.As(err, &fe) {
			m.updateSessionError(sessionID, fe.ToParseError())
		} else {
			m.updateSessionError(sessionID, models.ParseError{Reason: fmt.Sprintf("parse failed: %v", err)})
		}
		m.notify(kind, false, time.Since(start))
		return
	}

	var store *parser.FrameStore
	if result.Kind == models.LogKindGuiding && m.frameDir != "" {
		m.withState(sessionID, func(state *SessionState) { state.Session.Progress = 90 })
		store = m.indexFrames(sessionID, result.Guiding)
	}

	sessions, records := result.Summary()
	fmt.Printf("[Parse %s] Parse complete: %d sessions, %d records in %v\n",
		id, sessions, records, time.Since(start).Round(time.Millisecond))

	elapsed := time.Since(start)
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		if store != nil {
			store.Close()
		}
		return
	}
	state.Result = result
	state.Frames = store
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.SessionCount = sessions
	state.Session.RecordCount = records
	state.Session.ProcessingTimeMs = elapsed.Milliseconds()
	if result.TimeRange != nil {
		state.Session.StartTime = result.TimeRange.Start.UnixMilli()
		state.Session.EndTime = result.TimeRange.End.UnixMilli()
	}
	m.mu.Unlock()

	m.notify(kind, true, elapsed)
}

// indexFrames loads the guiding frames into a DuckDB store. Failure leaves
// the session usable from memory.
func (m *Manager) indexFrames(sessionID string, log *models.PHDLog) *parser.FrameStore {
	store, err := parser.NewFrameStore(m.frameDir, sessionID)
	if err != nil {
		fmt.Printf("[Parse %s] WARNING: frame store unavailable: %v\n", shortID(sessionID), err)
		return nil
	}
	if err := store.IndexLog(context.Background(), log); err != nil {
		fmt.Printf("[Parse %s] WARNING: frame indexing failed: %v\n", shortID(sessionID), err)
		store.Close()
		return nil
	}
	return store
}

func (m *Manager) notify(kind models.LogKind, ok bool, elapsed time.Duration) {
	m.mu.RLock()
	obs := m.observer
	m.mu.RUnlock()
	if obs != nil {
		obs(kind, ok, elapsed)
	}
}

func (m *Manager) withState(sessionID string, fn func(*SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		fn(state)
	}
}

func (m *Manager) updateSessionError(sessionID string, pe models.ParseError) {
	m.withState(sessionID, func(state *SessionState) {
		state.Session.Status = models.SessionStatusError
		state.Session.Errors = append(state.Session.Errors, pe)
	})
}

// cleanupOldSessionsIfNeeded removes finished sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return
	}

	// Oldest access first
	var oldest []string
	for id, state := range m.sessions {
		if !state.Session.Finished() {
			continue
		}
		oldest = append(oldest, id)
	}
	for i := 1; i < len(oldest); i++ {
		for j := i; j > 0 && m.sessions[oldest[j]].LastAccessed.Before(m.sessions[oldest[j-1]].LastAccessed); j-- {
			oldest[j], oldest[j-1] = oldest[j-1], oldest[j]
		}
	}

	toFree := len(m.sessions) - m.maxSessions + 1
	for i := 0; i < toFree && i < len(oldest); i++ {
		m.removeLocked(oldest[i])
		fmt.Printf("[Manager] Cleaned up old session %s to free memory\n", shortID(oldest[i]))
	}
}

func (m *Manager) removeLocked(id string) {
	if state, ok := m.sessions[id]; ok {
		if state.Frames != nil {
			state.Frames.Close()
		}
		delete(m.sessions, id)
	}
}

// CleanupOldSessions removes finished sessions not accessed for maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		if !state.Session.Finished() {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			m.removeLocked(id)
			fmt.Printf("[Manager] Cleaned up aged session %s (last accessed: %s ago)\n",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}

// DeleteSession drops a session and its frame store.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.removeLocked(id)
	return true
}

// Close releases every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.removeLocked(id)
	}
}

// GetSession returns a snapshot of a session's status.
func (m *Manager) GetSession(id string) (*models.ParseSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	snapshot.Errors = append([]models.ParseError(nil), state.Session.Errors...)
	return &snapshot, true
}

// TouchSession updates the LastAccessed timestamp for a session so it
// survives cleanup.
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

// GetResult returns the parsed log of a complete session.
func (m *Manager) GetResult(id string) (*models.ParsedLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Session.Status != models.SessionStatusComplete || state.Result == nil {
		return nil, ErrNotReady
	}
	return state.Result, nil
}

// GuidingLog returns the PHD2 log of a complete guide-log session.
func (m *Manager) GuidingLog(id string) (*models.PHDLog, error) {
	result, err := m.GetResult(id)
	if err != nil {
		return nil, err
	}
	if result.Kind != models.LogKindGuiding {
		return nil, ErrWrongKind
	}
	return result.Guiding, nil
}

// AutorunLog returns the autorun log of a complete autorun session.
func (m *Manager) AutorunLog(id string) (*models.AutorunLog, error) {
	result, err := m.GetResult(id)
	if err != nil {
		return nil, err
	}
	if result.Kind != models.LogKindAutorun {
		return nil, ErrWrongKind
	}
	return result.Autorun, nil
}

// GuidingSession returns one guiding session of a guide-log parse.
func (m *Manager) GuidingSession(id string, index int) (*models.GuidingSession, error) {
	log, err := m.GuidingLog(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(log.GuidingSessions) {
		return nil, ErrIndexOutOfRange
	}
	return &log.GuidingSessions[index], nil
}

// FramesInRange returns the frames of one guiding session between from and
// to inclusive. Zero bounds are open. The DuckDB index answers when
// present; otherwise the in-memory frames are filtered.
func (m *Manager) FramesInRange(ctx context.Context, id string, index int, from, to time.Time) ([]models.GuidingFrame, error) {
	gs, err := m.GuidingSession(id, index)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var store *parser.FrameStore
	if state, ok := m.sessions[id]; ok {
		store = state.Frames
	}
	m.mu.RUnlock()

	if store != nil {
		frames, err := store.FramesInRange(ctx, index, from, to)
		if err == nil {
			return frames, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		fmt.Printf("[Manager] FramesInRange query failed for %s, using memory: %v\n", shortID(id), err)
	}

	frames := make([]models.GuidingFrame, 0, len(gs.Frames))
	for _, f := range gs.Frames {
		if !from.IsZero() && f.Datetime.Before(from) {
			continue
		}
		if !to.IsZero() && f.Datetime.After(to) {
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Summaries returns the SQL per-session summaries of a guide-log parse.
// ok is false when the session has no frame index.
func (m *Manager) Summaries(ctx context.Context, id string) ([]parser.SessionSummary, bool, error) {
	if _, err := m.GuidingLog(id); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	var store *parser.FrameStore
	if state, ok := m.sessions[id]; ok {
		store = state.Frames
	}
	m.mu.RUnlock()
	if store == nil {
		return nil, false, nil
	}
	sums, err := store.Summaries(ctx)
	return sums, true, err
}
