// Package session manages the lifecycle of agent sessions: the durable
// session.json record, the per-session log, registration in the shared
// status document and cleanup of sessions whose process went away.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/status"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

const (
	recordFile = "session.json"
	promptFile = "system-prompt.md"
)

// ErrSessionNotFound is returned when no session directory matches an id
var ErrSessionNotFound = errors.New("session not found")

// Manager creates, lists and cleans up sessions of one workspace
type Manager struct {
	ws    *workspace.Workspace
	store *status.Store
	log   logger.Logger
	now   func() time.Time
	alive func(pid int) (alive, known bool)
}

// NewManager creates a Manager. log may be nil.
func NewManager(ws *workspace.Workspace, store *status.Store, log logger.Logger) *Manager {
	return &Manager{
		ws:    ws,
		store: store,
		log:   logger.OrNop(log),
		now:   time.Now,
		alive: processAlive,
	}
}

// Store returns the status store the manager registers sessions in
func (m *Manager) Store() *status.Store {
	return m.store
}

// Session is one running agent session
type Session struct {
	Record models.SessionFile
	Dir    string
	Log    *logger.SessionLog

	m *Manager
}

// ID returns the session id
func (s *Session) ID() string {
	return s.Record.SessionID
}

// PromptFile is where the composed system prompt is written
func (s *Session) PromptFile() string {
	return filepath.Join(s.Dir, promptFile)
}

// WritePrompt stores the system prompt in the session directory and returns its path
func (s *Session) WritePrompt(content string) (string, error) {
	path := s.PromptFile()
	if err := filelock.AtomicWrite(path, []byte(content)); err != nil {
		return "", fmt.Errorf("write system prompt: %w", err)
	}
	return path, nil
}

// Create starts a session for role and tool: it writes session.json with
// status active, opens the session log and registers the session in the
// status document.
func (m *Manager) Create(role, tool string) (*Session, error) {
	if err := m.ws.EnsureSessionDirs(); err != nil {
		return nil, err
	}

	now := m.now()
	id := workspace.NewSessionID(now)
	dir := m.ws.SessionDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	sess := &Session{
		Record: models.SessionFile{
			SessionID: id,
			Role:      role,
			Tool:      tool,
			Template:  m.ws.CurrentTemplate(),
			StartedAt: workspace.Timestamp(now),
			Status:    models.SessionActive,
		},
		Dir: dir,
		m:   m,
	}
	if err := sess.save(); err != nil {
		return nil, err
	}

	log, err := logger.OpenSessionLog(m.ws.LogFile(id))
	if err != nil {
		return nil, err
	}
	sess.Log = log

	log.Infof("session started: role=%s tool=%s", role, tool)
	if m.store.RegisterSession(id, role, tool) {
		log.Infof("session registered: %s", id)
	} else {
		log.Warnf("session %s could not be registered in the status file", id)
	}
	return sess, nil
}

// Complete marks the session completed, records output, unregisters it
// and closes the log
func (s *Session) Complete(output string) error {
	s.Record.Status = models.SessionCompleted
	s.Record.EndedAt = workspace.Timestamp(s.m.now())
	s.Record.Output = output
	s.Log.Infof("session completed")
	return s.finish()
}

// Fail marks the session as errored with cause, unregisters it and closes the log
func (s *Session) Fail(cause error) error {
	s.Record.Status = models.SessionError
	s.Record.EndedAt = workspace.Timestamp(s.m.now())
	if cause != nil {
		s.Record.Error = cause.Error()
		s.Log.Errorf("session failed: %v", cause)
	}
	return s.finish()
}

func (s *Session) finish() error {
	saveErr := s.save()
	s.m.store.UnregisterSession(s.ID())
	s.Log.Infof("session unregistered: %s", s.ID())
	s.Log.Close()
	return saveErr
}

func (s *Session) save() error {
	data, err := json.MarshalIndent(s.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := filelock.AtomicWrite(filepath.Join(s.Dir, recordFile), data); err != nil {
		return fmt.Errorf("save session record: %w", err)
	}
	return nil
}

// Load reads the session.json of id
func (m *Manager) Load(id string) (*models.SessionFile, error) {
	data, err := os.ReadFile(filepath.Join(m.ws.SessionDir(id), recordFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var rec models.SessionFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if rec.SessionID == "" {
		rec.SessionID = id
	}
	return &rec, nil
}

// IDs lists session directory names, newest first. Ids start with a
// timestamp, so reverse lexical order is reverse chronological.
func (m *Manager) IDs() ([]string, error) {
	entries, err := os.ReadDir(m.ws.SessionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	logsDir := filepath.Base(m.ws.LogsDir())
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == logsDir {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// List returns up to limit session records, newest first. A directory
// whose session.json is missing or unreadable yields a record with only
// the id set. limit <= 0 returns every session.
func (m *Manager) List(limit int) ([]models.SessionFile, error) {
	ids, err := m.IDs()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.SessionFile, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Load(id)
		if err != nil {
			m.log.Debugf("session %s: %v", id, err)
			out = append(out, models.SessionFile{SessionID: id})
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// LatestID returns the newest session id, or "" when there is none
func (m *Manager) LatestID() string {
	ids, err := m.IDs()
	if err != nil || len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// ReadLog returns the last n lines of a session log, or all of it for n <= 0
func (m *Manager) ReadLog(id string, n int) ([]string, error) {
	return logger.ReadLines(m.ws.LogFile(id), n)
}

// CleanupReport summarizes CleanupCompleted
type CleanupReport struct {
	Removed []string
	Kept    []string
	Failed  map[string]error
}

// CleanupCompleted deletes the directories of sessions whose record says
// completed. Everything else is kept.
func (m *Manager) CleanupCompleted() (*CleanupReport, error) {
	ids, err := m.IDs()
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Failed: map[string]error{}}
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		rec, err := m.Load(id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				report.Kept = append(report.Kept, id)
			} else {
				report.Failed[id] = err
			}
			continue
		}
		if rec.Status != models.SessionCompleted {
			report.Kept = append(report.Kept, id)
			continue
		}
		if err := os.RemoveAll(m.ws.SessionDir(id)); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Removed = append(report.Removed, id)
	}
	return report, nil
}
