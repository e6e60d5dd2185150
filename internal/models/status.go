package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Phase is the project-wide workflow phase recorded in the status document
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseDevelopment   Phase = "development"
	PhaseReview        Phase = "review"
	PhaseDocumentation Phase = "documentation"
)

// StatusVersion is the schema version written into fresh status documents
const StatusVersion = "1.0"

// MaxNotifications bounds the notification ring buffer
const MaxNotifications = 50

// StatusDocument is the shared, cross-process state file (.ada-status.json).
// Top-level keys this version does not know about are kept in Extra and
// written back unchanged.
type StatusDocument struct {
	Version          string                  `json:"version"`
	UpdatedAt        string                  `json:"updatedAt"`
	CurrentPhase     Phase                   `json:"currentPhase"`
	ActiveSessions   []SessionInfo           `json:"activeSessions"`
	PendingQuestions []Question              `json:"pendingQuestions"`
	TaskProgress     map[string]TaskProgress `json:"taskProgress"`
	Notifications    []Notification          `json:"notifications"`
	Locks            map[string]Lock         `json:"locks"`

	Extra map[string]json.RawMessage `json:"-"`
}

// statusDocumentFields is StatusDocument without custom marshalling
type statusDocumentFields StatusDocument

// knownStatusKeys are the top-level keys owned by StatusDocument
var knownStatusKeys = map[string]bool{
	"version":          true,
	"updatedAt":        true,
	"currentPhase":     true,
	"activeSessions":   true,
	"pendingQuestions": true,
	"taskProgress":     true,
	"notifications":    true,
	"locks":            true,
}

// UnmarshalJSON decodes the known fields and stashes unknown top-level keys
func (d *StatusDocument) UnmarshalJSON(data []byte) error {
	var fields statusDocumentFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*d = StatusDocument(fields)
	d.Extra = nil
	for key, value := range raw {
		if knownStatusKeys[key] {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[key] = value
	}
	return nil
}

// MarshalJSON encodes the known fields in schema order followed by any
// passthrough keys in sorted order
func (d StatusDocument) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(statusDocumentFields(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(d.Extra))
	for key := range d.Extra {
		if !knownStatusKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(base[:len(base)-1])
	for _, key := range keys {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(d.Extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FindSession returns the active session with the given id, or nil
func (d *StatusDocument) FindSession(sessionID string) *SessionInfo {
	for i := range d.ActiveSessions {
		if d.ActiveSessions[i].SessionID == sessionID {
			return &d.ActiveSessions[i]
		}
	}
	return nil
}

// FindQuestion returns the question with the given id, or nil
func (d *StatusDocument) FindQuestion(questionID string) *Question {
	for i := range d.PendingQuestions {
		if d.PendingQuestions[i].ID == questionID {
			return &d.PendingQuestions[i]
		}
	}
	return nil
}

// Lock is an advisory, in-band file lock held by a session
type Lock struct {
	Holder     string `json:"holder"`     // sessionId of the holder
	AcquiredAt string `json:"acquiredAt"` // ISO timestamp
}

// TaskProgress is the free-form progress entry for a task.
// Well-known keys are status, progress and lastUpdate.
type TaskProgress map[string]any

// Status returns the progress entry's status field, if it is a string
func (p TaskProgress) Status() string {
	s, _ := p["status"].(string)
	return s
}

// QuestionPriority ranks how urgently a question needs an answer
type QuestionPriority string

const (
	PriorityLow    QuestionPriority = "low"
	PriorityNormal QuestionPriority = "normal"
	PriorityHigh   QuestionPriority = "high"
	PriorityUrgent QuestionPriority = "urgent"
)

// QuestionStatus is waiting until answered, exactly once
type QuestionStatus string

const (
	QuestionWaiting  QuestionStatus = "waiting"
	QuestionAnswered QuestionStatus = "answered"
)

// Question is a request for human or cross-role input
type Question struct {
	ID         string           `json:"id"`
	From       string           `json:"from"`
	To         string           `json:"to"`
	Question   string           `json:"question"`
	Options    []string         `json:"options"`
	Priority   QuestionPriority `json:"priority"`
	Status     QuestionStatus   `json:"status"`
	CreatedAt  string           `json:"createdAt"`
	Answer     string           `json:"answer,omitempty"`
	AnsweredAt string           `json:"answeredAt,omitempty"`
}

// NotificationType classifies a notification
type NotificationType string

const (
	NotifyInfo     NotificationType = "info"
	NotifyWarning  NotificationType = "warning"
	NotifyError    NotificationType = "error"
	NotifyQuestion NotificationType = "question"
	NotifyComplete NotificationType = "complete"
)

// NotifyAll addresses a notification to every role and session
const NotifyAll = "all"

// Notification is one entry of the bounded notification buffer
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt string           `json:"createdAt"`
	ReadAt    string           `json:"readAt,omitempty"`
}

// isoLayout matches the millisecond UTC timestamps written into the status document
const isoLayout = "2006-01-02T15:04:05.000Z"

// FormatISO renders t as a UTC ISO-8601 timestamp with millisecond precision
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses timestamps written by FormatISO or any RFC 3339 writer
func ParseISO(s string) (time.Time, error) {
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
