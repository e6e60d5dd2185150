// Package status implements the shared status document (.ada-status.json)
// that every ada process reads and writes.
//
// There is no cross-process lock on the document. Writes replace the file
// atomically through a temp file and rename, reads retry with a small random
// backoff, and concurrent writers race with the last one winning. Read never
// fails: once retries are exhausted it returns an empty default document.
package status

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// Defaults for a Store built without options
const (
	DefaultRetries     = 3
	DefaultLockTimeout = 30 * time.Second
	maxBackoff         = 100 * time.Millisecond
)

// Store reads and mutates the status document at a fixed path
type Store struct {
	path        string
	retries     int
	lockTimeout time.Duration
	log         logger.Logger
	now         func() time.Time
	sleep       func(time.Duration)
	writeFile   func(path string, data []byte) error
}

// Option configures a Store
type Option func(*Store)

// WithRetries sets the read and write retry budget
func WithRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithLockTimeout sets when advisory locks expire
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger routes store failures to l
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store for the document at path
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		retries:     DefaultRetries,
		lockTimeout: DefaultLockTimeout,
		log:         logger.Nop{},
		now:         time.Now,
		sleep:       time.Sleep,
		writeFile:   filelock.AtomicWrite,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document path
func (s *Store) Path() string {
	return s.path
}

// Empty returns a fresh default document
func (s *Store) Empty() *models.StatusDocument {
	doc := &models.StatusDocument{}
	backfill(doc, s.timestamp())
	return doc
}

// Read loads the document. A missing file is initialized with the empty
// default. A parse failure gets one backslash-escape repair, which is saved
// back on success. Other failures are retried; after the last retry the
// failure is logged and an empty default is returned.
func (s *Store) Read() *models.StatusDocument {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		doc, err := s.readOnce()
		if err == nil {
			return doc
		}
		lastErr = err
		if attempt < s.retries-1 {
			s.backoff()
		}
	}

	s.log.Errorf("status file read failed after %d attempts: %v", s.retries, lastErr)
	return s.Empty()
}

func (s *Store) readOnce() (*models.StatusDocument, error) {
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		doc := s.Empty()
		if err := s.save(doc); err != nil {
			return nil, fmt.Errorf("initialize status file: %w", err)
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	doc := &models.StatusDocument{}
	if err := json.Unmarshal(content, doc); err == nil {
		backfill(doc, s.timestamp())
		return doc, nil
	} else if _, isSyntax := err.(*json.SyntaxError); !isSyntax {
		return nil, fmt.Errorf("decode status file: %w", err)
	}

	repaired := bytes.ReplaceAll(content, []byte(`\`), []byte(`\\`))
	doc = &models.StatusDocument{}
	if err := json.Unmarshal(repaired, doc); err != nil {
		return nil, fmt.Errorf("decode status file (after repair): %w", err)
	}
	backfill(doc, s.timestamp())

	s.log.Warnf("repaired malformed escapes in %s", s.path)
	if err := s.save(doc); err != nil {
		s.log.Warnf("could not save repaired status file: %v", err)
	}
	return doc, nil
}

// Write stamps updatedAt and atomically replaces the document, retrying on
// failure. It reports false once retries are exhausted.
func (s *Store) Write(doc *models.StatusDocument) bool {
	doc.UpdatedAt = s.timestamp()

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if lastErr = s.save(doc); lastErr == nil {
			return true
		}
		if attempt < s.retries-1 {
			s.backoff()
		}
	}

	s.log.Errorf("status file write failed after %d attempts: %v", s.retries, lastErr)
	return false
}

func (s *Store) save(doc *models.StatusDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status document: %w", err)
	}
	return s.writeFile(s.path, data)
}

// Update runs a read-modify-write cycle. mutate reports whether it changed
// the document; only then is it written. The returned bool is false when
// nothing changed or the write failed.
func (s *Store) Update(mutate func(doc *models.StatusDocument) bool) (*models.StatusDocument, bool) {
	doc := s.Read()
	if !mutate(doc) {
		return doc, false
	}
	return doc, s.Write(doc)
}

func (s *Store) backoff() {
	s.sleep(time.Duration(rand.Int63n(int64(maxBackoff))))
}

func (s *Store) timestamp() string {
	return models.FormatISO(s.now())
}

// backfill fills every absent top-level field with its empty default
func backfill(doc *models.StatusDocument, now string) {
	if doc.Version == "" {
		doc.Version = models.StatusVersion
	}
	if doc.UpdatedAt == "" {
		doc.UpdatedAt = now
	}
	if doc.CurrentPhase == "" {
		doc.CurrentPhase = models.PhasePlanning
	}
	if doc.ActiveSessions == nil {
		doc.ActiveSessions = []models.SessionInfo{}
	}
	if doc.PendingQuestions == nil {
		doc.PendingQuestions = []models.Question{}
	}
	if doc.TaskProgress == nil {
		doc.TaskProgress = map[string]models.TaskProgress{}
	}
	if doc.Notifications == nil {
		doc.Notifications = []models.Notification{}
	}
	if doc.Locks == nil {
		doc.Locks = map[string]models.Lock{}
	}
}
