package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// DefaultZombieMaxAge is the age after which a session without a known pid
// is considered abandoned
const DefaultZombieMaxAge = 60 * time.Minute

type zombieReason string

const (
	reasonProcess zombieReason = "process"
	reasonTime    zombieReason = "time"
)

func (r zombieReason) message() string {
	if r == reasonProcess {
		return "process exit detected"
	}
	return "stale session"
}

// CleanupZombieSessions removes abandoned sessions from the status document
// and returns how many were removed.
//
// A session with a pid is removed exactly when that process is gone; a live
// process is kept however old it is. A session without a pid is removed once
// it is older than maxAge or its start time cannot be parsed. The session.json
// of each removed session is marked as errored, and one info notification
// summarizes the cleanup.
func (m *Manager) CleanupZombieSessions(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultZombieMaxAge
	}

	removed := map[string]zombieReason{}
	m.store.Update(func(doc *models.StatusDocument) bool {
		clear(removed)
		kept := make([]models.SessionInfo, 0, len(doc.ActiveSessions))
		for _, sess := range doc.ActiveSessions {
			if reason, zombie := m.classify(sess, maxAge); zombie {
				removed[sess.SessionID] = reason
				continue
			}
			kept = append(kept, sess)
		}
		if len(removed) == 0 {
			return false
		}

		doc.ActiveSessions = kept
		for path, lock := range doc.Locks {
			if _, gone := removed[lock.Holder]; gone {
				delete(doc.Locks, path)
			}
		}
		return true
	})

	for id, reason := range removed {
		if err := m.markSessionFileAsError(id, reason); err != nil {
			m.log.Warnf("could not mark session %s as errored: %v", id, err)
		}
	}

	if len(removed) > 0 {
		m.store.AddNotification(models.NotifyInfo, "system",
			fmt.Sprintf("cleaned up %d zombie session(s)", len(removed)), models.NotifyAll)
		m.log.Infof("cleaned up %d zombie session(s)", len(removed))
	}
	return len(removed)
}

func (m *Manager) classify(sess models.SessionInfo, maxAge time.Duration) (zombieReason, bool) {
	if alive, known := m.alive(sess.PID); known {
		return reasonProcess, !alive
	}

	started, err := models.ParseISO(sess.StartedAt)
	if err != nil {
		return reasonTime, true
	}
	return reasonTime, m.now().Sub(started) >= maxAge
}

// markSessionFileAsError flags an abandoned session's record. Records that
// already finished are left alone, and fields this version does not know
// about are preserved.
func (m *Manager) markSessionFileAsError(id string, reason zombieReason) error {
	path := filepath.Join(m.ws.SessionDir(id), recordFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if current, ok := record["status"]; ok && current != string(models.SessionActive) {
		return nil
	}

	record["status"] = string(models.SessionError)
	record["error"] = reason.message()
	if _, ok := record["ended_at"]; !ok {
		record["ended_at"] = workspace.Timestamp(m.now())
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return filelock.AtomicWrite(path, out)
}
