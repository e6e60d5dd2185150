package status

import (
	"fmt"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// AcquireLock takes the advisory lock on path for sessionID.
// A lock older than the lock timeout is force-released with a warning
// notification. Re-acquiring a lock already held by sessionID refreshes it.
// Locks are advisory: nothing stops a process from ignoring them.
func (s *Store) AcquireLock(sessionID, path string) bool {
	acquired := false
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		changed := false
		if lock, held := doc.Locks[path]; held && lock.Holder != sessionID {
			if !s.expired(lock) {
				return false
			}
			s.appendNotification(doc, models.NotifyWarning, "system",
				fmt.Sprintf("file lock timed out: %s (%s)", path, lock.Holder), models.NotifyAll)
			delete(doc.Locks, path)
			changed = true
		}

		if doc.FindSession(sessionID) == nil {
			s.log.Warnf("lock on %s refused: session %s is not active", path, sessionID)
			return changed
		}

		doc.Locks[path] = models.Lock{Holder: sessionID, AcquiredAt: s.timestamp()}
		acquired = true
		return true
	})
	return acquired && ok
}

// ReleaseLock releases path if sessionID holds it
func (s *Store) ReleaseLock(sessionID, path string) bool {
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		lock, held := doc.Locks[path]
		if !held || lock.Holder != sessionID {
			return false
		}
		delete(doc.Locks, path)
		return true
	})
	return ok
}

// LockHolder returns the session holding path, or "" when it is free or expired
func (s *Store) LockHolder(path string) string {
	lock, held := s.Read().Locks[path]
	if !held || s.expired(lock) {
		return ""
	}
	return lock.Holder
}

func (s *Store) expired(lock models.Lock) bool {
	acquired, err := models.ParseISO(lock.AcquiredAt)
	if err != nil {
		return true
	}
	return s.now().Sub(acquired) > s.lockTimeout
}
