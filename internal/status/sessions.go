package status

import (
	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// ActiveSessions returns the sessions currently registered
func (s *Store) ActiveSessions() []models.SessionInfo {
	return s.Read().ActiveSessions
}

// SessionsForRole returns the active sessions running role
func (s *Store) SessionsForRole(role string) []models.SessionInfo {
	var out []models.SessionInfo
	for _, sess := range s.ActiveSessions() {
		if sess.Role == role {
			out = append(out, sess)
		}
	}
	return out
}

// RegisterSession appends an active session record. It is a no-op when a
// record with sessionID already exists. The result reports whether the
// stored document holds the session; a failed write reports false.
func (s *Store) RegisterSession(sessionID, role, tool string) bool {
	existed := false
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		if doc.FindSession(sessionID) != nil {
			existed = true
			return false
		}
		doc.ActiveSessions = append(doc.ActiveSessions, models.SessionInfo{
			SessionID: sessionID,
			Role:      role,
			Tool:      tool,
			StartedAt: s.timestamp(),
			Status:    models.SessionActive,
		})
		return true
	})
	return ok || existed
}

// UnregisterSession removes the session and releases every lock it holds
func (s *Store) UnregisterSession(sessionID string) bool {
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		changed := removeSession(doc, sessionID)
		for path, lock := range doc.Locks {
			if lock.Holder == sessionID {
				delete(doc.Locks, path)
				changed = true
			}
		}
		return changed
	})
	return ok
}

// UpdateSessionStatus sets the session status. A session that is no longer
// registered is left alone.
func (s *Store) UpdateSessionStatus(sessionID string, status models.SessionStatus) bool {
	return s.UpdateSessionDetails(sessionID, models.SessionDetails{Status: &status})
}

// UpdateSessionDetails merges details into the session and stamps lastUpdate.
// A session that is no longer registered is left alone.
func (s *Store) UpdateSessionDetails(sessionID string, details models.SessionDetails) bool {
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		sess := doc.FindSession(sessionID)
		if sess == nil {
			return false
		}
		details.Apply(sess)
		sess.LastUpdate = s.timestamp()
		return true
	})
	return ok
}

// SetPhase records the project-wide workflow phase
func (s *Store) SetPhase(phase models.Phase) bool {
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		if doc.CurrentPhase == phase {
			return false
		}
		doc.CurrentPhase = phase
		return true
	})
	return ok
}

// UpdateTaskProgress merges updates into the task's progress entry and stamps lastUpdate
func (s *Store) UpdateTaskProgress(taskID string, updates map[string]interface{}) bool {
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		entry := doc.TaskProgress[taskID]
		if entry == nil {
			entry = models.TaskProgress{}
		}
		for k, v := range updates {
			entry[k] = v
		}
		entry["lastUpdate"] = s.timestamp()
		doc.TaskProgress[taskID] = entry
		return true
	})
	return ok
}

func removeSession(doc *models.StatusDocument, sessionID string) bool {
	kept := doc.ActiveSessions[:0]
	removed := false
	for _, sess := range doc.ActiveSessions {
		if sess.SessionID == sessionID {
			removed = true
			continue
		}
		kept = append(kept, sess)
	}
	doc.ActiveSessions = kept
	return removed
}
