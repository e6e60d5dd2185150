package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

func TestRegisterSession_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)

	assert.True(t, s.RegisterSession("s1", "developer", "claude"))
	assert.True(t, s.RegisterSession("s1", "developer", "claude"))

	sessions := s.ActiveSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionActive, sessions[0].Status)
	assert.Equal(t, "2026-05-01T12:00:00.000Z", sessions[0].StartedAt)
}

func TestRegisterSession_UnwritableDocument(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))
	s := NewStore(filepath.Join(parent, ".ada-status.json"), WithRetries(1))
	s.sleep = func(time.Duration) {}

	assert.False(t, s.RegisterSession("s1", "developer", "claude"))
	assert.Empty(t, s.ActiveSessions())
}

func TestWriteFailuresAreReported(t *testing.T) {
	s, _ := newTestStore(t)
	require.True(t, s.RegisterSession("s1", "developer", "claude"))
	require.True(t, s.AcquireLock("s1", "artifacts/plan.md"))

	s.writeFile = func(string, []byte) error { return errors.New("disk full") }

	assert.False(t, s.RegisterSession("s2", "reviewer", "claude"))
	assert.True(t, s.RegisterSession("s1", "developer", "claude"), "an already stored session needs no write")
	assert.False(t, s.AcquireLock("s1", "artifacts/api.md"))
	assert.False(t, s.AcquireLock("s1", "artifacts/plan.md"), "a refresh that cannot be saved is not a lock")

	doc := s.Read()
	assert.Nil(t, doc.FindSession("s2"))
	assert.NotContains(t, doc.Locks, "artifacts/api.md")
}

func TestUnregisterSession_ReleasesLocks(t *testing.T) {
	s, _ := newTestStore(t)
	s.RegisterSession("s1", "developer", "claude")
	s.RegisterSession("s2", "reviewer", "claude")

	require.True(t, s.AcquireLock("s1", "artifacts/plan.md"))
	require.True(t, s.AcquireLock("s1", "artifacts/api.md"))
	require.True(t, s.AcquireLock("s2", "artifacts/ui.md"))

	require.True(t, s.UnregisterSession("s1"))

	doc := s.Read()
	assert.Nil(t, doc.FindSession("s1"))
	for path, lock := range doc.Locks {
		assert.NotEqual(t, "s1", lock.Holder, "lock on %s still held", path)
	}
	assert.Equal(t, "s2", doc.Locks["artifacts/ui.md"].Holder)
}

func TestUpdateSessionDetails(t *testing.T) {
	s, now := newTestStore(t)
	s.RegisterSession("s1", "developer", "claude")

	*now = now.Add(time.Minute)
	pid := 4321
	task := "task-007"
	require.True(t, s.UpdateSessionDetails("s1", models.SessionDetails{PID: &pid, CurrentTask: &task}))
	require.True(t, s.UpdateSessionStatus("s1", models.SessionIdle))

	sess := s.Read().FindSession("s1")
	require.NotNil(t, sess)
	assert.Equal(t, 4321, sess.PID)
	assert.Equal(t, "task-007", sess.CurrentTask)
	assert.Equal(t, models.SessionIdle, sess.Status)
	assert.Equal(t, "2026-05-01T12:01:00.000Z", sess.LastUpdate)

	assert.False(t, s.UpdateSessionStatus("gone", models.SessionError), "unknown sessions are a no-op")
	assert.Len(t, s.ActiveSessions(), 1)
}

func TestSessionsForRole(t *testing.T) {
	s, _ := newTestStore(t)
	s.RegisterSession("s1", "developer", "claude")
	s.RegisterSession("s2", "reviewer", "gemini")

	assert.Len(t, s.SessionsForRole("developer"), 1)
	assert.Empty(t, s.SessionsForRole("qa"))
}

func TestQuestionLifecycle(t *testing.T) {
	s, _ := newTestStore(t)

	id, ok := s.AddQuestion("developer", "manager", "Which DB?", []string{"postgres", "sqlite"}, models.PriorityHigh)
	require.True(t, ok)
	assert.Equal(t, "QD001", id)

	id2, _ := s.AddQuestion("planner", "all", "Scope?", nil, "")
	assert.Equal(t, "QP002", id2)

	pending := s.PendingQuestions()
	require.Len(t, pending, 2)
	assert.Equal(t, models.PriorityNormal, pending[1].Priority)
	assert.NotNil(t, pending[1].Options)

	doc := s.Read()
	require.Len(t, doc.Notifications, 2)
	assert.Equal(t, models.NotifyQuestion, doc.Notifications[0].Type)
	assert.Equal(t, "manager", doc.Notifications[0].To)
	assert.Contains(t, doc.Notifications[0].Message, "QD001")

	require.NoError(t, s.AnswerQuestion("QD001", "postgres"))

	doc = s.Read()
	q := doc.FindQuestion("QD001")
	assert.Equal(t, models.QuestionAnswered, q.Status)
	assert.Equal(t, "postgres", q.Answer)
	assert.NotEmpty(t, q.AnsweredAt)

	assert.True(t, doc.Notifications[0].Read, "notification mentioning the question is read")
	assert.NotEmpty(t, doc.Notifications[0].ReadAt)
	assert.False(t, doc.Notifications[1].Read, "unrelated notification untouched")

	reply := doc.Notifications[len(doc.Notifications)-1]
	assert.Equal(t, "developer", reply.To)
	assert.Equal(t, "manager", reply.From)
	assert.False(t, reply.Read)

	assert.Len(t, s.PendingQuestions(), 1)

	err := s.AnswerQuestion("QD001", "sqlite")
	assert.True(t, errors.Is(err, ErrAlreadyAnswered))
	assert.Equal(t, "postgres", s.Read().FindQuestion("QD001").Answer)

	err = s.AnswerQuestion("QZ999", "x")
	assert.True(t, errors.Is(err, ErrQuestionNotFound))
}

func TestNotificationRingBuffer(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 1; i <= models.MaxNotifications+5; i++ {
		s.AddNotification(models.NotifyInfo, "system", fmt.Sprintf("msg %d", i), "")
	}

	doc := s.Read()
	require.Len(t, doc.Notifications, models.MaxNotifications)
	assert.Equal(t, "msg 6", doc.Notifications[0].Message, "oldest entries dropped")
	assert.Equal(t, "N055", doc.Notifications[len(doc.Notifications)-1].ID)
	assert.Equal(t, models.NotifyAll, doc.Notifications[0].To)

	seen := map[string]bool{}
	for _, n := range doc.Notifications {
		assert.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
}

func TestMarkNotifications(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.AddNotification(models.NotifyInfo, "planner", "a", "developer")
	b, _ := s.AddNotification(models.NotifyWarning, "system", "b", "")
	c, _ := s.AddNotification(models.NotifyInfo, "planner", "c", "reviewer")

	assert.Len(t, s.UnreadNotifications("developer"), 2, "own plus broadcast")
	assert.Len(t, s.UnreadNotifications(""), 3)

	assert.True(t, s.MarkNotificationRead(a))
	assert.False(t, s.MarkNotificationRead(a), "already read")
	assert.Equal(t, 2, s.MarkNotificationsRead([]string{a, b, c, "N999"}))
	assert.Empty(t, s.UnreadNotifications(""))
}

func TestMarkNotificationsWhere(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddNotification(models.NotifyError, "system", "x", "")
	s.AddNotification(models.NotifyInfo, "system", "y", "")

	n := s.MarkNotificationsWhere(func(n models.Notification) bool { return n.Type == models.NotifyError })
	assert.Equal(t, 1, n)
	assert.Len(t, s.UnreadNotifications(""), 1)
}

func TestLocks(t *testing.T) {
	s, _ := newTestStore(t)
	s.RegisterSession("s1", "developer", "claude")
	s.RegisterSession("s2", "reviewer", "claude")

	require.True(t, s.AcquireLock("s1", "plan.md"))
	assert.False(t, s.AcquireLock("s2", "plan.md"), "held by another session")
	assert.True(t, s.AcquireLock("s1", "plan.md"), "re-acquire by holder refreshes")
	assert.Equal(t, "s1", s.LockHolder("plan.md"))

	assert.False(t, s.ReleaseLock("s2", "plan.md"), "only the holder may release")
	assert.True(t, s.ReleaseLock("s1", "plan.md"))
	assert.Equal(t, "", s.LockHolder("plan.md"))

	assert.False(t, s.AcquireLock("ghost", "plan.md"), "inactive sessions cannot hold locks")
}

func TestLocks_TimeoutForceRelease(t *testing.T) {
	s, now := newTestStore(t, WithLockTimeout(30*time.Second))
	s.RegisterSession("s1", "developer", "claude")
	s.RegisterSession("s2", "reviewer", "claude")

	require.True(t, s.AcquireLock("s1", "plan.md"))

	*now = now.Add(31 * time.Second)
	assert.Equal(t, "", s.LockHolder("plan.md"), "expired locks report free")
	require.True(t, s.AcquireLock("s2", "plan.md"))

	doc := s.Read()
	assert.Equal(t, "s2", doc.Locks["plan.md"].Holder)
	last := doc.Notifications[len(doc.Notifications)-1]
	assert.Equal(t, models.NotifyWarning, last.Type)
	assert.Equal(t, "system", last.From)
	assert.True(t, strings.Contains(last.Message, "plan.md") && strings.Contains(last.Message, "s1"))
}

func TestUpdateTaskProgressAndPhase(t *testing.T) {
	s, _ := newTestStore(t)

	require.True(t, s.UpdateTaskProgress("task-001", map[string]interface{}{"status": "IN_DEV", "progress": 30}))
	require.True(t, s.UpdateTaskProgress("task-001", map[string]interface{}{"progress": 60}))

	entry := s.Read().TaskProgress["task-001"]
	assert.Equal(t, "IN_DEV", entry.Status())
	assert.EqualValues(t, 60, entry["progress"])
	assert.NotEmpty(t, entry["lastUpdate"])

	assert.True(t, s.SetPhase(models.PhaseReview))
	assert.False(t, s.SetPhase(models.PhaseReview), "unchanged phase is not rewritten")
	assert.Equal(t, models.PhaseReview, s.Read().CurrentPhase)
}
