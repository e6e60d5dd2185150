package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

var (
	// ErrQuestionNotFound is returned when answering an unknown question id
	ErrQuestionNotFound = errors.New("question not found")

	// ErrAlreadyAnswered is returned when a question was answered before
	ErrAlreadyAnswered = errors.New("question already answered")
)

// PendingQuestions returns the questions still waiting for an answer
func (s *Store) PendingQuestions() []models.Question {
	var out []models.Question
	for _, q := range s.Read().PendingQuestions {
		if q.Status == models.QuestionWaiting {
			out = append(out, q)
		}
	}
	return out
}

// AddQuestion records a waiting question and notifies its addressee.
// The id is "Q" + the requester's initial + a three digit sequence.
func (s *Store) AddQuestion(from, to, question string, options []string, priority models.QuestionPriority) (string, bool) {
	if priority == "" {
		priority = models.PriorityNormal
	}
	if options == nil {
		options = []string{}
	}

	var id string
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		id = fmt.Sprintf("Q%s%03d", initial(from), len(doc.PendingQuestions)+1)
		doc.PendingQuestions = append(doc.PendingQuestions, models.Question{
			ID:        id,
			From:      from,
			To:        to,
			Question:  question,
			Options:   options,
			Priority:  priority,
			Status:    models.QuestionWaiting,
			CreatedAt: s.timestamp(),
		})
		s.appendNotification(doc, models.NotifyQuestion, from, fmt.Sprintf("new question [%s]: %s", id, question), to)
		return true
	})
	return id, ok
}

// AnswerQuestion answers a waiting question exactly once. Notifications that
// mention the question id are marked read and the asker is notified.
func (s *Store) AnswerQuestion(questionID, answer string) error {
	var opErr error
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		q := doc.FindQuestion(questionID)
		if q == nil {
			opErr = fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
			return false
		}
		if q.Status == models.QuestionAnswered {
			opErr = fmt.Errorf("%w: %s", ErrAlreadyAnswered, questionID)
			return false
		}

		now := s.timestamp()
		q.Status = models.QuestionAnswered
		q.Answer = answer
		q.AnsweredAt = now

		for i := range doc.Notifications {
			n := &doc.Notifications[i]
			if !n.Read && strings.Contains(n.Message, questionID) {
				n.Read = true
				n.ReadAt = now
			}
		}
		s.appendNotification(doc, models.NotifyInfo, "manager", fmt.Sprintf("question %s answered: %s", questionID, answer), q.From)
		return true
	})
	if opErr != nil {
		return opErr
	}
	if !ok {
		return fmt.Errorf("save answer to %s: status file write failed", questionID)
	}
	return nil
}

// AddNotification appends a notification and returns its id.
// An empty to addresses everyone.
func (s *Store) AddNotification(kind models.NotificationType, from, message, to string) (string, bool) {
	var id string
	_, ok := s.Update(func(doc *models.StatusDocument) bool {
		id = s.appendNotification(doc, kind, from, message, to)
		return true
	})
	return id, ok
}

// MarkNotificationRead marks one unread notification as read
func (s *Store) MarkNotificationRead(id string) bool {
	return s.MarkNotificationsRead([]string{id}) == 1
}

// MarkNotificationsRead marks the given unread notifications and returns how many changed
func (s *Store) MarkNotificationsRead(ids []string) int {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return s.MarkNotificationsWhere(func(n models.Notification) bool { return wanted[n.ID] })
}

// MarkNotificationsWhere marks every unread notification matching filter and
// returns how many changed
func (s *Store) MarkNotificationsWhere(filter func(models.Notification) bool) int {
	count := 0
	s.Update(func(doc *models.StatusDocument) bool {
		now := s.timestamp()
		for i := range doc.Notifications {
			n := &doc.Notifications[i]
			if !n.Read && filter(*n) {
				n.Read = true
				n.ReadAt = now
				count++
			}
		}
		return count > 0
	})
	return count
}

// UnreadNotifications returns unread notifications addressed to to or to
// everyone. An empty to returns all unread notifications.
func (s *Store) UnreadNotifications(to string) []models.Notification {
	var out []models.Notification
	for _, n := range s.Read().Notifications {
		if n.Read {
			continue
		}
		if to == "" || n.To == to || n.To == models.NotifyAll || n.To == "" {
			out = append(out, n)
		}
	}
	return out
}

// appendNotification adds a notification to doc and trims the buffer to the
// newest MaxNotifications entries. Ids keep increasing across trims.
func (s *Store) appendNotification(doc *models.StatusDocument, kind models.NotificationType, from, message, to string) string {
	if to == "" {
		to = models.NotifyAll
	}

	id := fmt.Sprintf("N%03d", nextNotificationSeq(doc.Notifications))
	doc.Notifications = append(doc.Notifications, models.Notification{
		ID:        id,
		Type:      kind,
		From:      from,
		To:        to,
		Message:   message,
		CreatedAt: s.timestamp(),
	})
	if over := len(doc.Notifications) - models.MaxNotifications; over > 0 {
		doc.Notifications = append([]models.Notification(nil), doc.Notifications[over:]...)
	}
	return id
}

func nextNotificationSeq(list []models.Notification) int {
	next := len(list) + 1
	for _, n := range list {
		if seq, err := strconv.Atoi(strings.TrimPrefix(n.ID, "N")); err == nil && seq >= next {
			next = seq + 1
		}
	}
	return next
}

// initial returns the upper-cased first letter of name, or "X" for an empty name
func initial(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return "X"
	}
	return string(unicode.ToUpper(r))
}
