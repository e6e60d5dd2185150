package models

import "strings"

// TaskStatus is the canonical lifecycle state of a task document
type TaskStatus string

// Canonical task statuses. Aliases found in task files are folded into these
// by NormalizeTaskStatus.
const (
	TaskBacklog  TaskStatus = "BACKLOG"
	TaskInDev    TaskStatus = "IN_DEV"
	TaskInReview TaskStatus = "IN_REVIEW"
	TaskInQA     TaskStatus = "IN_QA"
	TaskDone     TaskStatus = "DONE"
	TaskReject   TaskStatus = "REJECT"
	TaskBlocked  TaskStatus = "BLOCKED"
	TaskUnknown  TaskStatus = "UNKNOWN"
)

// AllTaskStatuses lists the canonical statuses in workflow order
var AllTaskStatuses = []TaskStatus{
	TaskBacklog, TaskInDev, TaskInReview, TaskInQA, TaskDone, TaskReject, TaskBlocked, TaskUnknown,
}

// taskStatusAliases maps tokens seen in hand-edited task files to canonical statuses
var taskStatusAliases = map[string]TaskStatus{
	"BACKLOG":     TaskBacklog,
	"TODO":        TaskBacklog,
	"IN_DEV":      TaskInDev,
	"INDEV":       TaskInDev,
	"IN_PROGRESS": TaskInDev,
	"DEV":         TaskInDev,
	"IN_REVIEW":   TaskInReview,
	"REVIEW":      TaskInReview,
	"IN_QA":       TaskInQA,
	"QA":          TaskInQA,
	"DONE":        TaskDone,
	"COMPLETE":    TaskDone,
	"COMPLETED":   TaskDone,
	"REJECT":      TaskReject,
	"REJECTED":    TaskReject,
	"BLOCKED":     TaskBlocked,
}

// NormalizeTaskStatus folds a raw status token into the canonical set.
// Case, surrounding whitespace, spaces and hyphens are ignored; anything not
// recognised becomes TaskUnknown.
func NormalizeTaskStatus(raw string) TaskStatus {
	token := strings.ToUpper(strings.TrimSpace(raw))
	token = strings.Trim(token, "`*_ ")
	token = strings.NewReplacer(" ", "_", "-", "_").Replace(token)
	if status, ok := taskStatusAliases[token]; ok {
		return status
	}
	return TaskUnknown
}

// TaskMetadata is the structured view of a Markdown task document.
// It is derived on demand and never stored in the status document.
type TaskMetadata struct {
	ID              string     `json:"id"`              // From filename, fallback from heading
	Title           string     `json:"title"`           // First level-1 heading
	Status          TaskStatus `json:"status"`          // Canonical status
	Priority        string     `json:"priority"`        // P0..P3
	Size            string     `json:"size"`            // XS..XL
	Assignee        string     `json:"assignee"`        // Role or person, "-" when unassigned
	HasReviewReport bool       `json:"hasReviewReport"` // Content marker or sibling review-report file
}

// GroupTasksByStatus buckets tasks by canonical status, preserving input order
func GroupTasksByStatus(tasks []TaskMetadata) map[TaskStatus][]TaskMetadata {
	groups := make(map[TaskStatus][]TaskMetadata)
	for _, t := range tasks {
		groups[t.Status] = append(groups[t.Status], t)
	}
	return groups
}
