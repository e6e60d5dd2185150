package sprint

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/taskmeta"
)

var taskSectionTitles = []string{"## Task 목록", "## Task 요약"}

const (
	taskTableHeader    = "| Task | 제목 | 상태 | 우선순위 | 크기 |"
	taskTableSeparator = "|------|------|:----:|:--------:|:----:|"
	referenceSection   = "## 참고"
)

// SyncResult reports a completed sync
type SyncResult struct {
	Sprint string
	Tasks  []models.TaskMetadata
}

// Sync re-parses every task file of the active sprint under sprintsDir and
// rewrites the task table of its meta.md. Other sections are left alone.
// Unreadable task files are skipped and logged. A nil log syncs silently.
// ErrNoActiveSprint is returned when no sprint is active.
func Sync(ctx context.Context, sprintsDir string, log logger.Logger) (*SyncResult, error) {
	log = logger.OrNop(log)

	name := FindActive(sprintsDir)
	if name == "" {
		return nil, ErrNoActiveSprint
	}

	dir := filepath.Join(sprintsDir, name)
	tasks := taskmeta.ParseDir(filepath.Join(dir, TasksDir), filepath.Join(dir, ReviewReportsDir), log)

	err := filelock.LockAndUpdate(ctx, filepath.Join(dir, MetaFile), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, nil
		}
		updated := UpdateMeta(string(current), tasks)
		if updated == string(current) {
			return nil, nil
		}
		return []byte(updated), nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", name, err)
	}

	log.Infof("%s metadata synced (%d tasks)", name, len(tasks))
	return &SyncResult{Sprint: name, Tasks: tasks}, nil
}

// Sync runs Sync against the manager's sprints directory
func (m *Manager) Sync(ctx context.Context) (*SyncResult, error) {
	return Sync(ctx, m.sprintsDir, m.log)
}

// RenderTaskTable renders the task section: title, table header and one
// row per task, followed by a blank line
func RenderTaskTable(title string, tasks []models.TaskMetadata) string {
	var b strings.Builder
	b.WriteString(title + "\n\n")
	b.WriteString(taskTableHeader + "\n")
	b.WriteString(taskTableSeparator + "\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", t.ID, cell(t.Title), t.Status, t.Priority, t.Size)
	}
	b.WriteString("\n")
	return b.String()
}

// UpdateMeta returns content with its task section replaced by a fresh
// table for tasks. The section runs from its heading to the next "## "
// heading or the end of the document. Without one, the section is inserted
// before "## 참고", or appended.
func UpdateMeta(content string, tasks []models.TaskMetadata) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.SplitAfter(content, "\n")

	start, title := -1, taskSectionTitles[0]
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, t := range taskSectionTitles {
			if trimmed == t {
				start, title = i, t
				break
			}
		}
		if start >= 0 {
			break
		}
	}

	table := RenderTaskTable(title, tasks)

	if start < 0 {
		for i, line := range lines {
			if strings.TrimSpace(line) == referenceSection {
				return strings.Join(lines[:i], "") + table + strings.Join(lines[i:], "")
			}
		}
		return content + "\n" + table
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") || strings.HasPrefix(lines[i], "# ") {
			end = i
			break
		}
	}
	return strings.Join(lines[:start], "") + table + strings.Join(lines[end:], "")
}

// cell keeps a value from breaking the table row
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
