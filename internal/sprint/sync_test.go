package sprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

func TestUpdateMeta(t *testing.T) {
	tasks := []models.TaskMetadata{
		{ID: "task-001", Title: "Login", Status: models.TaskInDev, Priority: "P1", Size: "M"},
	}
	row := "| task-001 | Login | IN_DEV | P1 | M |"

	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, out string)
	}{
		{
			name:    "replaces existing section",
			content: "# Sprint 1\n\n## Task 목록\n\n| old | table |\n\n## 참고\n\n- keep me\n",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, row)
				assert.NotContains(t, out, "| old | table |")
				assert.Contains(t, out, "## 참고\n\n- keep me\n")
				assert.True(t, strings.HasPrefix(out, "# Sprint 1\n\n## Task 목록\n\n"+taskTableHeader))
			},
		},
		{
			name:    "keeps summary heading",
			content: "# Sprint 1\n\n## Task 요약\n\nstale\n",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "## Task 요약\n\n"+taskTableHeader)
				assert.NotContains(t, out, "## Task 목록")
				assert.NotContains(t, out, "stale")
			},
		},
		{
			name:    "inserts before reference section",
			content: "# Sprint 1\n\n## 참고\n\n- notes\n",
			check: func(t *testing.T, out string) {
				assert.Less(t, strings.Index(out, "## Task 목록"), strings.Index(out, "## 참고"))
				assert.Contains(t, out, row)
			},
		},
		{
			name:    "appends when nothing matches",
			content: "# Sprint 1\n\n## Goals\n\n- ship\n",
			check: func(t *testing.T, out string) {
				assert.True(t, strings.HasSuffix(out, row+"\n\n"))
				assert.Contains(t, out, "## Goals\n\n- ship\n")
			},
		},
		{
			name:    "normalizes CRLF",
			content: "# Sprint 1\r\n\r\n## Task 목록\r\n\r\nold\r\n",
			check: func(t *testing.T, out string) {
				assert.NotContains(t, out, "\r")
				assert.Contains(t, out, row)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := UpdateMeta(tt.content, tasks)
			tt.check(t, out)
			assert.Equal(t, out, UpdateMeta(out, tasks), "second update is a no-op")
		})
	}
}

func TestRenderTaskTable_EscapesPipes(t *testing.T) {
	out := RenderTaskTable("## Task 목록", []models.TaskMetadata{{ID: "task-1", Title: "a|b", Status: models.TaskDone, Priority: "P2", Size: "L"}})
	assert.Contains(t, out, `| task-1 | a\|b | DONE | P2 | L |`)
	assert.Contains(t, out, taskTableSeparator)
}

func TestSync(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := Sync(ctx, m.SprintsDir(), nil)
	assert.True(t, errors.Is(err, ErrNoActiveSprint))

	info, err := m.Create(ctx)
	require.NoError(t, err)
	writeTask(t, info.TasksPath(), "task-002", "Second", "REVIEW")
	writeTask(t, info.TasksPath(), "task-001", "First", "IN_DEV")
	require.NoError(t, os.WriteFile(filepath.Join(info.TasksPath(), "task-template.md"), []byte("# TASK-NNN: template"), 0644))

	res, err := Sync(ctx, m.SprintsDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sprint-1", res.Sprint)
	require.Len(t, res.Tasks, 2)

	first, err := os.ReadFile(info.MetaPath())
	require.NoError(t, err)
	meta := string(first)
	assert.Less(t, strings.Index(meta, "task-001"), strings.Index(meta, "task-002"))
	assert.Contains(t, meta, "| task-002 | Second | IN_REVIEW | P1 | S |")
	assert.NotContains(t, meta, "template")
	assert.Contains(t, meta, "| 상태 | active |", "other sections untouched")

	_, err = Sync(ctx, m.SprintsDir(), nil)
	require.NoError(t, err)
	second, err := os.ReadFile(info.MetaPath())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
