package sprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

func newTestManager(t *testing.T) (*Manager, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(t.TempDir())
	m := NewManager(ws, nil)
	m.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, os.MkdirAll(ws.BacklogDir(), 0755))
	return m, ws
}

func writeTask(t *testing.T, dir, id, title, status string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	content := "# " + strings.ToUpper(id) + ": " + title + "\n\n| 항목 | 값 |\n|------|-----|\n| 상태 | " + status + " |\n| 우선순위 | P1 |\n| 크기 | S |\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".md"), []byte(content), 0644))
}

func TestCreate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sprint-1", info.Name)
	assert.Equal(t, StatusActive, info.Status)

	for _, dir := range []string{TasksDir, ReviewReportsDir, DocsDir} {
		assert.DirExists(t, filepath.Join(info.Path, dir))
	}
	meta, err := os.ReadFile(info.MetaPath())
	require.NoError(t, err)
	assert.Contains(t, string(meta), "| 상태 | active |")
	assert.Contains(t, string(meta), "| 시작일 | 2026-05-01 |")

	_, err = m.Create(ctx)
	assert.True(t, errors.Is(err, ErrSprintAlreadyActive))
	assert.Len(t, m.List(), 1, "no directory created on precondition failure")
}

func TestCreate_NumbersAfterHighest(t *testing.T) {
	m, ws := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ws.SprintsDir(), "sprint-3"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(ws.SprintsDir(), "_template"), 0755))

	info, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sprint-4", info.Name)
	assert.Equal(t, "sprint-4", FindActive(ws.SprintsDir()))
}

func TestAdd(t *testing.T) {
	m, ws := newTestManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, []string{"task-001"})
	assert.True(t, errors.Is(err, ErrNoActiveSprint))

	info, err := m.Create(ctx)
	require.NoError(t, err)

	writeTask(t, ws.BacklogDir(), "task-001", "Login", "BACKLOG")
	writeTask(t, ws.BacklogDir(), "task-002", "Logout", "BACKLOG")
	writeTask(t, info.TasksPath(), "task-003", "Profile", "IN_DEV")
	writeTask(t, ws.BacklogDir(), "task-003", "Profile copy", "BACKLOG")

	res, err := m.Add(ctx, []string{"task-001", "task-009", "task-003"})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "task-001", res.Added[0].ID)
	assert.Equal(t, models.TaskBacklog, res.Added[0].Status)
	assert.Equal(t, []string{"task-009"}, res.Missing)
	assert.Equal(t, []string{"task-003"}, res.Duplicate)

	assert.NoFileExists(t, filepath.Join(ws.BacklogDir(), "task-001.md"), "task moved out of the backlog")
	assert.FileExists(t, filepath.Join(info.TasksPath(), "task-001.md"))

	meta, err := os.ReadFile(info.MetaPath())
	require.NoError(t, err)
	assert.Contains(t, string(meta), "| task-001 | Login | BACKLOG | P1 | S |")
	assert.Contains(t, string(meta), "| task-003 | Profile | IN_DEV | P1 | S |")
	assert.NotContains(t, string(meta), "(Task 없음)")
	assert.Contains(t, string(meta), "## 참고")
}

func TestClose(t *testing.T) {
	tests := []struct {
		mode         CloseMode
		wantInTasks  bool
		wantArchived bool
	}{
		{mode: CloseArchive, wantArchived: true},
		{mode: CloseClean},
		{mode: CloseKeepAll, wantInTasks: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			m, _ := newTestManager(t)
			ctx := context.Background()
			info, err := m.Create(ctx)
			require.NoError(t, err)
			writeTask(t, info.TasksPath(), "task-001", "Login", "DONE")
			writeTask(t, info.TasksPath(), "task-002", "Logout", "IN_DEV")
			require.NoError(t, os.WriteFile(filepath.Join(info.ReviewPath(), "task-001.md"), []byte("ok"), 0644))

			res, err := m.Close(ctx, tt.mode, Retrospective{Keep: "shipped"})
			require.NoError(t, err)
			assert.Equal(t, []string{"task-001"}, res.Completed)
			assert.Equal(t, []string{"task-002"}, res.Incomplete)

			meta, err := os.ReadFile(info.MetaPath())
			require.NoError(t, err)
			assert.Contains(t, string(meta), "| 상태 | completed |")
			assert.Contains(t, string(meta), "| 종료 예정 | 2026-05-01")
			assert.Equal(t, "", FindActive(m.SprintsDir()))

			retro, err := os.ReadFile(filepath.Join(info.Path, RetrospectiveFile))
			require.NoError(t, err)
			assert.Contains(t, string(retro), "- shipped")
			assert.Contains(t, string(retro), "완료율: 50%")

			_, statErr := os.Stat(filepath.Join(info.TasksPath(), "task-001.md"))
			assert.Equal(t, tt.wantInTasks, statErr == nil)
			_, statErr = os.Stat(filepath.Join(info.Path, ArchiveDir, TasksDir, "task-001.md"))
			assert.Equal(t, tt.wantArchived, statErr == nil)
			assert.DirExists(t, filepath.Join(info.Path, DocsDir))
		})
	}
}

func TestClose_Errors(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Close(context.Background(), CloseArchive, Retrospective{})
	assert.True(t, errors.Is(err, ErrNoActiveSprint))

	_, err = m.Close(context.Background(), "shred", Retrospective{})
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	_, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Close(ctx, CloseKeepAll, Retrospective{})
	require.NoError(t, err)
	_, err = m.Create(ctx)
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, StatusCompleted, list[0].Status)
	assert.Equal(t, StatusActive, list[1].Status)
	assert.Equal(t, 2, list[1].Number)
}

func TestSummaryStatusesAreNormalized(t *testing.T) {
	m, _ := newTestManager(t)
	info, err := m.Create(context.Background())
	require.NoError(t, err)
	writeTask(t, info.TasksPath(), "task-001", "A", "completed")

	done, open := m.Summary(*info)
	assert.Equal(t, []string{"task-001"}, done)
	assert.Empty(t, open)
}
