package taskmeta

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
)

const standardTask = `# TASK-001: 로그인 기능

| 항목 | 값 |
|------|-----|
| 상태 | IN_DEV |
| 우선순위 | P1 |
| 크기 | M |
| 담당 | developer |

## 내용
...
`

func TestParse_StandardTable(t *testing.T) {
	meta := Parse([]byte(standardTask), "task-001.md")

	assert.Equal(t, models.TaskMetadata{
		ID:       "task-001",
		Title:    "로그인 기능",
		Status:   models.TaskInDev,
		Priority: "P1",
		Size:     "M",
		Assignee: "developer",
	}, meta)
}

func TestParse_Fields(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		filename string
		check    func(t *testing.T, m models.TaskMetadata)
	}{
		{
			name:     "template remnant keeps first alternative",
			content:  "| 상태 | DONE / REJECTED |\n",
			filename: "task-002.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskDone, m.Status)
			},
		},
		{
			name:     "title without task id",
			content:  "# 회원가입 API 구현",
			filename: "task-003.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, "회원가입 API 구현", m.Title)
				assert.Equal(t, "task-003", m.ID)
			},
		},
		{
			name:     "irregular whitespace without delimiter row",
			content:  "\n|상태|  DONE  |\n|  우선순위|P0|\n",
			filename: "task-004.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskDone, m.Status)
				assert.Equal(t, "P0", m.Priority)
			},
		},
		{
			name:     "english keys",
			content:  "| Status | IN_DEV |\n| Priority | P2 |\n",
			filename: "task-005.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskInDev, m.Status)
				assert.Equal(t, "P2", m.Priority)
			},
		},
		{
			name:     "review section marks report",
			content:  "## Review\n- PASS\n",
			filename: "task-006.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.True(t, m.HasReviewReport)
			},
		},
		{
			name:     "korean review marker",
			content:  "- 리뷰 결과: PASS\n",
			filename: "task-007.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.True(t, m.HasReviewReport)
			},
		},
		{
			name:     "inline key value",
			content:  "# TASK-008: 검색\n\nStatus: in review\n크기: l\n",
			filename: "task-008.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskInReview, m.Status)
				assert.Equal(t, "L", m.Size)
			},
		},
		{
			name:     "defaults",
			content:  "nothing structured here",
			filename: "task-009.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskBacklog, m.Status)
				assert.Equal(t, DefaultPriority, m.Priority)
				assert.Equal(t, DefaultSize, m.Size)
				assert.Equal(t, DefaultAssignee, m.Assignee)
				assert.Equal(t, DefaultTitle, m.Title)
				assert.False(t, m.HasReviewReport)
			},
		},
		{
			name:     "id from heading when no filename",
			content:  "# task-042: 결제",
			filename: "",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, "TASK-042", m.ID)
				assert.Equal(t, "결제", m.Title)
			},
		},
		{
			name:     "unknown id",
			content:  "# 제목만",
			filename: "",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, UnknownID, m.ID)
			},
		},
		{
			name:     "rejected alias",
			content:  "| 상태 | REJECTED |\n|---|---|\n",
			filename: "task-010.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskReject, m.Status)
			},
		},
		{
			name:     "unrecognised status",
			content:  "| 상태 | PARKED |\n",
			filename: "task-011.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskUnknown, m.Status)
			},
		},
		{
			name:     "emphasised cell",
			content:  "| 항목 | 값 |\n|---|---|\n| **상태** | `IN_QA` |\n",
			filename: "task-012.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskInQA, m.Status)
			},
		},
		{
			name:     "yaml frontmatter",
			content:  "---\nstatus: blocked\npriority: p0\nassignee: reviewer\n---\n# TASK-013: 배포\n",
			filename: "task-013.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskBlocked, m.Status)
				assert.Equal(t, "P0", m.Priority)
				assert.Equal(t, "reviewer", m.Assignee)
				assert.Equal(t, "배포", m.Title)
			},
		},
		{
			name:     "table wins over frontmatter",
			content:  "---\nstatus: BACKLOG\n---\n| 상태 | DONE |\n|---|---|\n",
			filename: "task-014.md",
			check: func(t *testing.T, m models.TaskMetadata) {
				assert.Equal(t, models.TaskDone, m.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Parse([]byte(tt.content), tt.filename))
		})
	}
}

func TestParseFile_ReviewReportDirectory(t *testing.T) {
	dir := t.TempDir()
	tasksDir := filepath.Join(dir, "tasks")
	reviewDir := filepath.Join(dir, "review-reports")
	require.NoError(t, os.MkdirAll(tasksDir, 0755))
	require.NoError(t, os.MkdirAll(reviewDir, 0755))

	taskPath := filepath.Join(tasksDir, "task-001.md")
	require.NoError(t, os.WriteFile(taskPath, []byte("| 상태 | DONE |\n"), 0644))

	meta, err := ParseFile(taskPath, reviewDir)
	require.NoError(t, err)
	assert.False(t, meta.HasReviewReport)

	require.NoError(t, os.WriteFile(filepath.Join(reviewDir, "task-001.md"), []byte("PASS"), 0644))
	meta, err = ParseFile(taskPath, reviewDir)
	require.NoError(t, err)
	assert.True(t, meta.HasReviewReport)

	_, err = ParseFile(filepath.Join(tasksDir, "missing.md"), reviewDir)
	assert.Error(t, err)
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"task-002.md":          "| 상태 | IN_DEV |\n",
		"task-001.md":          "| 상태 | DONE |\n",
		"task-template.md":     "| 상태 | BACKLOG / IN_DEV |\n",
		"notes.txt":            "ignored",
		"task-003.md":          "| 상태 | BLOCKED |\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.md"), 0755))

	tasks := ParseDir(dir, "", nil)

	require.Len(t, tasks, 3)
	assert.Equal(t, "task-001", tasks[0].ID)
	assert.Equal(t, "task-002", tasks[1].ID)
	assert.Equal(t, "task-003", tasks[2].ID)
	assert.Equal(t, models.TaskBlocked, tasks[2].Status)
}

func TestParseDir_MissingDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	tasks := ParseDir(filepath.Join(t.TempDir(), "nope"), "", logger.NewConsoleLogger(buf, "debug"))

	assert.Empty(t, tasks)
	assert.Empty(t, buf.String(), "a missing directory is not worth a warning")
}

func TestParseDir_SkipsUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task-001.md"), []byte("| 상태 | DONE |\n"), 0644))
	locked := filepath.Join(dir, "task-002.md")
	require.NoError(t, os.WriteFile(locked, []byte("| 상태 | DONE |\n"), 0000))

	buf := &bytes.Buffer{}
	tasks := ParseDir(dir, "", logger.NewConsoleLogger(buf, "info"))

	require.Len(t, tasks, 1)
	assert.Equal(t, "task-001", tasks[0].ID)
	assert.Contains(t, buf.String(), "skipping task task-002.md")
}
