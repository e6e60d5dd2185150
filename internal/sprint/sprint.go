// Package sprint manages sprint directories under artifacts/sprints and
// keeps each sprint's meta.md task table in step with its task files.
//
// A sprint is active when its meta.md carries the "| 상태 | active |" row.
// At most one sprint is active at a time.
package sprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/taskmeta"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

const (
	MetaFile          = "meta.md"
	TasksDir          = "tasks"
	ReviewReportsDir  = "review-reports"
	DocsDir           = "docs"
	ArchiveDir        = "archive"
	RetrospectiveFile = "retrospective.md"
)

// Status values of the meta.md status row
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusUnknown   = "unknown"
)

var (
	// ErrNoActiveSprint is returned when an operation needs an active sprint
	ErrNoActiveSprint = errors.New("no active sprint")

	// ErrSprintAlreadyActive is returned by Create while another sprint is active
	ErrSprintAlreadyActive = errors.New("a sprint is already active")
)

var (
	sprintName   = regexp.MustCompile(`^sprint-(\d+)$`)
	statusRow    = regexp.MustCompile(`상태 \| (active|completed)`)
	endDateRow   = regexp.MustCompile(`종료 예정 \| [^|\n]*`)
	startDateRow = regexp.MustCompile(`시작일 \| ([\d-]+)`)
)

// Info describes one sprint directory
type Info struct {
	Name   string
	Number int
	Status string
	Path   string
}

// TasksPath is the sprint's task directory
func (i Info) TasksPath() string { return filepath.Join(i.Path, TasksDir) }

// ReviewPath is the sprint's review report directory
func (i Info) ReviewPath() string { return filepath.Join(i.Path, ReviewReportsDir) }

// MetaPath is the sprint's meta.md
func (i Info) MetaPath() string { return filepath.Join(i.Path, MetaFile) }

// Manager performs sprint operations for one workspace
type Manager struct {
	sprintsDir string
	backlogDir string
	log        logger.Logger
	now        func() time.Time
}

// NewManager creates a Manager for ws. log may be nil.
func NewManager(ws *workspace.Workspace, log logger.Logger) *Manager {
	return &Manager{
		sprintsDir: ws.SprintsDir(),
		backlogDir: ws.BacklogDir(),
		log:        logger.OrNop(log),
		now:        time.Now,
	}
}

// SprintsDir returns the directory holding every sprint
func (m *Manager) SprintsDir() string {
	return m.sprintsDir
}

// FindActive returns the name of the active sprint in sprintsDir, or "" if
// none is active. Unreadable entries are skipped.
func FindActive(sprintsDir string) string {
	for _, name := range sprintDirs(sprintsDir) {
		content, err := os.ReadFile(filepath.Join(sprintsDir, name, MetaFile))
		if err != nil {
			continue
		}
		if metaStatus(string(content)) == StatusActive {
			return name
		}
	}
	return ""
}

// Active returns the active sprint or ErrNoActiveSprint
func (m *Manager) Active() (*Info, error) {
	name := FindActive(m.sprintsDir)
	if name == "" {
		return nil, ErrNoActiveSprint
	}
	info := m.info(name)
	return &info, nil
}

// List returns every sprint ordered by number
func (m *Manager) List() []Info {
	names := sprintDirs(m.sprintsDir)
	out := make([]Info, 0, len(names))
	for _, name := range names {
		out = append(out, m.info(name))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *Manager) info(name string) Info {
	info := Info{Name: name, Path: filepath.Join(m.sprintsDir, name), Status: StatusUnknown}
	if match := sprintName.FindStringSubmatch(name); match != nil {
		info.Number, _ = strconv.Atoi(match[1])
	}
	if content, err := os.ReadFile(info.MetaPath()); err == nil {
		info.Status = metaStatus(string(content))
	}
	return info
}

// Create starts sprint-<N+1> with its tasks, review-reports and docs
// directories and an active meta.md
func (m *Manager) Create(ctx context.Context) (*Info, error) {
	if active := FindActive(m.sprintsDir); active != "" {
		return nil, fmt.Errorf("%w: %s\nHint: close it first with 'ada sprint close'", ErrSprintAlreadyActive, active)
	}

	next := 1
	for _, s := range m.List() {
		if s.Number >= next {
			next = s.Number + 1
		}
	}

	info := m.info(fmt.Sprintf("sprint-%d", next))
	for _, dir := range []string{TasksDir, ReviewReportsDir, DocsDir} {
		if err := os.MkdirAll(filepath.Join(info.Path, dir), 0755); err != nil {
			return nil, fmt.Errorf("create sprint directory: %w", err)
		}
	}

	if err := filelock.LockAndWrite(ctx, info.MetaPath(), []byte(newMeta(next, m.today()))); err != nil {
		return nil, fmt.Errorf("write %s: %w", MetaFile, err)
	}
	info.Status = StatusActive
	m.log.Infof("created %s", info.Name)
	return &info, nil
}

// AddResult reports what Add did with each requested task id
type AddResult struct {
	Sprint    string
	Added     []models.TaskMetadata
	Missing   []string // Not found in the backlog
	Duplicate []string // Already in the sprint
}

// Add moves backlog task files into the active sprint and refreshes its
// meta.md task table
func (m *Manager) Add(ctx context.Context, taskIDs []string) (*AddResult, error) {
	if len(taskIDs) == 0 {
		return nil, errors.New("no task ids given\nHint: ada sprint add task-001 task-002")
	}
	active, err := m.Active()
	if err != nil {
		return nil, fmt.Errorf("%w\nHint: create one with 'ada sprint create'", err)
	}
	if err := os.MkdirAll(active.TasksPath(), 0755); err != nil {
		return nil, fmt.Errorf("create tasks directory: %w", err)
	}

	result := &AddResult{Sprint: active.Name}
	for _, id := range taskIDs {
		file := strings.TrimSuffix(id, ".md") + ".md"
		src := filepath.Join(m.backlogDir, file)
		dst := filepath.Join(active.TasksPath(), file)

		if _, err := os.Stat(src); err != nil {
			result.Missing = append(result.Missing, id)
			continue
		}
		if _, err := os.Stat(dst); err == nil {
			result.Duplicate = append(result.Duplicate, id)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return result, fmt.Errorf("move %s into %s: %w", file, active.Name, err)
		}

		task, err := taskmeta.ParseFile(dst, active.ReviewPath())
		if err != nil {
			return result, err
		}
		result.Added = append(result.Added, task)
		m.log.Infof("%s added to %s", task.ID, active.Name)
	}

	if len(result.Added) > 0 {
		if _, err := m.Sync(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// CloseMode decides what happens to task and review files on Close
type CloseMode string

const (
	CloseArchive CloseMode = "archive"  // Move into archive/
	CloseClean   CloseMode = "clean"    // Delete, keeping docs/
	CloseKeepAll CloseMode = "keep-all" // Leave in place
)

// Retrospective holds the operator's notes written to retrospective.md
type Retrospective struct {
	Keep    string
	Problem string
	Try     string
}

// CloseResult summarizes a closed sprint
type CloseResult struct {
	Sprint     string
	Completed  []string
	Incomplete []string
	Files      int // Archived or deleted
}

// Summary splits the sprint's task ids into done and not done
func (m *Manager) Summary(info Info) (completed, incomplete []string) {
	tasks := taskmeta.ParseDir(info.TasksPath(), info.ReviewPath(), m.log)
	for _, t := range tasks {
		if t.Status == models.TaskDone {
			completed = append(completed, t.ID)
		} else {
			incomplete = append(incomplete, t.ID)
		}
	}
	return completed, incomplete
}

// Close marks the active sprint completed, writes its retrospective and
// archives, deletes or keeps its working files according to mode
func (m *Manager) Close(ctx context.Context, mode CloseMode, retro Retrospective) (*CloseResult, error) {
	switch mode {
	case "":
		mode = CloseArchive
	case CloseArchive, CloseClean, CloseKeepAll:
	default:
		return nil, fmt.Errorf("unknown close mode %q (archive, clean, keep-all)", mode)
	}

	active, err := m.Active()
	if err != nil {
		return nil, err
	}
	if _, err := m.Sync(ctx); err != nil {
		m.log.Warnf("sync before close failed: %v", err)
	}

	result := &CloseResult{Sprint: active.Name}
	result.Completed, result.Incomplete = m.Summary(*active)

	today := m.today()
	var startDate string
	err = filelock.LockAndUpdate(ctx, active.MetaPath(), func(current []byte) ([]byte, error) {
		content := string(current)
		if match := startDateRow.FindStringSubmatch(content); match != nil {
			startDate = match[1]
		}
		content = strings.Replace(content, "상태 | active", "상태 | "+StatusCompleted, 1)
		content = endDateRow.ReplaceAllLiteralString(content, "종료 예정 | "+today+" ")
		return []byte(content), nil
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", MetaFile, err)
	}
	if startDate == "" {
		startDate = today
	}

	retroPath := filepath.Join(active.Path, RetrospectiveFile)
	if err := filelock.AtomicWrite(retroPath, []byte(renderRetrospective(active.Number, startDate, today, result, retro))); err != nil {
		return nil, fmt.Errorf("write %s: %w", RetrospectiveFile, err)
	}

	switch mode {
	case CloseArchive:
		result.Files, err = m.archive(*active)
	case CloseClean:
		result.Files, err = m.clean(*active)
	}
	if err != nil {
		return result, err
	}

	m.log.Infof("closed %s (%s)", active.Name, mode)
	return result, nil
}

func (m *Manager) archive(info Info) (int, error) {
	moved := 0
	for _, dir := range []string{TasksDir, ReviewReportsDir} {
		files := workFiles(filepath.Join(info.Path, dir))
		if len(files) == 0 {
			continue
		}
		target := filepath.Join(info.Path, ArchiveDir, dir)
		if err := os.MkdirAll(target, 0755); err != nil {
			return moved, fmt.Errorf("create archive directory: %w", err)
		}
		for _, f := range files {
			if err := os.Rename(filepath.Join(info.Path, dir, f), filepath.Join(target, f)); err != nil {
				return moved, fmt.Errorf("archive %s: %w", f, err)
			}
			moved++
		}
	}
	return moved, nil
}

func (m *Manager) clean(info Info) (int, error) {
	deleted := 0
	for _, dir := range []string{TasksDir, ReviewReportsDir} {
		for _, f := range workFiles(filepath.Join(info.Path, dir)) {
			if err := os.RemoveAll(filepath.Join(info.Path, dir, f)); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", f, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

func (m *Manager) today() string {
	return m.now().UTC().Format("2006-01-02")
}

// workFiles lists entries of dir except templates
func workFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !strings.Contains(e.Name(), "template") {
			out = append(out, e.Name())
		}
	}
	return out
}

// sprintDirs lists sprint directories, skipping names starting with "_"
func sprintDirs(sprintsDir string) []string {
	entries, err := os.ReadDir(sprintsDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), "_") {
			out = append(out, e.Name())
		}
	}
	return out
}

func metaStatus(content string) string {
	if match := statusRow.FindStringSubmatch(content); match != nil {
		return match[1]
	}
	return StatusUnknown
}

func newMeta(number int, today string) string {
	return fmt.Sprintf(`# Sprint %d 메타정보

| 항목 | 값 |
|------|-----|
| 스프린트 번호 | %d |
| 상태 | active |
| 시작일 | %s |
| 종료 예정 | TBD |

## Task 목록

> Task는 `+"`ada sprint add task-NNN`"+` 명령어로 추가됩니다.
> 추가된 Task는 아래에 자동으로 나열됩니다.

(Task 없음)

## 참고

- Task 상태: BACKLOG → IN_DEV → IN_REVIEW → DONE
- 리뷰 결과: review-reports/ 참고
- 최종 문서: docs/ 참고
`, number, number, today)
}

func renderRetrospective(number int, start, end string, r *CloseResult, retro Retrospective) string {
	bullets := func(ids []string, suffix string) string {
		if len(ids) == 0 {
			return "- (없음)"
		}
		lines := make([]string, len(ids))
		for i, id := range ids {
			lines[i] = "- " + id + suffix
		}
		return strings.Join(lines, "\n")
	}
	orDash := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	}

	total := len(r.Completed) + len(r.Incomplete)
	rate := 0
	if total > 0 {
		rate = len(r.Completed) * 100 / total
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Sprint %d 회고\n\n", number)
	fmt.Fprintf(&b, "## 기간\n- 시작: %s\n- 종료: %s\n\n", start, end)
	fmt.Fprintf(&b, "## 완료된 Task (%d개)\n\n%s\n\n", len(r.Completed), bullets(r.Completed, ""))
	fmt.Fprintf(&b, "## 미완료 Task (%d개)\n\n%s\n\n", len(r.Incomplete), bullets(r.Incomplete, ": 이월 필요"))
	fmt.Fprintf(&b, "## 잘된 점 (Keep)\n\n- %s\n\n", orDash(retro.Keep))
	fmt.Fprintf(&b, "## 개선할 점 (Problem)\n\n- %s\n\n", orDash(retro.Problem))
	fmt.Fprintf(&b, "## 시도할 것 (Try)\n\n- %s\n\n", orDash(retro.Try))
	fmt.Fprintf(&b, "## 메트릭\n\n- 계획 Task 수: %d개\n- 완료 Task 수: %d개\n- 완료율: %d%%\n- 이월 Task 수: %d개\n",
		total, len(r.Completed), rate, len(r.Incomplete))
	return b.String()
}
