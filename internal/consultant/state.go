package consultant

import (
	"os"
	"path/filepath"

	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/sprint"
	"github.com/silbaram/artifact-driven-agent/internal/taskmeta"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// State is the project snapshot a decision is based on
type State struct {
	HasProject  bool
	HasPlan     bool
	HasDecision bool
	Template    string

	Sprint  string // Active sprint name, "" when none is active
	Tasks   []models.TaskMetadata
	Backlog []models.TaskMetadata
}

// GatherState reads the planning documents, the active sprint's tasks and
// the backlog. Unreadable task files are skipped.
func GatherState(ws *workspace.Workspace, log logger.Logger) *State {
	s := &State{
		HasProject:  exists(ws.Artifact("project.md")),
		HasPlan:     exists(ws.Artifact("plan.md")),
		HasDecision: exists(ws.Artifact("decision.md")),
		Template:    ws.CurrentTemplate(),
	}

	if name := sprint.FindActive(ws.SprintsDir()); name != "" {
		dir := filepath.Join(ws.SprintsDir(), name)
		s.Sprint = name
		s.Tasks = taskmeta.ParseDir(filepath.Join(dir, sprint.TasksDir), filepath.Join(dir, sprint.ReviewReportsDir), log)
	}
	s.Backlog = taskmeta.ParseDir(ws.BacklogDir(), "", log)
	return s
}

// ByStatus buckets the sprint tasks by status
func (s *State) ByStatus() map[models.TaskStatus][]models.TaskMetadata {
	return models.GroupTasksByStatus(s.Tasks)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
