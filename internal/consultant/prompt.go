package consultant

import (
	"fmt"
	"strings"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// countedStatuses are listed with counts in the sprint overview
var countedStatuses = []models.TaskStatus{
	models.TaskBacklog,
	models.TaskInDev,
	models.TaskInReview,
	models.TaskInQA,
	models.TaskDone,
	models.TaskReject,
	models.TaskBlocked,
}

// BuildPrompt renders the consultation prompt for the manager
func BuildPrompt(c Context, s *State) string {
	var b strings.Builder

	b.WriteString("# Role: AI Manager (orchestrator)\n\n")
	b.WriteString("You analyse the project state and decide which AI agent role runs next.\n\n")

	b.WriteString("## Project status\n\n")
	b.WriteString("### Documents\n")
	fmt.Fprintf(&b, "- project.md: %s\n", presence(s.HasProject))
	fmt.Fprintf(&b, "- plan.md: %s\n\n", presence(s.HasPlan))

	b.WriteString("### Current sprint\n")
	if s.Sprint == "" {
		b.WriteString("No active sprint\n\n")
	} else {
		groups := s.ByStatus()
		fmt.Fprintf(&b, "- name: %s\n- tasks:\n", s.Sprint)
		for _, status := range countedStatuses {
			fmt.Fprintf(&b, "  - %s: %d\n", status, len(groups[status]))
		}
		b.WriteString("\n### Sprint tasks\n")
		b.WriteString(taskList(s.Tasks, "(no tasks in the sprint)"))
		b.WriteString("\n")
	}

	b.WriteString("### Backlog tasks\n")
	b.WriteString(taskList(s.Backlog, "(backlog is empty)"))
	b.WriteString("\n")

	b.WriteString("### Sessions\n")
	fmt.Fprintf(&b, "- active sessions: %d\n", len(c.ActiveSessions))
	fmt.Fprintf(&b, "- pending questions: %d\n\n", len(c.PendingQuestions))

	b.WriteString(policyText)
	b.WriteString(outputFormat)
	return b.String()
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func taskList(tasks []models.TaskMetadata, empty string) string {
	if len(tasks) == 0 {
		return "  " + empty + "\n"
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "  - %s: %s [%s] %s\n", t.ID, t.Title, t.Status, t.Priority)
	}
	return b.String()
}

const policyText = `## Decision policy

Pick the first rule that matches:

1. **plan.md is missing** → run planner
2. **no active sprint** → wait (the user runs ` + "`ada sprint create`" + `)
3. **any REJECT task** → run developer (fixes needed)
4. **any IN_REVIEW task** → run reviewer
5. **any IN_QA task** → run qa
6. **BACKLOG tasks and nothing IN_DEV** → run developer (start)
7. **any IN_DEV task** → run developer (continue)
8. **any BLOCKED task** → ask_user
9. **every task DONE and reviewed** → run documenter
10. **otherwise** → wait

`

const outputFormat = `## Output format

Reply with a single JSON object in a fenced block and nothing else.

` + "```json" + `
{
  "action": "run_agent",
  "role": "developer",
  "reason": "task-001 is in BACKLOG, development should start",
  "priority": "high",
  "targetTask": "task-001"
}
` + "```" + `

### action
- **run_agent**: run an agent (role required)
- **wait**: wait for the user
- **ask_user**: the user has to answer a question

### role
- planner: planning and requirements
- developer: implementation
- reviewer: code review
- qa: verification
- documenter: documentation
- improver: improve existing code
- analyzer: analyse an existing codebase

Analyse the situation now and answer with JSON.
`
