package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/silbaram/artifact-driven-agent/internal/sprint"
	"github.com/silbaram/artifact-driven-agent/internal/taskmeta"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// RoleRules lists the rule documents each role must follow, in order
var RoleRules = map[string][]string{
	"planner":    {"iteration.md", "escalation.md", "document-priority.md"},
	"improver":   {"iteration.md", "escalation.md", "document-priority.md", "rfc.md"},
	"developer":  {"iteration.md", "escalation.md", "rollback.md", "document-priority.md", "rfc.md"},
	"reviewer":   {"iteration.md", "rollback.md", "escalation.md", "document-priority.md"},
	"documenter": {"escalation.md", "document-priority.md"},
	"analyzer":   {"escalation.md", "document-priority.md"},
	"manager":    {"escalation.md", "document-priority.md", "rfc.md"},
}

// PriorityArtifacts are always included in full, highest priority first
var PriorityArtifacts = []string{"decision.md", "project.md", "plan.md"}

// InterfaceArtifacts are included in full when present
var InterfaceArtifacts = []string{
	"api.md", "ui.md", "public-api.md", "commands.md", "output-format.md",
	"game-systems.md", "assets.md", "hud.md", "examples.md", "changelog.md",
}

const sectionBreak = "\n\n---\n\n"

// Composer builds the system prompt for a role from the workspace documents
type Composer struct {
	ws *workspace.Workspace
}

// NewComposer creates a Composer for ws
func NewComposer(ws *workspace.Workspace) *Composer {
	return &Composer{ws: ws}
}

// Compose renders the prompt for role: role definition, rules, priority
// artifacts, the active sprint, the backlog listing, interface artifacts,
// a listing of everything else and the working instructions.
func (c *Composer) Compose(role string) (string, error) {
	roleFile := filepath.Join(c.ws.RolesDir(), role+".md")
	roleContent, err := os.ReadFile(roleFile)
	if err != nil {
		return "", fmt.Errorf("read role definition %s: %w", roleFile, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Role: %s\n\n", role)
	b.Write(roleContent)
	b.WriteString(sectionBreak)

	c.writeRules(&b, role)
	c.writePriorityArtifacts(&b)
	c.writeSprint(&b)
	c.writeBacklog(&b)
	c.writeInterfaceArtifacts(&b)
	c.writeListing(&b)
	writeInstructions(&b)
	return b.String(), nil
}

func (c *Composer) writeRules(b *strings.Builder, role string) {
	rules := RoleRules[role]
	b.WriteString("# Rules\n\n")
	if len(rules) == 0 {
		b.WriteString("(no rules are required for this role)\n\n")
		return
	}
	fmt.Fprintf(b, "Rules required for this role: %s\n\n", strings.Join(rules, ", "))
	for _, rule := range rules {
		writeDocument(b, "## "+rule, filepath.Join(c.ws.RulesDir(), rule), "(missing)")
	}
}

func (c *Composer) writePriorityArtifacts(b *strings.Builder) {
	b.WriteString("# Core Artifacts\n\n")
	for _, name := range PriorityArtifacts {
		writeDocument(b, "## "+name, c.ws.Artifact(name), "(not written yet)")
	}
}

func (c *Composer) writeSprint(b *strings.Builder) {
	b.WriteString("# Current Sprint\n\n")

	name := sprint.FindActive(c.ws.SprintsDir())
	if name == "" {
		b.WriteString("## No active sprint\n\n")
		b.WriteString("No sprint is active yet.\n\n")
		b.WriteString("**Next steps:**\n")
		b.WriteString("1. Make sure the planner has written plan.md and backlog/ tasks\n")
		b.WriteString("2. Create a sprint with `ada sprint create`\n")
		b.WriteString("3. Assign tasks with `ada sprint add task-001 task-002`\n")
		b.WriteString("4. Restart the developer session\n")
		b.WriteString("\n---\n\n")
		return
	}

	dir := filepath.Join(c.ws.SprintsDir(), name)
	writeDocument(b, fmt.Sprintf("## Current sprint: %s/%s", name, sprint.MetaFile), filepath.Join(dir, sprint.MetaFile), "")

	tasksDir := filepath.Join(dir, sprint.TasksDir)
	files, err := taskmeta.TaskFiles(tasksDir)
	if err != nil {
		fmt.Fprintf(b, "## %s has no tasks directory\n\n", name)
		b.WriteString("The sprint layout is broken. Recreate it with `ada sprint create`.")
		b.WriteString(sectionBreak)
		return
	}
	if len(files) == 0 {
		fmt.Fprintf(b, "## No tasks in %s\n\n", name)
		b.WriteString("**Next steps:**\n")
		b.WriteString("1. Assign tasks with `ada sprint add task-001 task-002`\n")
		b.WriteString("2. Restart the developer session")
		b.WriteString(sectionBreak)
		return
	}

	b.WriteString("## Sprint task files\n\n")
	for _, f := range files {
		writeDocument(b, "### "+filepath.Base(f), f, "")
	}
}

func (c *Composer) writeBacklog(b *strings.Builder) {
	files, err := taskmeta.TaskFiles(c.ws.BacklogDir())
	if err != nil || len(files) == 0 {
		return
	}
	b.WriteString("## Backlog tasks\n\nRead these task files when needed:\n")
	for _, f := range files {
		fmt.Fprintf(b, "- backlog/%s\n", filepath.Base(f))
	}
	b.WriteString("\n---\n\n")
}

func (c *Composer) writeInterfaceArtifacts(b *strings.Builder) {
	b.WriteString("# Interface Artifacts\n\n")
	found := false
	for _, name := range InterfaceArtifacts {
		path := c.ws.Artifact(name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		found = true
		writeDocument(b, "## "+name, path, "")
	}
	if !found {
		b.WriteString("(no interface documents)\n\n")
	}
}

func (c *Composer) writeListing(b *strings.Builder) {
	b.WriteString("# Other Artifacts\n\n")

	skip := map[string]bool{}
	for _, name := range append(append([]string(nil), PriorityArtifacts...), InterfaceArtifacts...) {
		skip[name] = true
	}

	var others []string
	if entries, err := os.ReadDir(c.ws.ArtifactsDir()); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") && !skip[e.Name()] {
				others = append(others, e.Name())
			}
		}
	}
	if len(others) > 0 {
		b.WriteString("Read these artifacts when needed:\n")
		for _, name := range others {
			fmt.Fprintf(b, "- artifacts/%s\n", name)
		}
		b.WriteString("\n")
	}

	var features []string
	if entries, err := os.ReadDir(c.ws.FeaturesDir()); err == nil {
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), "_") {
				features = append(features, e.Name())
			}
		}
	}
	if len(features) > 0 {
		b.WriteString("\n**Features:**\n")
		for _, f := range features {
			fmt.Fprintf(b, "- features/%s/\n", f)
		}
		b.WriteString("\nOpen the feature documents you need directly.\n")
	}

	if rfcs, err := taskmeta.TaskFiles(c.ws.RFCDir()); err == nil && len(rfcs) > 0 {
		b.WriteString("\n**RFCs:**\n")
		for _, r := range rfcs {
			fmt.Fprintf(b, "- rfc/%s\n", filepath.Base(r))
		}
	}
}

func writeInstructions(b *strings.Builder) {
	b.WriteString("\n---\n\n")
	b.WriteString("# Working Instructions\n\n")
	b.WriteString("- **Documents decide**: base every judgement on the documents included above.\n")
	b.WriteString("- **No guessing**: escalate anything the documents do not cover to the user.\n")
	b.WriteString("- **Follow the rules**: every rule listed above is mandatory.\n")
	b.WriteString("- **Priority**: when documents conflict, follow document-priority.md.\n")
	b.WriteString("- **Scope**: only work on tasks listed in the current sprint meta.md.\n")
	b.WriteString("- **Reading files**: open listed artifacts with your file tools when needed.\n")
	b.WriteString("\n")
	b.WriteString("## Multi-session status\n\n")
	b.WriteString("Other roles may be working in other terminals at the same time.\n")
	b.WriteString("Share state through the `ai-dev-team/.ada-status.json` file.\n\n")
	b.WriteString("**Protocol:**\n")
	b.WriteString("1. **Task progress**: update taskProgress when you start or finish a task\n")
	b.WriteString("2. **Questions**: add to pendingQuestions when you need an answer from the user\n")
	b.WriteString("3. **Notifications**: add to notifications when other roles should know something\n")
	b.WriteString("4. **Locks**: take an entry in locks before editing a shared artifact and release it afterwards\n")
}

// writeDocument appends a titled document. A missing file writes the title
// with absentNote, or nothing when absentNote is empty.
func writeDocument(b *strings.Builder, title, path, absentNote string) {
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		b.WriteString(title + "\n\n")
		b.Write(content)
		b.WriteString(sectionBreak)
	case os.IsNotExist(err):
		if absentNote != "" {
			fmt.Fprintf(b, "%s %s\n\n", title, absentNote)
		}
	default:
		fmt.Fprintf(b, "%s (unreadable)\n\n", title)
	}
}
