package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
)

// Mode selects how ada orchestrate runs
type Mode string

const (
	ModeGuided        Mode = "guided"
	ModeSprintRoutine Mode = "sprint_routine"
	ModeFeatureImpl   Mode = "feature_impl"
	ModeQAPass        Mode = "qa_pass"
	ModeDocumentation Mode = "documentation"
)

// Step is one agent run of a scenario
type Step struct {
	Label string
	Role  string
	Goal  string
}

var scenarios = map[Mode][]Step{
	ModeSprintRoutine: {
		{Label: "Planner", Role: "planner", Goal: "refine plan.md and the backlog"},
		{Label: "Developer", Role: "developer", Goal: "implement tasks"},
		{Label: "Reviewer", Role: "reviewer", Goal: "review code and design"},
	},
	ModeFeatureImpl: {
		{Label: "Developer", Role: "developer", Goal: "implement the feature"},
		{Label: "Reviewer", Role: "reviewer", Goal: "review the implementation"},
	},
	ModeQAPass: {
		{Label: "QA", Role: "qa", Goal: "run the tests"},
	},
	ModeDocumentation: {
		{Label: "Documenter", Role: "documenter", Goal: "bring the artifacts up to date"},
	},
}

// qaFollowUp runs when QA reports bugs
var qaFollowUp = []Step{
	{Label: "Developer", Role: "developer", Goal: "fix the bugs"},
	{Label: "QA", Role: "qa", Goal: "test again"},
}

// ParseMode resolves a mode name. "auto" is accepted as guided.
func ParseMode(name string) (Mode, error) {
	if name == "auto" {
		return ModeGuided, nil
	}
	m := Mode(name)
	if m == ModeGuided {
		return m, nil
	}
	if _, ok := scenarios[m]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown orchestration mode %q (available: %v)", name, Modes())
}

// Modes lists every mode, guided first
func Modes() []Mode {
	names := make([]Mode, 0, len(scenarios))
	for m := range scenarios {
		names = append(names, m)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return append([]Mode{ModeGuided}, names...)
}

// RunScenario runs the fixed role sequence of mode, stopping at the first
// failed step. For the QA pass the operator decides whether a fix round
// follows.
func (l *Loop) RunScenario(ctx context.Context, mode Mode) error {
	steps, ok := scenarios[mode]
	if !ok {
		return fmt.Errorf("mode %q is not a scenario", mode)
	}

	fmt.Fprintln(l.out, color.YellowString("\n[scenario] %s\n", mode))
	if err := l.runSteps(ctx, steps); err != nil {
		return err
	}

	if mode == ModeQAPass {
		fix, err := l.deps.Gate.Confirm(ctx, "Did QA find bugs that need developer fixes?", false)
		if err != nil {
			return err
		}
		if fix {
			if err := l.runSteps(ctx, qaFollowUp); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(l.out, color.GreenString("\n%s completed", mode))
	return nil
}

func (l *Loop) runSteps(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		tool := l.deps.Tools.ToolForRole(s.Role)
		fmt.Fprintln(l.out, color.CyanString("\n[step] %s", s.Label))
		fmt.Fprintf(l.out, "   goal: %s\n   tool: %s\n", s.Goal, tool)

		if _, err := l.deps.Runner.ExecuteSession(ctx, s.Role, tool, agent.Options{}); err != nil {
			return fmt.Errorf("%s step: %w", s.Label, err)
		}
		fmt.Fprintln(l.out, color.GreenString("%s step done", s.Label))
	}
	return nil
}
