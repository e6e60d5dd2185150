// Package consultant asks the manager agent what the orchestration loop
// should do next and turns its reply into a validated Decision.
package consultant

import (
	"context"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// ManagerRole is the role consulted for decisions
const ManagerRole = "manager"

// Context is the live coordination state passed to a consultation
type Context struct {
	Phase            models.Phase
	ActiveSessions   []models.SessionInfo
	PendingQuestions []models.Question
}

// Runner executes an agent session
type Runner interface {
	ExecuteSession(ctx context.Context, role, tool string, opts agent.Options) (*agent.Result, error)
}

// Consultant consults the manager role through a Runner
type Consultant struct {
	ws      *workspace.Workspace
	runner  Runner
	toolFor func(role string) string
	log     logger.Logger
}

// New creates a Consultant. toolFor resolves the tool configured for a role.
func New(ws *workspace.Workspace, runner Runner, toolFor func(role string) string, log logger.Logger) *Consultant {
	return &Consultant{ws: ws, runner: runner, toolFor: toolFor, log: logger.OrNop(log)}
}

// Consult runs the manager headless with the consultation prompt and
// returns its decision, or nil when the run fails or the reply carries no
// valid decision.
func (c *Consultant) Consult(ctx context.Context, cc Context) *models.Decision {
	state := GatherState(c.ws, c.log)
	prompt := BuildPrompt(cc, state)
	tool := c.toolFor(ManagerRole)

	c.log.Infof("consulting %s (%s) for the next step", ManagerRole, tool)
	res, err := c.runner.ExecuteSession(ctx, ManagerRole, tool, agent.Options{
		Headless:             true,
		CaptureOutput:        true,
		SystemPromptOverride: prompt,
		ExitOnSignal:         true,
	})
	if err != nil {
		c.log.Warnf("manager consultation failed: %v", err)
		return nil
	}
	if res == nil || res.Output == "" {
		c.log.Warnf("manager returned no output")
		return nil
	}

	decision, err := ParseDecision(res.Output)
	if err != nil {
		c.log.Warnf("discarding manager reply: %v (output: %s)", err, preview(res.Output, 200))
		return nil
	}
	return decision
}

// CapturesOutput reports whether tool can run headless with captured output
func CapturesOutput(tool string) bool {
	switch tool {
	case "claude", "gemini", "codex":
		return true
	}
	return false
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
