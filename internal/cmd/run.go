package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
	"github.com/silbaram/artifact-driven-agent/internal/config"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [role] [tool]",
		Short: "Start an agent session for a role",
		Long: `Start an agent session: compose the role's system prompt from the
workspace (role definition, rules, planning artifacts, the active sprint's
tasks and the backlog), register the session in the shared status document
and launch the tool with the prompt.

The tool defaults to the one configured for the role in ada.config.json.
When the tool's CLI is not installed the prompt is printed for manual use.

Examples:
  ada run                      # Pick a role interactively
  ada run developer            # Use the configured tool
  ada run reviewer gemini      # Override the tool`,
		Args: cobra.MaximumNArgs(2),
		RunE: runCommand,
	}
	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.ws.RequireSetup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := a.roleConfig(ctx)
	if err != nil {
		return err
	}

	role, tool, err := resolveRoleAndTool(cmd, a, roles, args)
	if err != nil {
		return err
	}

	if n := a.sessions.CleanupZombieSessions(a.settings.ZombieMaxAge); n > 0 {
		a.log.Infof("cleaned up %d stale session(s)", n)
	}

	engine := newEngine(cmd, a)
	res, err := engine.ExecuteSession(ctx, role, tool, agent.Options{})
	return reportSession(cmd, res, err)
}

func newEngine(cmd *cobra.Command, a *app) *agent.Engine {
	engine := agent.NewEngine(a.ws, a.sessions, a.log)
	engine.Stdin = cmd.InOrStdin()
	engine.Stdout = cmd.OutOrStdout()
	engine.Stderr = cmd.ErrOrStderr()
	return engine
}

func resolveRoleAndTool(cmd *cobra.Command, a *app, roles *config.RoleConfig, args []string) (string, string, error) {
	var role, tool string
	if len(args) > 0 {
		role = args[0]
	}
	if len(args) > 1 {
		tool = args[1]
	}

	if role == "" {
		if !interactive(cmd.InOrStdin()) {
			return "", "", fmt.Errorf("no role given\nHint: ada run <role> [tool] (roles: %v)", a.ws.AvailableRoles())
		}
		picked, err := chooseOption(menuReader(cmd), cmd.OutOrStdout(), "Select a role:", a.ws.AvailableRoles())
		if err != nil {
			return "", "", err
		}
		role = picked
	}
	if tool == "" {
		tool = roles.ToolForRole(role)
	}
	return role, tool, nil
}

// reportSession prints the outcome of an interactive session and maps
// failures to errors with a hint
func reportSession(cmd *cobra.Command, res *agent.Result, err error) error {
	out := cmd.OutOrStdout()
	if err == nil {
		fmt.Fprintln(out, color.GreenString("\nSession %s completed", res.SessionID))
		return nil
	}

	switch {
	case errors.Is(err, agent.ErrUnknownRole), errors.Is(err, agent.ErrUnknownTool):
		return fmt.Errorf("%w\nHint: check roles/ in the workspace and the tools %v", err, agent.ToolNames())
	case errors.Is(err, context.Canceled) && res != nil:
		fmt.Fprintln(out, color.YellowString("\nSession %s interrupted", res.SessionID))
		return nil
	case res != nil:
		return fmt.Errorf("%w\nHint: ada logs %s", err, res.SessionID)
	}
	return err
}
