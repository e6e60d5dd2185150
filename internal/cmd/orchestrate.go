package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/consultant"
	"github.com/silbaram/artifact-driven-agent/internal/orchestrator"
)

// NewOrchestrateCommand creates the orchestrate command
func NewOrchestrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestrate [mode]",
		Short: "Let the manager agent drive the roles",
		Long: `Run the orchestration loop. In guided mode (the default) the manager
role is consulted headless each iteration and proposes the next step,
which the operator approves, modifies, skips or uses to exit.

Scenario modes run a fixed role sequence instead:
  sprint_routine   planner, developer, reviewer
  feature_impl     developer, reviewer
  qa_pass          qa, optionally followed by a fix round
  documentation    documenter

Examples:
  ada orchestrate
  ada orchestrate sprint_routine
  ada orchestrate --no-approval   # Dispatch manager decisions unattended`,
		Args: cobra.MaximumNArgs(1),
		RunE: orchestrateCommand,
	}

	cmd.Flags().Bool("no-approval", false, "Skip the approval gate for run_agent and wait decisions")

	return cmd
}

func orchestrateCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.ws.RequireSetup(); err != nil {
		return err
	}
	if cmd.Flags().Changed("no-approval") {
		noApproval, _ := cmd.Flags().GetBool("no-approval")
		require := !noApproval
		a.settings.MergeWithFlags(nil, &require, nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := a.roleConfig(ctx)
	if err != nil {
		return err
	}

	interactiveIn := interactive(cmd.InOrStdin())
	mode := orchestrator.ModeGuided
	switch {
	case len(args) == 1:
		if mode, err = orchestrator.ParseMode(args[0]); err != nil {
			return fmt.Errorf("%w\nHint: ada orchestrate [%v]", err, orchestrator.Modes())
		}
	case interactiveIn:
		names := make([]string, 0, len(orchestrator.Modes()))
		for _, m := range orchestrator.Modes() {
			names = append(names, string(m))
		}
		picked, err := chooseOption(menuReader(cmd), cmd.OutOrStdout(), "Select an orchestration mode:", names)
		if err != nil {
			return err
		}
		mode = orchestrator.Mode(picked)
	}

	if n := a.sessions.CleanupZombieSessions(a.settings.ZombieMaxAge); n > 0 {
		a.log.Infof("cleaned up %d stale session(s)", n)
	}

	engine := newEngine(cmd, a)
	deps := orchestrator.Deps{
		Runner: engine,
		Syncer: a.sprints,
		Status: a.store,
		Tools:  roles,
	}
	if interactiveIn {
		deps.Gate = orchestrator.NewTerminalGate(cmd.InOrStdin(), cmd.OutOrStdout())
	} else {
		a.log.Warnf("stdin is not a terminal: decisions are approved automatically and confirmations declined")
	}

	if mode == orchestrator.ModeGuided {
		managerTool := roles.ToolForRole(consultant.ManagerRole)
		if !consultant.CapturesOutput(managerTool) {
			return fmt.Errorf("guided mode cannot read decisions from %s\nHint: ada config set roles.%s claude", managerTool, consultant.ManagerRole)
		}
		if !a.ws.HasRole(consultant.ManagerRole) {
			return fmt.Errorf("guided mode needs roles/%s.md\nHint: add a manager role or pick a scenario mode", consultant.ManagerRole)
		}
		deps.Consultant = consultant.New(a.ws, engine, roles.ToolForRole, a.log)
	}

	loop := orchestrator.New(deps, a.settings.Orchestrator, a.log, cmd.OutOrStdout())

	if mode != orchestrator.ModeGuided {
		return loop.RunScenario(ctx, mode)
	}

	fmt.Fprintln(cmd.OutOrStdout(), color.CyanString("Guided orchestration started (Ctrl+C to stop)"))
	err = loop.Run(ctx)
	if err == nil || errors.Is(err, orchestrator.ErrExitRequested) {
		fmt.Fprintln(cmd.OutOrStdout(), color.YellowString("\nOrchestration stopped"))
		return nil
	}
	return err
}
