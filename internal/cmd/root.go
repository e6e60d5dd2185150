package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for ada
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ada",
		Short: "Artifact-driven multi-agent coordination",
		Long: `ada coordinates several AI coding agent CLIs (claude, gemini, codex,
copilot) working on one project. Agents play roles such as planner,
developer and reviewer, and coordinate only through shared files: task
documents, sprint metadata and a shared status document.

The orchestrate command lets a manager agent decide which role runs next,
with an optional human approval gate.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("workspace", "", "Workspace directory (default: $ADA_WORKSPACE or ./ai-dev-team)")
	cmd.PersistentFlags().String("log-level", "", "Console log level: trace, debug, info, warn, error")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewOrchestrateCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewSessionsCommand())
	cmd.AddCommand(NewLogsCommand())
	cmd.AddCommand(NewSprintCommand())
	cmd.AddCommand(NewQuestionCommand())
	cmd.AddCommand(NewNotifyCommand())
	cmd.AddCommand(NewLockCommand())
	cmd.AddCommand(NewConfigCommand())

	return cmd
}
