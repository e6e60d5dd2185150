package cmd

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/sprint"
)

// NewSprintCommand creates the sprint command group
func NewSprintCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints under artifacts/sprints",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Start the next sprint",
		Args:  cobra.NoArgs,
		RunE:  sprintCreateCommand,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <task-id>...",
		Short: "Move backlog tasks into the active sprint",
		Args:  cobra.MinimumNArgs(1),
		RunE:  sprintAddCommand,
	})

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close the active sprint and write its retrospective",
		Long: `Mark the active sprint completed, fill in its end date and write
retrospective.md. Task and review files are then archived (default),
deleted (docs/ is kept) or left in place.`,
		Args: cobra.NoArgs,
		RunE: sprintCloseCommand,
	}
	closeCmd.Flags().String("mode", string(sprint.CloseArchive), "What to do with task files: archive, clean, keep-all")
	closeCmd.Flags().String("keep", "", "Retrospective: what went well")
	closeCmd.Flags().String("problem", "", "Retrospective: what went wrong")
	closeCmd.Flags().String("try", "", "Retrospective: what to try next")
	cmd.AddCommand(closeCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sprints",
		Args:  cobra.NoArgs,
		RunE:  sprintListCommand,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Rewrite the active sprint's task table from its task files",
		Args:  cobra.NoArgs,
		RunE:  sprintSyncCommand,
	})

	return cmd
}

func sprintCreateCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	info, err := a.sprints.Create(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Created %s", info.Name))
	fmt.Fprintf(cmd.OutOrStdout(), "Hint: ada sprint add <task-id>... to pull tasks from the backlog\n")
	return nil
}

func sprintAddCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.sprints.Add(cmd.Context(), args)
	if res != nil {
		out := cmd.OutOrStdout()
		for _, t := range res.Added {
			fmt.Fprintf(out, "%s %s %s [%s]\n", color.GreenString("added"), t.ID, t.Title, t.Status)
		}
		for _, id := range res.Duplicate {
			fmt.Fprintf(out, "%s %s is already in %s\n", color.YellowString("skipped"), id, res.Sprint)
		}
		for _, id := range res.Missing {
			fmt.Fprintf(out, "%s %s is not in the backlog\n", color.RedString("missing"), id)
		}
	}
	return err
}

func sprintCloseCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	mode, _ := cmd.Flags().GetString("mode")
	var retro sprint.Retrospective
	retro.Keep, _ = cmd.Flags().GetString("keep")
	retro.Problem, _ = cmd.Flags().GetString("problem")
	retro.Try, _ = cmd.Flags().GetString("try")

	if retro == (sprint.Retrospective{}) && interactive(cmd.InOrStdin()) {
		r := menuReader(cmd)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Retrospective (leave empty to skip):")
		if retro.Keep, err = promptLine(r, out, "  Keep:    "); err != nil {
			return err
		}
		if retro.Problem, err = promptLine(r, out, "  Problem: "); err != nil {
			return err
		}
		if retro.Try, err = promptLine(r, out, "  Try:     "); err != nil {
			return err
		}
	}

	res, err := a.sprints.Close(cmd.Context(), sprint.CloseMode(mode), retro)
	if errors.Is(err, sprint.ErrNoActiveSprint) {
		return fmt.Errorf("%w\nHint: list sprints with 'ada sprint list'", err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.GreenString("Closed %s", res.Sprint))
	bar := logger.ProgressBar{Width: 20, Prefix: "  "}
	fmt.Fprintln(out, bar.Render(len(res.Completed), len(res.Completed)+len(res.Incomplete)))
	fmt.Fprintf(out, "  completed:  %d %v\n", len(res.Completed), res.Completed)
	fmt.Fprintf(out, "  incomplete: %d %v\n", len(res.Incomplete), res.Incomplete)
	if res.Files > 0 {
		fmt.Fprintf(out, "  %d file(s) handled (%s)\n", res.Files, mode)
	}
	return nil
}

func sprintListCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	list := a.sprints.List()
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No sprints yet")
		fmt.Fprintln(out, "Hint: ada sprint create")
		return nil
	}
	for _, info := range list {
		st := info.Status
		switch st {
		case sprint.StatusActive:
			st = color.GreenString("%s", st)
		case sprint.StatusUnknown:
			st = color.HiBlackString("%s", st)
		}
		fmt.Fprintf(out, "  %-12s %s\n", info.Name, st)
	}
	return nil
}

func sprintSyncCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	res, err := a.sprints.Sync(cmd.Context())
	if errors.Is(err, sprint.ErrNoActiveSprint) {
		return fmt.Errorf("%w\nHint: ada sprint create", err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s meta.md synced (%d task(s))\n", res.Sprint, len(res.Tasks))
	return nil
}
