package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewLogsCommand creates the logs command
func NewLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs [sessionId]",
		Short: "Show a session log",
		Long: `Print the log of a session. Without an id the most recent session is
shown.

Examples:
  ada logs
  ada logs 20250101-093000-1a2b3c4d -n 0   # Whole log`,
		Args: cobra.MaximumNArgs(1),
		RunE: logsCommand,
	}

	cmd.Flags().IntP("lines", "n", 50, "Number of trailing lines to show (0 = all)")

	return cmd
}

func logsCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	id := ""
	if len(args) == 1 {
		id = args[0]
	} else if id = a.sessions.LatestID(); id == "" {
		return fmt.Errorf("no sessions yet\nHint: start one with 'ada run <role>'")
	}

	n, _ := cmd.Flags().GetInt("lines")
	lines, err := a.sessions.ReadLog(id, n)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no log for session %s\nHint: list sessions with 'ada sessions'", id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "==> %s <==\n", a.ws.LogFile(id))
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
