package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/watch"
)

// NewSessionsCommand creates the sessions command
func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List active and recent agent sessions",
		Long: `List the sessions registered in the shared status document and the
most recent session records.

  --watch   redraw whenever the status document changes
  --clean   reap sessions whose process is gone and delete completed
            session directories`,
		Args: cobra.NoArgs,
		RunE: sessionsCommand,
	}

	cmd.Flags().Bool("watch", false, "Redraw when the status document changes")
	cmd.Flags().Bool("clean", false, "Remove stale and completed sessions")
	cmd.Flags().Int("limit", 10, "Number of recent session records to show")

	return cmd
}

func sessionsCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	limit, _ := cmd.Flags().GetInt("limit")
	clean, _ := cmd.Flags().GetBool("clean")
	watching, _ := cmd.Flags().GetBool("watch")

	if clean && watching {
		return fmt.Errorf("cannot use both --watch and --clean")
	}

	if clean {
		reaped := a.sessions.CleanupZombieSessions(a.settings.ZombieMaxAge)
		report, err := a.sessions.CleanupCompleted()
		if err != nil {
			return fmt.Errorf("clean sessions: %w", err)
		}
		fmt.Fprintf(out, "Reaped %d stale session(s)\n", reaped)
		fmt.Fprintf(out, "Removed %d completed session(s), kept %d\n", len(report.Removed), len(report.Kept))
		ids := make([]string, 0, len(report.Failed))
		for id := range report.Failed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintln(out, color.RedString("  %s: %v", id, report.Failed[id]))
		}
		return nil
	}

	render := func() {
		a.sessions.CleanupZombieSessions(a.settings.ZombieMaxAge)
		records, err := a.sessions.List(limit)
		if err != nil {
			a.log.Warnf("list session records: %v", err)
		}
		renderSessions(out, a.store.Read(), records)
	}

	if !watching {
		render()
		return nil
	}

	if err := os.MkdirAll(a.ws.Root, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	w, err := watch.New(a.ws.Root, filepath.Base(a.ws.StatusFile()))
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.ws.StatusFile(), err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redraw := func() {
		if interactive(cmd.OutOrStdout()) {
			fmt.Fprint(out, "\x1b[2J\x1b[H")
		}
		render()
		fmt.Fprintln(out, color.HiBlackString("\nwatching %s (Ctrl+C to stop)  %s", a.ws.StatusFile(), time.Now().Format("15:04:05")))
	}
	watch.Follow(ctx, w, redraw, func(err error) { a.log.Warnf("watch: %v", err) })
	return nil
}

func renderSessions(out io.Writer, doc *models.StatusDocument, records []models.SessionFile) {
	fmt.Fprintln(out, color.New(color.Bold).Sprintf("Active sessions (%d)", len(doc.ActiveSessions)))
	if len(doc.ActiveSessions) == 0 {
		fmt.Fprintln(out, "  none")
	}
	for _, s := range doc.ActiveSessions {
		line := fmt.Sprintf("  %s  %-10s %-8s %-9s started %s", s.SessionID, s.Role, s.Tool, s.Status, s.StartedAt)
		if s.PID > 0 {
			line += fmt.Sprintf("  pid %d", s.PID)
		}
		fmt.Fprintln(out, line)
		if s.CurrentTask != "" {
			fmt.Fprintf(out, "      working on %s %s\n", s.CurrentTask, s.CurrentTaskDescription)
		}
	}

	if len(records) == 0 {
		return
	}
	fmt.Fprintln(out, color.New(color.Bold).Sprint("\nRecent sessions"))
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %-10s %-8s %s\n", r.SessionID, r.Role, r.Tool, statusColor(r.Status))
	}
}

func statusColor(s models.SessionStatus) string {
	switch s {
	case models.SessionCompleted:
		return color.GreenString("%s", string(s))
	case models.SessionError:
		return color.RedString("%s", string(s))
	case models.SessionActive:
		return color.CyanString("%s", string(s))
	}
	return string(s)
}
