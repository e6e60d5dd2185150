package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/consultant"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the project and coordination state",
		Long: `Show the planning documents, the active sprint's task counts, active
sessions, pending questions, unread notifications and held locks, followed
by the next step the decision policy recommends.

With --json the raw shared status document is printed instead.`,
		Args: cobra.NoArgs,
		RunE: statusCommand,
	}

	cmd.Flags().Bool("json", false, "Print the raw status document")

	return cmd
}

func statusCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	doc := a.store.Read()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status document: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	state := consultant.GatherState(a.ws, a.log)
	printProjectState(out, a.ws.Root, state)
	printCoordination(out, doc)

	next := consultant.Recommend(state)
	fmt.Fprintln(out, color.New(color.Bold).Sprint("\nNext step"))
	if next.Action == models.ActionRunAgent {
		fmt.Fprintf(out, "  %s\n", color.GreenString("ada run %s", next.Role))
	} else {
		fmt.Fprintf(out, "  %s\n", color.YellowString("%s", string(next.Action)))
	}
	fmt.Fprintf(out, "  %s\n", next.Reason)
	return nil
}

func printProjectState(out io.Writer, root string, s *consultant.State) {
	fmt.Fprintln(out, color.New(color.Bold).Sprint("Workspace"))
	fmt.Fprintf(out, "  path:     %s\n", root)
	if s.Template != "" {
		fmt.Fprintf(out, "  template: %s\n", s.Template)
	}
	for _, doc := range []struct {
		name    string
		present bool
	}{
		{"project.md", s.HasProject},
		{"plan.md", s.HasPlan},
		{"decision.md", s.HasDecision},
	} {
		mark := color.RedString("missing")
		if doc.present {
			mark = color.GreenString("present")
		}
		fmt.Fprintf(out, "  %-12s %s\n", doc.name, mark)
	}

	fmt.Fprintln(out, color.New(color.Bold).Sprint("\nSprint"))
	if s.Sprint == "" {
		fmt.Fprintln(out, "  no active sprint")
	} else {
		groups := s.ByStatus()
		bar := logger.ProgressBar{Width: 20}
		fmt.Fprintf(out, "  %s %s\n", s.Sprint, bar.Render(len(groups[models.TaskDone]), len(s.Tasks)))
		for _, st := range models.AllTaskStatuses {
			if n := len(groups[st]); n > 0 {
				fmt.Fprintf(out, "    %-10s %d\n", st, n)
			}
		}
	}
	fmt.Fprintf(out, "  backlog: %d task(s)\n", len(s.Backlog))
}

func printCoordination(out io.Writer, doc *models.StatusDocument) {
	fmt.Fprintln(out, color.New(color.Bold).Sprint("\nCoordination"))
	if doc.CurrentPhase != "" {
		fmt.Fprintf(out, "  phase: %s\n", doc.CurrentPhase)
	}

	fmt.Fprintf(out, "  active sessions: %d\n", len(doc.ActiveSessions))
	for _, s := range doc.ActiveSessions {
		fmt.Fprintf(out, "    %s  %s (%s)  %s\n", s.SessionID, s.Role, s.Tool, s.Status)
	}

	waiting := 0
	for _, q := range doc.PendingQuestions {
		if q.Status == models.QuestionWaiting {
			waiting++
		}
	}
	fmt.Fprintf(out, "  pending questions: %d\n", waiting)

	unread := 0
	for _, n := range doc.Notifications {
		if !n.Read {
			unread++
		}
	}
	fmt.Fprintf(out, "  unread notifications: %d\n", unread)

	if len(doc.Locks) > 0 {
		paths := make([]string, 0, len(doc.Locks))
		for p := range doc.Locks {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		fmt.Fprintf(out, "  locks: %d\n", len(paths))
		for _, p := range paths {
			fmt.Fprintf(out, "    %s  held by %s since %s\n", p, doc.Locks[p].Holder, doc.Locks[p].AcquiredAt)
		}
	}
}
