package agent

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/silbaram/artifact-driven-agent/internal/session"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	ruleColor   = color.New(color.FgCyan)
	valueColor  = color.New(color.FgYellow)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.FgHiBlack)
	roleBadge   = color.New(color.BgCyan, color.FgBlack, color.Bold)
)

var rule = strings.Repeat("━", 60)

func (e *Engine) printBanner(sess *session.Session) {
	w := e.Stdout
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(w, "\x1b]0;ADA: %s (%s)\x07", sess.Record.Role, sess.Record.Tool)
	}

	store := e.sessions.Store()
	var others []string
	for _, s := range store.ActiveSessions() {
		if s.SessionID != sess.ID() {
			others = append(others, fmt.Sprintf("%s (%s)", s.Role, s.Tool))
		}
	}
	pending := len(store.PendingQuestions())

	fmt.Fprintln(w)
	ruleColor.Fprintln(w, rule)
	headerColor.Fprintln(w, "AI agent session")
	ruleColor.Fprintln(w, rule)
	fmt.Fprintln(w)
	roleBadge.Fprintf(w, "  role: %s  ", strings.ToUpper(sess.Record.Role))
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	template := sess.Record.Template
	if template == "" {
		template = "-"
	}
	fmt.Fprintf(w, "  session:   %s\n", valueColor.Sprint(sess.ID()))
	fmt.Fprintf(w, "  template:  %s\n", okColor.Sprint(template))
	fmt.Fprintf(w, "  tool:      %s\n", okColor.Sprint(sess.Record.Tool))
	fmt.Fprintf(w, "  log:       %s\n", dimColor.Sprint(".sessions/logs/"+sess.ID()+".log"))
	fmt.Fprintln(w)

	if len(others) > 0 {
		fmt.Fprintf(w, "  active sessions: %s\n", valueColor.Sprint(len(others)))
		for _, o := range others {
			dimColor.Fprintf(w, "     - %s\n", o)
		}
		fmt.Fprintln(w)
	}
	if pending > 0 {
		warnColor.Fprintf(w, "  pending questions: %d\n\n", pending)
	}
	ruleColor.Fprintln(w, rule)
	fmt.Fprintln(w)
}

func (e *Engine) printLaunchNotes(spec ToolSpec, relPrompt string) {
	w := e.Stdout
	fmt.Fprintln(w)
	if spec.Automation == AutomationFull {
		okColor.Fprintln(w, "The role is configured automatically")
		dimColor.Fprintf(w, "system prompt: %s\n", relPrompt)
	} else {
		warnColor.Fprintf(w, "%s cannot load a system prompt file; paste this once it starts:\n", spec.Name)
		valueColor.Fprintf(w, "  %s\n", spec.Instruction(relPrompt))
	}
	fmt.Fprintln(w)
	okColor.Fprintf(w, "starting %s...\n\n", spec.Name)
}

func (e *Engine) printManualHandoff(spec ToolSpec, relPrompt, prompt string) {
	w := e.Stdout
	fmt.Fprintln(w)
	warnColor.Fprintf(w, "%s CLI is not installed (%s not found in PATH)\n", spec.Name, spec.Command)
	fmt.Fprintf(w, "Paste the system prompt into your tool manually: %s\n", valueColor.Sprint(spec.Instruction(relPrompt)))
	fmt.Fprintln(w)
	printPrompt(w, prompt)
}

func printPrompt(w io.Writer, prompt string) {
	dimColor.Fprintln(w, rule)
	fmt.Fprintln(w, prompt)
	dimColor.Fprintln(w, rule)
}
