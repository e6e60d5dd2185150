package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// Choice is the operator's answer to a proposed decision
type Choice string

const (
	ChoiceApprove Choice = "approve"
	ChoiceModify  Choice = "modify"
	ChoiceSkip    Choice = "skip"
	ChoiceExit    Choice = "exit"
)

// Gate is the human-in-the-loop checkpoint
type Gate interface {
	// Approve shows d and returns the operator's choice. For ChoiceModify the
	// replacement decision is returned alongside.
	Approve(ctx context.Context, d models.Decision) (Choice, models.Decision, error)

	// Confirm asks a yes/no question
	Confirm(ctx context.Context, question string, def bool) (bool, error)
}

// ModifyRoles are offered when the operator replaces a decision
var ModifyRoles = []string{"planner", "developer", "reviewer", "documenter", "qa", "improver", "wait"}

// MenuReader reads operator input (for testing)
type MenuReader interface {
	ReadString(delim byte) (string, error)
}

// TerminalGate prompts on a terminal
type TerminalGate struct {
	reader MenuReader
	out    io.Writer
}

// NewTerminalGate reads answers from in and writes prompts to out
func NewTerminalGate(in io.Reader, out io.Writer) *TerminalGate {
	return NewTerminalGateWithReader(bufio.NewReader(in), out)
}

// NewTerminalGateWithReader allows injection of reader for testing
func NewTerminalGateWithReader(reader MenuReader, out io.Writer) *TerminalGate {
	return &TerminalGate{reader: reader, out: out}
}

// Approve shows the proposal and reads a menu choice. End of input exits.
func (g *TerminalGate) Approve(ctx context.Context, d models.Decision) (Choice, models.Decision, error) {
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(g.out, "\n%s\n", cyan("Manager proposal:"))
	fmt.Fprintf(g.out, "   %s: %s\n", bold("Action"), d.Action)
	if d.Role != "" {
		fmt.Fprintf(g.out, "   %s:   %s\n", bold("Role"), d.Role)
	}
	fmt.Fprintf(g.out, "   %s: %s\n", bold("Reason"), d.Reason)

	choices := []Choice{ChoiceApprove, ChoiceModify, ChoiceSkip, ChoiceExit}
	for {
		fmt.Fprintln(g.out)
		fmt.Fprintln(g.out, "  1) approve   run the proposal")
		fmt.Fprintln(g.out, "  2) modify    pick the role yourself")
		fmt.Fprintln(g.out, "  3) skip      skip this cycle")
		fmt.Fprintln(g.out, "  4) exit      stop orchestrating")
		fmt.Fprint(g.out, "Approve the proposal? [1-4]: ")

		line, err := readLine(ctx, g.reader)
		if errors.Is(err, io.EOF) {
			return ChoiceExit, d, nil
		}
		if err != nil {
			return "", d, err
		}

		choice, ok := parseChoice(line, choices)
		if !ok {
			fmt.Fprintln(g.out, color.YellowString("Invalid selection %q", line))
			continue
		}
		if choice != ChoiceModify {
			return choice, d, nil
		}

		modified, err := g.pickRole(ctx)
		if errors.Is(err, io.EOF) {
			return ChoiceExit, d, nil
		}
		if err != nil {
			return "", d, err
		}
		return ChoiceModify, modified, nil
	}
}

func (g *TerminalGate) pickRole(ctx context.Context) (models.Decision, error) {
	for {
		fmt.Fprintln(g.out)
		for i, role := range ModifyRoles {
			fmt.Fprintf(g.out, "  %d) %s\n", i+1, role)
		}
		fmt.Fprintf(g.out, "Role to run [1-%d]: ", len(ModifyRoles))

		line, err := readLine(ctx, g.reader)
		if err != nil {
			return models.Decision{}, err
		}
		role, ok := parseChoice(line, ModifyRoles)
		if !ok {
			fmt.Fprintln(g.out, color.YellowString("Invalid selection %q", line))
			continue
		}
		if role == "wait" {
			return models.Decision{Action: models.ActionWait, Reason: "wait requested by the operator"}, nil
		}
		return models.Decision{Action: models.ActionRunAgent, Role: role, Reason: "selected by the operator"}, nil
	}
}

// Confirm asks question and returns def on an empty answer. End of input
// answers no.
func (g *TerminalGate) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(g.out, "%s %s: ", question, hint)
		line, err := readLine(ctx, g.reader)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
	}
}

// AutoGate approves every proposal and declines every confirmation. It is
// used when no operator is attached.
type AutoGate struct{}

func (AutoGate) Approve(_ context.Context, d models.Decision) (Choice, models.Decision, error) {
	return ChoiceApprove, d, nil
}

func (AutoGate) Confirm(context.Context, string, bool) (bool, error) {
	return false, nil
}

// parseChoice accepts a 1-based index or the option name
func parseChoice[T ~string](input string, options []T) (T, bool) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, o := range options {
		if strings.EqualFold(string(o), input) {
			return o, true
		}
	}
	var zero T
	return zero, false
}

// readLine reads one line, giving up when ctx ends
func readLine(ctx context.Context, r MenuReader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && strings.TrimSpace(res.line) == "" {
			return "", res.err
		}
		return strings.TrimSpace(res.line), nil
	}
}
