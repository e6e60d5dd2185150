// Package orchestrator drives agent sessions from manager decisions: it
// repeatedly syncs sprint metadata, consults the manager, optionally asks the
// operator, and dispatches the chosen role, with a repetition circuit breaker
// and an error threshold that drops the loop into safe mode.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
	"github.com/silbaram/artifact-driven-agent/internal/config"
	"github.com/silbaram/artifact-driven-agent/internal/consultant"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/sprint"
)

// ErrExitRequested is returned when the operator stops the loop
var ErrExitRequested = errors.New("orchestration stopped by operator")

// Consultant proposes the next decision, or nil when none could be made
type Consultant interface {
	Consult(ctx context.Context, c consultant.Context) *models.Decision
}

// Runner executes an agent session
type Runner interface {
	ExecuteSession(ctx context.Context, role, tool string, opts agent.Options) (*agent.Result, error)
}

// Syncer refreshes the active sprint's meta.md from its task files
type Syncer interface {
	Sync(ctx context.Context) (*sprint.SyncResult, error)
}

// StatusSource reads the shared status document
type StatusSource interface {
	Read() *models.StatusDocument
}

// ToolResolver maps a role to its configured tool
type ToolResolver interface {
	ToolForRole(role string) string
}

// Deps are the collaborators of a Loop
type Deps struct {
	Consultant Consultant
	Runner     Runner
	Gate       Gate
	Syncer     Syncer
	Status     StatusSource
	Tools      ToolResolver
}

// Loop is the orchestration control loop. It is not safe for concurrent use.
type Loop struct {
	deps     Deps
	settings config.OrchestratorSettings
	log      logger.Logger
	out      io.Writer
	sleep    func(ctx context.Context, d time.Duration) error

	consecutiveErrors int
	lastKey           string
	repetitionCount   int
	safeMode          bool
}

// New creates a Loop. A nil gate means no operator is attached.
func New(deps Deps, settings config.OrchestratorSettings, log logger.Logger, out io.Writer) *Loop {
	if deps.Gate == nil {
		deps.Gate = AutoGate{}
	}
	if out == nil {
		out = io.Discard
	}
	return &Loop{
		deps:     deps,
		settings: settings,
		log:      logger.OrNop(log),
		out:      out,
		sleep:    sleepContext,
	}
}

// Run loops until ctx ends (returns nil) or the operator stops it
// (returns ErrExitRequested). Failed iterations are counted; reaching the
// error threshold enters safe mode instead of returning.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.iterate(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrExitRequested):
			return err
		case ctx.Err() != nil:
			return nil
		default:
			l.recordError(ctx, err)
		}
	}
}

// SafeMode reports whether the loop is waiting for the operator to resume
func (l *Loop) SafeMode() bool {
	return l.safeMode
}

func (l *Loop) iterate(ctx context.Context) error {
	if l.safeMode {
		resume, err := l.deps.Gate.Confirm(ctx, "Safe mode is on. Resume orchestration?", false)
		if err != nil {
			return err
		}
		if !resume {
			fmt.Fprintf(l.out, "Staying in safe mode, asking again in %s\n", l.settings.SafeModeCooldown)
			return l.sleep(ctx, l.settings.SafeModeCooldown)
		}
		fmt.Fprintln(l.out, color.GreenString("Resuming."))
		l.safeMode = false
	}

	if _, err := l.deps.Syncer.Sync(ctx); err != nil && !errors.Is(err, sprint.ErrNoActiveSprint) {
		return fmt.Errorf("sync sprint: %w", err)
	}

	doc := l.deps.Status.Read()
	cc := consultant.Context{
		Phase:            doc.CurrentPhase,
		ActiveSessions:   doc.ActiveSessions,
		PendingQuestions: waiting(doc.PendingQuestions),
	}

	fmt.Fprintln(l.out, color.HiBlackString("\nAsking the manager for the next step..."))
	proposal := l.deps.Consultant.Consult(ctx, cc)
	if err := ctx.Err(); err != nil {
		return err
	}
	if proposal == nil {
		fmt.Fprintf(l.out, "%s\n", color.YellowString("   (no decision, retrying in %s)", l.settings.RetryDelay))
		return l.sleep(ctx, l.settings.RetryDelay)
	}
	decision := *proposal

	if l.settings.RequireApproval && (decision.Action == models.ActionRunAgent || decision.Action == models.ActionWait) {
		choice, modified, err := l.deps.Gate.Approve(ctx, decision)
		if err != nil {
			return err
		}
		switch choice {
		case ChoiceExit:
			return ErrExitRequested
		case ChoiceSkip:
			fmt.Fprintf(l.out, "   Skipped; analysing again in %s\n", l.settings.RetryDelay)
			return l.sleep(ctx, l.settings.RetryDelay)
		case ChoiceModify:
			decision = modified
		}
	}

	if l.lastKey != "" && l.lastKey == decision.Key() {
		l.repetitionCount++
	} else {
		l.repetitionCount = 0
	}
	if l.repetitionCount >= l.settings.RepetitionLimit {
		fmt.Fprintln(l.out, color.RedString("\n[circuit breaker] the same decision (%s) repeated %d times", decision.Key(), l.repetitionCount))
		resume, err := l.deps.Gate.Confirm(ctx, "Checked the project state? Resume automation?", true)
		if err != nil {
			return err
		}
		if !resume {
			return ErrExitRequested
		}
		l.repetitionCount = 0
		l.lastKey = ""
	}
	l.lastKey = decision.Key()

	fmt.Fprintf(l.out, "\n%s\n   reason: %s\n", color.GreenString("Manager decision: %s %s", decision.Action, decision.Role), decision.Reason)

	switch decision.Action {
	case models.ActionRunAgent:
		if busy(doc.ActiveSessions, decision.Role) {
			fmt.Fprintln(l.out, color.YellowString("%s is already running in another session; waiting", decision.Role))
			l.consecutiveErrors = 0
			return l.sleep(ctx, l.settings.BusyDelay)
		}
		tool := l.deps.Tools.ToolForRole(decision.Role)
		fmt.Fprintln(l.out, color.CyanString("\nStarting %s (%s)", decision.Role, tool))
		if _, err := l.deps.Runner.ExecuteSession(ctx, decision.Role, tool, agent.Options{}); err != nil {
			return fmt.Errorf("run %s: %w", decision.Role, err)
		}
		fmt.Fprintln(l.out, color.GreenString("%s finished", decision.Role))
	case models.ActionWait:
		if err := l.sleep(ctx, l.settings.WaitDelay); err != nil {
			return err
		}
	case models.ActionAskUser:
		fmt.Fprintln(l.out, color.YellowString("\nManager question: %s", decision.Reason))
		if err := l.sleep(ctx, l.settings.AskUserDelay); err != nil {
			return err
		}
	}

	l.consecutiveErrors = 0
	return l.sleep(ctx, l.settings.IterationDelay)
}

func (l *Loop) recordError(ctx context.Context, err error) {
	l.consecutiveErrors++
	l.log.Errorf("iteration failed (%d/%d): %v", l.consecutiveErrors, l.settings.ErrorThreshold, err)

	if l.consecutiveErrors >= l.settings.ErrorThreshold {
		l.log.Errorf("too many consecutive errors, entering safe mode")
		l.safeMode = true
		l.consecutiveErrors = 0
		l.repetitionCount = 0
		l.lastKey = ""
		_ = l.sleep(ctx, l.settings.IterationDelay)
		return
	}
	_ = l.sleep(ctx, l.settings.ErrorBackoff)
}

func busy(sessions []models.SessionInfo, role string) bool {
	for _, s := range sessions {
		if s.Role == role && s.Status == models.SessionActive {
			return true
		}
	}
	return false
}

func waiting(questions []models.Question) []models.Question {
	var out []models.Question
	for _, q := range questions {
		if q.Status == models.QuestionWaiting {
			out = append(out, q)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
