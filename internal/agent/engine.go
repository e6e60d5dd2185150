// Package agent launches external agent CLIs (claude, gemini, codex,
// copilot) as sessions: it composes the role's system prompt, registers the
// session, runs the tool and records the outcome.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/session"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// Options tune a single ExecuteSession call
type Options struct {
	Headless             bool   // Suppress the session banner and launch notes
	CaptureOutput        bool   // Collect stdout/stderr instead of inheriting the terminal
	SystemPromptOverride string // Use this prompt instead of composing one
	ExitOnSignal         bool   // Kill the tool when ctx is cancelled instead of leaving it running
}

// Result describes a finished session
type Result struct {
	SessionID  string
	Status     models.SessionStatus
	Output     string // Captured stdout
	Prompt     string
	PromptFile string
	Manual     bool // Tool binary not found; the prompt was handed to the operator
}

// Engine runs agent sessions for one workspace
type Engine struct {
	ws       *workspace.Workspace
	sessions *session.Manager
	composer *Composer
	log      logger.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	lookPath  func(string) (string, error)
	workDir   string
	waitDelay time.Duration
}

// NewEngine creates an Engine wired to the terminal. log may be nil.
func NewEngine(ws *workspace.Workspace, sessions *session.Manager, log logger.Logger) *Engine {
	wd, _ := os.Getwd()
	return &Engine{
		ws:        ws,
		sessions:  sessions,
		composer:  NewComposer(ws),
		log:       logger.OrNop(log),
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		lookPath:  exec.LookPath,
		workDir:   wd,
		waitDelay: 2 * time.Second,
	}
}

// Composer returns the engine's prompt composer
func (e *Engine) Composer() *Composer {
	return e.composer
}

// ExecuteSession runs role with tool as a new session.
//
// role and tool are validated before anything is written. A tool binary
// missing from PATH is not an error: the prompt is surfaced for manual use
// and the session completes. A nonzero exit marks the session errored and
// returns an *ExitError. The session is unregistered before returning,
// except when ctx is cancelled without ExitOnSignal: the tool keeps running
// and its session stays registered with its pid.
func (e *Engine) ExecuteSession(ctx context.Context, role, tool string, opts Options) (*Result, error) {
	if !e.ws.HasRole(role) {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownRole, role, strings.Join(e.ws.AvailableRoles(), ", "))
	}
	spec, err := LookupTool(tool)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Create(role, tool)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	result := &Result{SessionID: sess.ID(), Status: models.SessionActive}

	prompt := opts.SystemPromptOverride
	if prompt != "" {
		sess.Log.Infof("system prompt override used")
	} else if prompt, err = e.composer.Compose(role); err != nil {
		return result, e.fail(sess, result, err)
	}
	result.Prompt = prompt

	promptFile, err := sess.WritePrompt(prompt)
	if err != nil {
		return result, e.fail(sess, result, err)
	}
	result.PromptFile = promptFile
	sess.Log.Infof("system prompt saved: %s", promptFile)

	if !opts.Headless {
		e.printBanner(sess)
	}

	output, err := e.launch(ctx, sess, spec, result, opts)
	if err != nil {
		var detached *detachedError
		if errors.As(err, &detached) {
			sess.Log.Warnf("interrupted; %s left running as pid %d", tool, detached.pid)
			return result, err
		}
		return result, e.fail(sess, result, err)
	}

	if err := sess.Complete(output); err != nil {
		e.log.Warnf("session %s: %v", sess.ID(), err)
	}
	result.Status = models.SessionCompleted
	result.Output = output
	return result, nil
}

func (e *Engine) fail(sess *session.Session, result *Result, cause error) error {
	if err := sess.Fail(cause); err != nil {
		e.log.Warnf("session %s: %v", sess.ID(), err)
	}
	result.Status = models.SessionError
	return cause
}

// detachedError is returned when ctx ends while the tool keeps running
type detachedError struct {
	pid int
	err error
}

func (d *detachedError) Error() string {
	return fmt.Sprintf("agent left running as pid %d: %v", d.pid, d.err)
}

func (d *detachedError) Unwrap() error { return d.err }

func (e *Engine) launch(ctx context.Context, sess *session.Session, spec ToolSpec, result *Result, opts Options) (string, error) {
	rel := e.relative(result.PromptFile)

	path, err := e.lookPath(spec.Command)
	if err != nil {
		result.Manual = true
		sess.Log.Warnf("%s CLI not found, prompt displayed", spec.Name)
		if !opts.CaptureOutput {
			e.printManualHandoff(spec, rel, result.Prompt)
		}
		return "", nil
	}

	if !opts.CaptureOutput {
		e.printLaunchNotes(spec, rel)
	}
	sess.Log.Infof("%s CLI launched (automation: %s)", spec.Name, spec.Automation)

	overrides := map[string]string{
		EnvSystemPrompt: result.PromptFile,
		EnvSessionID:    sess.ID(),
		EnvRole:         sess.Record.Role,
	}
	if spec.PromptEnv != "" {
		overrides[spec.PromptEnv] = result.PromptFile
	}

	var cmd *exec.Cmd
	if opts.ExitOnSignal {
		cmd = exec.CommandContext(ctx, path, spec.CommandArgs(result.PromptFile)...)
		cmd.WaitDelay = e.waitDelay
	} else {
		cmd = exec.Command(path, spec.CommandArgs(result.PromptFile)...)
	}
	cmd.Env = launchEnv(overrides)

	var stdout, stderr bytes.Buffer
	if opts.CaptureOutput {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdin = e.Stdin
		cmd.Stdout = e.Stdout
		cmd.Stderr = e.Stderr
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", spec.Name, err)
	}
	pid := cmd.Process.Pid
	e.sessions.Store().UpdateSessionDetails(sess.ID(), models.SessionDetails{PID: &pid})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		if !opts.ExitOnSignal {
			return "", &detachedError{pid: pid, err: ctx.Err()}
		}
		err = <-done
		if err == nil {
			err = ctx.Err()
		}
	}

	if err != nil && opts.ExitOnSignal && ctx.Err() != nil {
		return "", fmt.Errorf("%s interrupted: %w", spec.Name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ee := &ExitError{Tool: spec.Name, Code: exitErr.ExitCode()}
			if opts.CaptureOutput {
				ee.Stderr = stderr.String()
			}
			return "", ee
		}
		return "", fmt.Errorf("run %s: %w", spec.Name, err)
	}
	return stdout.String(), nil
}

func (e *Engine) relative(path string) string {
	if e.workDir == "" {
		return path
	}
	rel, err := filepath.Rel(e.workDir, path)
	if err != nil {
		return path
	}
	return rel
}
