package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/silbaram/artifact-driven-agent/internal/config"
	"github.com/silbaram/artifact-driven-agent/internal/logger"
	"github.com/silbaram/artifact-driven-agent/internal/session"
	"github.com/silbaram/artifact-driven-agent/internal/sprint"
	"github.com/silbaram/artifact-driven-agent/internal/status"
	"github.com/silbaram/artifact-driven-agent/internal/workspace"
)

// app bundles the per-invocation collaborators every command needs
type app struct {
	ws       *workspace.Workspace
	settings *config.Settings
	log      *logger.ConsoleLogger
	store    *status.Store
	sessions *session.Manager
	sprints  *sprint.Manager
}

// loadApp resolves the workspace and loads ada.yaml.
// Flags override file settings.
func loadApp(cmd *cobra.Command) (*app, error) {
	wsFlag, _ := cmd.Flags().GetString("workspace")
	ws, err := workspace.Resolve(wsFlag)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(ws.SettingsFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ws.SettingsFile(), err)
	}
	var levelPtr *string
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		levelPtr = &level
	}
	settings.MergeWithFlags(levelPtr, nil, nil)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), settings.LogLevel)
	store := status.NewStore(ws.StatusFile(),
		status.WithRetries(settings.StatusRetries),
		status.WithLockTimeout(settings.LockTimeout),
		status.WithLogger(log),
	)

	return &app{
		ws:       ws,
		settings: settings,
		log:      log,
		store:    store,
		sessions: session.NewManager(ws, store, log),
		sprints:  sprint.NewManager(ws, log),
	}, nil
}

// roleConfig loads ada.config.json. A malformed file is reported and the
// defaults are used.
func (a *app) roleConfig(ctx context.Context) (*config.RoleConfig, error) {
	cfg, err := config.LoadRoleConfig(ctx, a.ws.ConfigFile())
	if errors.Is(err, config.ErrMalformedConfig) {
		a.log.Warnf("%v", err)
		return cfg, nil
	}
	return cfg, err
}

// interactive reports whether stream is a terminal
func interactive(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// MenuReader reads operator input (for testing)
type MenuReader interface {
	ReadString(delim byte) (string, error)
}

// chooseOption prints a numbered menu and returns the picked option.
// Input may be the number or the option itself.
func chooseOption(r MenuReader, w io.Writer, title string, options []string) (string, error) {
	fmt.Fprintln(w, title)
	for i, opt := range options {
		fmt.Fprintf(w, "  %d. %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(w, "Select [1-%d]: ", len(options))
		line, err := r.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if n, convErr := strconv.Atoi(line); convErr == nil && n >= 1 && n <= len(options) {
				return options[n-1], nil
			}
			for _, opt := range options {
				if strings.EqualFold(opt, line) {
					return opt, nil
				}
			}
			fmt.Fprintf(w, "Invalid selection %q\n", line)
		}
		if err != nil {
			return "", fmt.Errorf("no selection made: %w", err)
		}
	}
}

// promptLine asks for one free-text line
func promptLine(r MenuReader, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func menuReader(cmd *cobra.Command) MenuReader {
	return bufio.NewReader(cmd.InOrStdin())
}
