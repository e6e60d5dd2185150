// Package workspace resolves the on-disk layout shared by every ada process.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultDirName is the workspace directory created under the project root
const DefaultDirName = "ai-dev-team"

// EnvWorkspace overrides the workspace location when set
const EnvWorkspace = "ADA_WORKSPACE"

// ErrNotSetup is returned when the workspace has no role definitions
var ErrNotSetup = errors.New("workspace is not set up")

// Tools lists the external agent CLIs ada knows how to launch
var Tools = []string{"claude", "codex", "gemini", "copilot"}

// Workspace is a resolved ada workspace root
type Workspace struct {
	Root string
}

// Resolve picks the workspace root.
// Priority order:
//  1. explicit path (the --workspace flag)
//  2. ADA_WORKSPACE environment variable
//  3. ./ai-dev-team under the current working directory
func Resolve(explicit string) (*Workspace, error) {
	root := explicit
	if root == "" {
		root = os.Getenv(EnvWorkspace)
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		root = filepath.Join(cwd, DefaultDirName)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path %s: %w", root, err)
	}
	return &Workspace{Root: abs}, nil
}

// New wraps an already known root without touching the environment
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

func (w *Workspace) RolesDir() string     { return filepath.Join(w.Root, "roles") }
func (w *Workspace) RulesDir() string     { return filepath.Join(w.Root, "rules") }
func (w *Workspace) ArtifactsDir() string { return filepath.Join(w.Root, "artifacts") }
func (w *Workspace) BacklogDir() string   { return filepath.Join(w.ArtifactsDir(), "backlog") }
func (w *Workspace) SprintsDir() string   { return filepath.Join(w.ArtifactsDir(), "sprints") }
func (w *Workspace) FeaturesDir() string  { return filepath.Join(w.ArtifactsDir(), "features") }
func (w *Workspace) RFCDir() string       { return filepath.Join(w.ArtifactsDir(), "rfc") }
func (w *Workspace) SessionsDir() string  { return filepath.Join(w.Root, ".sessions") }
func (w *Workspace) LogsDir() string      { return filepath.Join(w.SessionsDir(), "logs") }
func (w *Workspace) StatusFile() string   { return filepath.Join(w.Root, ".ada-status.json") }
func (w *Workspace) ConfigFile() string   { return filepath.Join(w.Root, "ada.config.json") }
func (w *Workspace) SettingsFile() string { return filepath.Join(w.Root, "ada.yaml") }

// SessionDir is the per-session record directory
func (w *Workspace) SessionDir(sessionID string) string {
	return filepath.Join(w.SessionsDir(), sessionID)
}

// LogFile is the per-session append-only log
func (w *Workspace) LogFile(sessionID string) string {
	return filepath.Join(w.LogsDir(), sessionID+".log")
}

// Artifact returns the path of a top-level artifact document such as plan.md
func (w *Workspace) Artifact(name string) string {
	return filepath.Join(w.ArtifactsDir(), name)
}

// CurrentTemplate returns the template recorded at setup time, or "" if none
func (w *Workspace) CurrentTemplate() string {
	data, err := os.ReadFile(filepath.Join(w.Root, ".current-template"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// AvailableRoles lists role names defined by roles/*.md, sorted
func (w *Workspace) AvailableRoles() []string {
	entries, err := os.ReadDir(w.RolesDir())
	if err != nil {
		return nil
	}

	var roles []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		roles = append(roles, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(roles)
	return roles
}

// AvailableTools lists the launchable tool names
func (w *Workspace) AvailableTools() []string {
	return append([]string(nil), Tools...)
}

// IsSetup reports whether at least one role definition exists
func (w *Workspace) IsSetup() bool {
	return len(w.AvailableRoles()) > 0
}

// RequireSetup returns ErrNotSetup with a hint when IsSetup is false
func (w *Workspace) RequireSetup() error {
	if w.IsSetup() {
		return nil
	}
	return fmt.Errorf("%w: no role definitions in %s\nHint: run the workspace setup command first", ErrNotSetup, w.RolesDir())
}

// HasRole reports whether role is defined in the workspace
func (w *Workspace) HasRole(role string) bool {
	for _, r := range w.AvailableRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// HasTool reports whether tool is a known tool name
func HasTool(tool string) bool {
	for _, t := range Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// EnsureSessionDirs creates the sessions and logs directories
func (w *Workspace) EnsureSessionDirs() error {
	if err := os.MkdirAll(w.LogsDir(), 0755); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}
	return nil
}

// NewSessionID builds an id of the form YYYYMMDD-HHMMSS-<8 hex chars>
func NewSessionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", now.Format("20060102-150405"), random)
}

// Timestamp renders t in the human-readable form used by session records and logs
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
