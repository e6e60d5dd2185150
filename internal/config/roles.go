package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/silbaram/artifact-driven-agent/internal/filelock"
)

// RoleConfigFile is the role to tool assignment file inside the workspace
const RoleConfigFile = "ada.config.json"

// DefaultTool is used when neither the role nor the defaults name a tool
const DefaultTool = "claude"

// ErrMalformedConfig reports an unparseable ada.config.json. The loader still
// returns usable defaults alongside it.
var ErrMalformedConfig = errors.New("malformed role config")

// RoleAssignment is one roles entry. On disk it is either a bare tool name
// or an object {"tool": ..., "skills": [...]}.
type RoleAssignment struct {
	Tool   string   `json:"tool"`
	Skills []string `json:"skills,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form
func (r *RoleAssignment) UnmarshalJSON(data []byte) error {
	var tool string
	if err := json.Unmarshal(data, &tool); err == nil {
		*r = RoleAssignment{Tool: tool}
		return nil
	}

	type plain RoleAssignment
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("role entry must be a tool name or {tool, skills}: %w", err)
	}
	*r = RoleAssignment(obj)
	return nil
}

// MarshalJSON writes the string form unless skills are set
func (r RoleAssignment) MarshalJSON() ([]byte, error) {
	if len(r.Skills) == 0 {
		return json.Marshal(r.Tool)
	}
	type plain RoleAssignment
	return json.Marshal(plain(r))
}

// RoleDefaults holds fallback values for roles without an entry
type RoleDefaults struct {
	Tool string `json:"tool"`
}

// RoleConfig is the parsed ada.config.json
type RoleConfig struct {
	Version  string                    `json:"version"`
	Defaults RoleDefaults              `json:"defaults"`
	Roles    map[string]RoleAssignment `json:"roles"`
}

// DefaultRoleConfig assigns every stock role to claude
func DefaultRoleConfig() *RoleConfig {
	roles := map[string]RoleAssignment{}
	for _, role := range []string{"manager", "planner", "architect", "developer", "reviewer", "qa", "improver", "documenter"} {
		roles[role] = RoleAssignment{Tool: DefaultTool}
	}
	return &RoleConfig{
		Version:  "1.0",
		Defaults: RoleDefaults{Tool: DefaultTool},
		Roles:    roles,
	}
}

// LoadRoleConfig reads the role config at path.
// A missing file is created with the defaults. A malformed file yields the
// defaults together with an error wrapping ErrMalformedConfig, so the result
// is always usable.
func LoadRoleConfig(ctx context.Context, path string) (*RoleConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := DefaultRoleConfig()
		if err := cfg.Save(ctx, path); err != nil {
			return cfg, fmt.Errorf("write default role config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return DefaultRoleConfig(), fmt.Errorf("failed to read role config: %w", err)
	}

	cfg, err := ParseRoleConfig(data)
	if err != nil {
		return DefaultRoleConfig(), fmt.Errorf("%w %s, using defaults: %v", ErrMalformedConfig, path, err)
	}
	return cfg, nil
}

// ParseRoleConfig decodes data and fills missing fields from the defaults
func ParseRoleConfig(data []byte) (*RoleConfig, error) {
	var file RoleConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	cfg := DefaultRoleConfig()
	if file.Version != "" {
		cfg.Version = file.Version
	}
	if file.Defaults.Tool != "" {
		cfg.Defaults.Tool = file.Defaults.Tool
	}
	for role, assignment := range file.Roles {
		cfg.Roles[role] = assignment
	}
	return cfg, nil
}

// Save writes the config under its flock sidecar
func (c *RoleConfig) Save(ctx context.Context, path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode role config: %w", err)
	}
	return filelock.LockAndWrite(ctx, path, append(data, '\n'))
}

// ToolForRole resolves the tool for role, falling back to the defaults and then claude
func (c *RoleConfig) ToolForRole(role string) string {
	if a, ok := c.Roles[role]; ok && a.Tool != "" {
		return a.Tool
	}
	if c.Defaults.Tool != "" {
		return c.Defaults.Tool
	}
	return DefaultTool
}

// Get returns the value at a dotted key: version, defaults.tool or roles.<role>
func (c *RoleConfig) Get(key string) (string, error) {
	switch {
	case key == "version":
		return c.Version, nil
	case key == "defaults.tool":
		return c.Defaults.Tool, nil
	case strings.HasPrefix(key, "roles."):
		role := strings.TrimPrefix(key, "roles.")
		a, ok := c.Roles[role]
		if !ok {
			return "", fmt.Errorf("no tool assigned to role %q", role)
		}
		return a.Tool, nil
	}
	return "", fmt.Errorf("unknown config key %q (expected version, defaults.tool or roles.<role>)", key)
}

// Set assigns value at a dotted key. Skills on an existing role are kept.
func (c *RoleConfig) Set(key, value string) error {
	switch {
	case key == "defaults.tool":
		c.Defaults.Tool = value
		return nil
	case strings.HasPrefix(key, "roles."):
		role := strings.TrimPrefix(key, "roles.")
		if role == "" {
			return fmt.Errorf("missing role name in key %q", key)
		}
		a := c.Roles[role]
		a.Tool = value
		if c.Roles == nil {
			c.Roles = map[string]RoleAssignment{}
		}
		c.Roles[role] = a
		return nil
	}
	return fmt.Errorf("unknown config key %q (expected defaults.tool or roles.<role>)", key)
}

// RoleNames returns the configured role names, sorted
func (c *RoleConfig) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for role := range c.Roles {
		names = append(names, role)
	}
	sort.Strings(names)
	return names
}
