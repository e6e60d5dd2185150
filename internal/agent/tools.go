package agent

import (
	"fmt"
	"sort"
)

// Automation describes how a tool receives the system prompt
type Automation string

const (
	// AutomationFull tools load the prompt file themselves
	AutomationFull Automation = "full"

	// AutomationManual tools need the operator to paste an @file reference
	AutomationManual Automation = "manual"
)

// ToolSpec is how one external agent CLI is launched
type ToolSpec struct {
	Name       string
	Command    string
	Args       []string
	PromptFlag string // Flag followed by the prompt file path
	PromptEnv  string // Environment variable set to the prompt file path
	Automation Automation
}

var toolSpecs = map[string]ToolSpec{
	"claude": {
		Name:       "claude",
		Command:    "claude",
		PromptFlag: "--system-prompt-file",
		Automation: AutomationFull,
	},
	"gemini": {
		Name:       "gemini",
		Command:    "gemini",
		PromptEnv:  "GEMINI_SYSTEM_MD",
		Automation: AutomationFull,
	},
	"codex": {
		Name:       "codex",
		Command:    "codex",
		Automation: AutomationManual,
	},
	"copilot": {
		Name:       "copilot",
		Command:    "gh",
		Args:       []string{"copilot"},
		Automation: AutomationManual,
	},
}

// LookupTool returns the launch spec for tool
func LookupTool(tool string) (ToolSpec, error) {
	spec, ok := toolSpecs[tool]
	if !ok {
		return ToolSpec{}, fmt.Errorf("%w: %s (available: %v)", ErrUnknownTool, tool, ToolNames())
	}
	return spec, nil
}

// ToolNames lists the supported tools, sorted
func ToolNames() []string {
	names := make([]string, 0, len(toolSpecs))
	for name := range toolSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandArgs returns the argument list for a launch with promptFile
func (t ToolSpec) CommandArgs(promptFile string) []string {
	args := append([]string(nil), t.Args...)
	if t.PromptFlag != "" {
		args = append(args, t.PromptFlag, promptFile)
	}
	return args
}

// Instruction is what the operator pastes into a manual tool
func (t ToolSpec) Instruction(relPromptPath string) string {
	return "@" + relPromptPath
}
