package models

import (
	"fmt"
	"strings"
)

// DecisionAction is what the manager wants the control loop to do next
type DecisionAction string

const (
	ActionRunAgent DecisionAction = "run_agent"
	ActionWait     DecisionAction = "wait"
	ActionAskUser  DecisionAction = "ask_user"
)

// DecisionRoles is the allow-list of roles a run_agent decision may name
var DecisionRoles = []string{"planner", "developer", "reviewer", "documenter", "improver", "qa", "analyzer"}

// Decision is the manager's ephemeral recommendation. It is never persisted.
type Decision struct {
	Action     DecisionAction `json:"action"`
	Role       string         `json:"role,omitempty"`       // Required for run_agent
	Reason     string         `json:"reason"`               // Always required, non-empty
	Priority   string         `json:"priority,omitempty"`   // Optional hint
	TargetTask string         `json:"targetTask,omitempty"` // Optional task id
}

// Validate checks the decision against the same rules as DecisionSchema
func (d *Decision) Validate() error {
	switch d.Action {
	case ActionRunAgent:
		if !IsDecisionRole(d.Role) {
			return fmt.Errorf("run_agent requires role in %s, got %q", strings.Join(DecisionRoles, "|"), d.Role)
		}
	case ActionWait, ActionAskUser:
	default:
		return fmt.Errorf("action must be run_agent, wait or ask_user, got %q", d.Action)
	}
	if strings.TrimSpace(d.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// Key identifies a decision for repetition tracking
func (d *Decision) Key() string {
	return string(d.Action) + ":" + d.Role
}

// IsDecisionRole reports whether role is in DecisionRoles
func IsDecisionRole(role string) bool {
	for _, r := range DecisionRoles {
		if r == role {
			return true
		}
	}
	return false
}
