package agent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownRole is returned for a role with no roles/<role>.md definition
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnknownTool is returned for a tool name outside the supported set
	ErrUnknownTool = errors.New("unknown tool")
)

// ExitError reports an agent tool that exited with a nonzero status
type ExitError struct {
	Tool   string
	Code   int
	Stderr string // Only set when output was captured
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}
