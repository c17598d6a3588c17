package toolrun

import (
	"errors"
	"fmt"
)

// ErrExternalTool marks every failure of an external tool invocation.
// Callers match it with errors.Is and inspect the *ToolError for detail.
var ErrExternalTool = errors.New("toolrun: external tool failed")

// ToolError reports one failed invocation: which tool, how it exited, and
// the trailing stderr of the run.
type ToolError struct {
	Tool     Kind
	Command  string
	ExitCode int // -1 when the process did not run or exited abnormally
	Stderr   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool %s (%s) exited with code %d", e.Tool, e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return ErrExternalTool }
