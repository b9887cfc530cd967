package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for the backend package.
var (
	ErrCommandFailed  = errors.New("command failed")
	ErrBinaryNotFound = errors.New("binary not found")
)

// CommandError describes a failed external command invocation.
type CommandError struct {
	Err      error
	Command  string
	Stderr   string
	Args     []string
	ExitCode int
}

// Error formats the failure with its command context.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: exit code %d: %v", e.Command, strings.Join(e.Args, " "), e.ExitCode, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

// Unwrap exposes ErrCommandFailed and the underlying cause for errors.Is / errors.As.
func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

// ExitCode extracts a process exit code from a Wait/Run error.
// nil maps to 0; errors that carry no status (spawn failures, kills) map to -1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return -1
}
