package common

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Match them with errors.Is; the typed errors below unwrap to
// one of these.
var (
	ErrBinaryNotFound       = errors.New("browser binary not found")
	ErrNoPortAvailable      = errors.New("no debugging port available")
	ErrProcessStartupFailed = errors.New("browser process failed to start")
	ErrStartupTimeout       = errors.New("browser startup timed out")
	ErrTabCreationFailed    = errors.New("tab creation failed")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrNotConnected         = errors.New("not connected")
	ErrCDPCommand           = errors.New("cdp command failed")
	ErrScript               = errors.New("script error")
	ErrWaitTimeout          = errors.New("wait timeout")
	ErrFileWrite            = errors.New("file write failed")
	ErrInvalidState         = errors.New("invalid controller state")
)

// StartupError is returned when the browser process could not be brought
// up. It carries the output the process produced so far.
type StartupError struct {
	Kind     error // ErrProcessStartupFailed or ErrStartupTimeout
	Reason   string
	ExitCode int // -1 when the process did not exit
	Stdout   string
	Stderr   string
}

func (e *StartupError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&sb, " (exit code %d)", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Stdout); out != "" {
		sb.WriteString("\nstdout: ")
		sb.WriteString(out)
	}
	if out := strings.TrimSpace(e.Stderr); out != "" {
		sb.WriteString("\nstderr: ")
		sb.WriteString(out)
	}
	return sb.String()
}

func (e *StartupError) Unwrap() error {
	return e.Kind
}

// CommandError is a protocol-level error returned by the browser for a
// CDP command.
type CommandError struct {
	Method  string
	Code    int64
	Message string
}

func (e *CommandError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("%s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Method, e.Message, e.Code)
}

func (e *CommandError) Unwrap() error {
	return ErrCDPCommand
}

// ScriptError carries the exception details of an evaluated script.
type ScriptError struct {
	Text         string
	Description  string
	LineNumber   int64
	ColumnNumber int64
}

func (e *ScriptError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = e.Text
	}
	// Descriptions hold the full stack; the first line is the message.
	msg, _, _ = strings.Cut(msg, "\n")
	return fmt.Sprintf("%s at %d:%d: %s", ErrScript, e.LineNumber, e.ColumnNumber, msg)
}

func (e *ScriptError) Unwrap() error {
	return ErrScript
}

// Message returns the thrown message, falling back to the exception text.
func (e *ScriptError) Message() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Text
}

// WaitTimeoutError is returned when a selector did not show up in time.
type WaitTimeoutError struct {
	Selector string
	Timeout  time.Duration
	Script   *ScriptError
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("%s: selector %q did not appear within %s", ErrWaitTimeout, e.Selector, e.Timeout)
}

func (e *WaitTimeoutError) Unwrap() []error {
	if e.Script == nil {
		return []error{ErrWaitTimeout}
	}
	return []error{ErrWaitTimeout, e.Script}
}

// FileWriteError is returned when a file could not be written.
type FileWriteError struct {
	Path string
	Err  error
}

func (e *FileWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrFileWrite, e.Path, e.Err)
}

func (e *FileWriteError) Unwrap() []error {
	return []error{ErrFileWrite, e.Err}
}
