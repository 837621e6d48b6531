// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for CLI commands.
//
// Commands always return errors and never print and return nil. Execute
// displays the error once and maps it to an exit code.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/molihua12345/KubeAgent/internal/archive"
	"github.com/molihua12345/KubeAgent/internal/backend"
	"github.com/molihua12345/KubeAgent/internal/chat"
	"github.com/molihua12345/KubeAgent/internal/config"
	"github.com/molihua12345/KubeAgent/internal/export"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error.
	ExitConfigError = 3
	// ExitNetworkError indicates the backend could not be reached or the
	// connection failed mid-request.
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found.
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out.
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command failure with context.
type CommandError struct {
	Command string // e.g. "archive"
	Action  string // e.g. "show"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is returned for bad flags or arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewUsageError creates a UsageError from a format string.
func NewUsageError(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// replyError marks a one-shot exchange whose reply was an error message.
// The message itself has already been printed, so Execute stays quiet and
// only the exit code is derived from Cause.
type replyError struct {
	Cause error
}

func (e *replyError) Error() string {
	if e.Cause != nil {
		return "backend reported an error: " + e.Cause.Error()
	}
	return "backend reported an error"
}

func (e *replyError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// DISPLAY AND EXIT CODES
// =============================================================================

// DisplayError writes a formatted error line to w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}
	if errors.Is(err, export.ErrUnknownFormat) {
		return ExitUsageError
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) || errors.Is(err, archive.ErrNotFound) {
		return ExitNotFoundError
	}

	var verrs config.ValidateErrors
	var verr config.ValidationError
	if errors.As(err, &verrs) || errors.As(err, &verr) {
		return ExitConfigError
	}

	if backend.IsTimeout(err) {
		return ExitTimeoutError
	}
	if errors.Is(err, chat.ErrOffline) || backend.IsConnectivity(err) || backend.IsTransport(err) {
		return ExitNetworkError
	}

	return ExitGeneralError
}
