// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all CLI commands in rigtrail.
//
// STANDARDIZED PATTERN:
//   - ALWAYS return errors (never just print and return nil)
//   - Let the caller decide how to display errors
//   - Use structured error types for better error handling
//   - Map error categories to distinct exit codes for scripting

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/rigtrail/internal/config"
	"github.com/jeranaias/rigtrail/internal/keys"
	"github.com/jeranaias/rigtrail/internal/record"
	"github.com/jeranaias/rigtrail/internal/sink"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitSetupError indicates invalid usage, missing key material, or a
	// configuration problem: the host needs operator attention before any
	// record can be produced
	ExitSetupError = 2
	// ExitAuthError indicates the sink rejected our credentials
	ExitAuthError = 3
	// ExitIntegrityError indicates a chain conflict or a record that no
	// longer verifies
	ExitIntegrityError = 4
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "upload", "verify")
	Action  string // Action being performed (e.g., "deliver", "purge")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
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

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Example: example,
	}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(
		argName,
		"",
		"required argument missing",
		usage,
	)
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError displays an error in a consistent format.
//
// In JSON mode, outputs a structured JSON error.
// In normal mode, displays a formatted error message on stderr.
func DisplayError(err error, jsonMode bool) {
	if err == nil {
		return
	}

	if jsonMode {
		DisplayErrorJSON(err)
		return
	}

	fmt.Fprintf(os.Stderr, "[ERROR] %s\n", err.Error())
}

// DisplayErrorJSON outputs an error as JSON.
func DisplayErrorJSON(err error) {
	output := map[string]interface{}{
		"error":   err.Error(),
		"success": false,
	}

	switch e := err.(type) {
	case *CommandError:
		output["error_type"] = "command_error"
		output["command"] = e.Command
		output["action"] = e.Action
		output["reason"] = e.Reason
		if e.Err != nil {
			output["underlying_error"] = e.Err.Error()
		}

	case *ValidationError:
		output["error_type"] = "validation_error"
		output["field"] = e.Field
		output["value"] = e.Value
		output["reason"] = e.Reason
		if e.Example != "" {
			output["example"] = e.Example
		}

	default:
		output["error_type"] = errorType(err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(output)
}

// errorType names the error category for JSON consumers, mirroring the exit
// code mapping.
func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitSetupError:
		return "setup_error"
	case ExitAuthError:
		return "auth_error"
	case ExitIntegrityError:
		return "integrity_error"
	default:
		if errors.Is(err, sink.ErrThrottled) {
			return "throttling_error"
		}
		if errors.Is(err, sink.ErrTransport) {
			return "transport_error"
		}
		return "generic_error"
	}
}

// HandleErrorAndExit displays an error and exits with the matching code.
// Use this for fatal errors in main command handlers.
func HandleErrorAndExit(err error, jsonMode bool) {
	if err == nil {
		return
	}

	DisplayError(err, jsonMode)
	os.Exit(GetExitCode(err))
}

// GetExitCode determines the appropriate exit code for an error.
//
// Setup problems (bad usage, missing keys, invalid config) exit 2 so
// provisioning scripts can tell them from transient failures; credential
// rejection exits 3; integrity violations exit 4. Everything else, including
// exhausted delivery retries, is a general error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitSetupError
	}
	var configErrs config.ValidateErrors
	if errors.As(err, &configErrs) {
		return ExitSetupError
	}
	if errors.Is(err, keys.ErrNoKeyPair) ||
		errors.Is(err, keys.ErrNoContentKey) ||
		errors.Is(err, keys.ErrKeyExists) ||
		errors.Is(err, keys.ErrKeyFilePermissions) {
		return ExitSetupError
	}

	if errors.Is(err, sink.ErrAuth) {
		return ExitAuthError
	}

	if errors.Is(err, record.ErrChainConflict) || errors.Is(err, record.ErrChainBroken) {
		return ExitIntegrityError
	}

	return ExitGeneralError
}

// WrapError wraps an error with additional context as it bubbles up.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
