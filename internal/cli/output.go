package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/growth/internal/config"
	"github.com/roach88/growth/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected award or engine failure
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, etc.)
)

// Error codes carried in the JSON error envelope.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeConfig          = "E002" // Config could not be loaded or is invalid
	ErrCodeUsage           = "E003" // Bad arguments
	ErrCodeCeiling         = "E101" // Daily ceiling exceeded
	ErrCodeAlreadyCredited = "E102" // Source already credited today
	ErrCodeNotReconciled   = "E103" // Grant before reconcile or for another user
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E101", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// Text output prints data with fmt, so result types implement fmt.Stringer.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		if _, err := fmt.Fprintf(f.Writer, "Details: %v\n", details); err != nil {
			return err
		}
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. Award rejections carry their limits as details.
// If the report cannot be written, that error is joined to err.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit, details := classify(err)
	if werr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); werr != nil {
		err = errors.Join(err, fmt.Errorf("write error report: %w", werr))
	}
	return WrapExitError(exit, message, err)
}

// classify maps an error to its envelope code, exit code and details.
func classify(err error) (string, int, interface{}) {
	var ceiling *engine.DailyCeilingExceededError
	var credited *engine.AlreadyCreditedTodayError
	var exitErr *ExitError

	switch {
	case errors.As(err, &ceiling):
		return ErrCodeCeiling, ExitFailure, map[string]interface{}{
			"day":       ceiling.Day.String(),
			"ceiling":   ceiling.Ceiling,
			"requested": ceiling.Requested,
			"remaining": ceiling.Remaining,
		}
	case errors.As(err, &credited):
		return ErrCodeAlreadyCredited, ExitFailure, map[string]interface{}{
			"day":    credited.Day.String(),
			"source": credited.SourceID,
		}
	case errors.Is(err, engine.ErrNotReconciled), errors.Is(err, engine.ErrSessionMismatch):
		return ErrCodeNotReconciled, ExitFailure, nil
	case errors.Is(err, engine.ErrInvalidAmount):
		return ErrCodeUsage, ExitCommandError, nil
	case config.IsValidationError(err):
		var ve *config.ValidationError
		errors.As(err, &ve)
		return ErrCodeConfig, ExitCommandError, ve.Problems
	case errors.As(err, &exitErr):
		return ErrCodeGeneric, exitErr.Code, nil
	default:
		return ErrCodeGeneric, ExitFailure, nil
	}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
