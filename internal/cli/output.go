package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failure, storage failure
	ExitCommandError = 2 // Command error (bad flags, unknown graph, missing file)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
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
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
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

// Response is the JSON envelope of every command's output.
type Response struct {
	Status string `json:"status"`          // "ok" or "error"
	Data   any    `json:"data,omitempty"`  // success payload
	Error  string `json:"error,omitempty"` // failure summary
}

// Printer writes command results in the selected format.
type Printer struct {
	Format string
	W      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) Printer {
	return Printer{Format: opts.Format, W: w}
}

// Print writes data as a JSON envelope, or calls text for text output.
func (p Printer) Print(data any, text func(w io.Writer)) error {
	if p.Format == "json" {
		return p.encode(Response{Status: "ok", Data: data})
	}
	text(p.W)
	return nil
}

// PrintError writes data with an error status in JSON mode. Text output is
// left to text.
func (p Printer) PrintError(data any, msg string, text func(w io.Writer)) error {
	if p.Format == "json" {
		return p.encode(Response{Status: "error", Data: data, Error: msg})
	}
	text(p.W)
	return nil
}

func (p Printer) encode(r Response) error {
	enc := json.NewEncoder(p.W)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
