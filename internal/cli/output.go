package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/joacominatel/pgstore/internal/app"
	"github.com/joacominatel/pgstore/internal/database"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed
	ExitCommandError = 2 // bad flags, config or connection
)

// ExitError carries the exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *app.ErrConfig
	var connErr *app.ErrConnection
	if errors.As(err, &cfgErr) || errors.As(err, &connErr) {
		return ExitCommandError
	}
	return ExitFailure
}

// errorCode names an error for JSON output: the data-layer kind when there
// is one.
func errorCode(err error) string {
	var dbErr *database.Error
	if errors.As(err, &dbErr) {
		return string(dbErr.Kind)
	}
	var cfgErr *app.ErrConfig
	if errors.As(err, &cfgErr) {
		return "CONFIG"
	}
	var connErr *app.ErrConnection
	if errors.As(err, &connErr) {
		return "CONNECTION"
	}
	return "ERROR"
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError is the error part of a Response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data as JSON, or calls text in text mode.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error reports err in the configured format.
func (f *OutputFormatter) Error(err error) {
	if f.Format == "json" {
		_ = f.encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: errorCode(err), Message: err.Error()},
		})
		return
	}
	fmt.Fprintln(f.errWriter(), StyleError.Render("Error: "+err.Error()))
}

// VerboseLog writes a diagnostic line in verbose mode. It never goes to
// Writer so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintln(f.errWriter(), StyleMuted.Render(fmt.Sprintf(format, args...)))
}

func (f *OutputFormatter) encode(v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(data))
	return err
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
