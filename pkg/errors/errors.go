// Package errors provides structured error handling for InvoiceFlow.
// It implements coded errors with context and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound  Code = "E101"
	CodeInvalidFormat Code = "E102"

	// Extraction errors (2xx)
	CodeExtractFailed Code = "E201"
	CodeSheetMissing  Code = "E202"

	// Output errors (3xx)
	CodeWriteFailed Code = "E301"

	// System errors (4xx)
	CodeContextCanceled  Code = "E401"
	CodeStoreUnavailable Code = "E402"

	// Unknown
	CodeUnknown Code = "E999"
)

// FlowError is the base error type for all InvoiceFlow errors.
type FlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *FlowError) Is(target error) bool {
	if t, ok := target.(*FlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *FlowError) WithContext(key string, value interface{}) *FlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new FlowError.
func New(code Code, message string) *FlowError {
	return &FlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *FlowError {
	if err == nil {
		return nil
	}

	return &FlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// --- Convenience constructors ---

// ExtractionError reports a failed invoice extraction for one artifact.
func ExtractionError(file string, err error) *FlowError {
	return Wrap(err, CodeExtractFailed, "invoice extraction failed").
		WithContext("file", file)
}

// WriteError reports a failed report append for one pair.
func WriteError(path string, err error) *FlowError {
	return Wrap(err, CodeWriteFailed, "report append failed").
		WithContext("path", path)
}

// FileNotFound creates a file not found error.
func FileNotFound(path string) *FlowError {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeUnknown
}
