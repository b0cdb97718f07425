// Package errors provides the structured error type shared by every stage of
// the site pipeline. Errors carry a category so callers can decide whether a
// failure is fatal (configuration), belongs to a single operation (io,
// network) or to a task (build, process).
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeProcess  ErrorType = "process"
	ErrorTypeInternal ErrorType = "internal"
)

// SiteError is a structured error type with context.
type SiteError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	Task    string
	Path    string
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is matches another SiteError with the same type and code.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SiteError) WithContext(key string, value interface{}) *SiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error refers to.
func (e *SiteError) WithPath(path string) *SiteError {
	e.Path = path

	return e
}

// WithTask records the pipeline task the error belongs to.
func (e *SiteError) WithTask(task string) *SiteError {
	e.Task = task

	return e
}

// NewConfigError creates a configuration error. Configuration errors are
// fatal and never retried.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeNetwork,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error. The message should be the engine's
// own diagnostic text.
func NewBuildError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewProcessError creates a subprocess failure error.
func NewProcessError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeProcess,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func isType(err error, typ ErrorType) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type == typ
	}

	return false
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	return isType(err, ErrorTypeConfig)
}

// IsIOError checks if an error is I/O related.
func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

// IsNetworkError checks if an error is network related.
func IsNetworkError(err error) bool {
	return isType(err, ErrorTypeNetwork)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return isType(err, ErrorTypeBuild)
}

// IsProcessError checks if an error came from a subprocess.
func IsProcessError(err error) bool {
	return isType(err, ErrorTypeProcess)
}

// Common error codes.
const (
	ErrCodeBadOperator     = "ERR_BAD_OPERATOR"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeBadURL          = "ERR_BAD_URL"
	ErrCodeDownloadStatus  = "ERR_DOWNLOAD_STATUS"
	ErrCodeDownloadAborted = "ERR_DOWNLOAD_ABORTED"
	ErrCodeMkdir           = "ERR_MKDIR"
	ErrCodeWriteFile       = "ERR_WRITE_FILE"
	ErrCodeReadFile        = "ERR_READ_FILE"
	ErrCodeStyleCompile    = "ERR_STYLE_COMPILE"
	ErrCodeStylePostCSS    = "ERR_STYLE_POSTPROCESS"
	ErrCodeScriptBundle    = "ERR_SCRIPT_BUNDLE"
	ErrCodeProcessExit     = "ERR_PROCESS_EXIT"
	ErrCodeProcessStart    = "ERR_PROCESS_START"
	ErrCodeServer          = "ERR_SERVER"
	ErrCodeWatch           = "ERR_WATCH"
	ErrCodeFilter          = "ERR_FILTER"
)

// ErrBadOperator creates the configuration error raised for an unknown
// filter operator.
func ErrBadOperator(operator interface{}) *SiteError {
	return NewConfigError(
		ErrCodeBadOperator,
		fmt.Sprintf("bad operator in 'where' filter: %v", operator),
	).WithContext("operator", operator)
}

// ErrConfigInvalid creates a configuration validation error for a field.
func ErrConfigInvalid(field string, format string, args ...interface{}) *SiteError {
	return NewConfigError(
		ErrCodeConfigInvalid,
		field+": "+fmt.Sprintf(format, args...),
	).WithContext("field", field)
}
