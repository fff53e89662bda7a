package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the categories of pipeline failures.
type ErrorType string

const (
	// ErrorTypeConfig is a setup problem: bad filter/extension value, bad root.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeMissingTemplate is a named render without a template field.
	ErrorTypeMissingTemplate ErrorType = "missing_template"
	// ErrorTypeDataParse is a malformed data source.
	ErrorTypeDataParse ErrorType = "data_parse"
	// ErrorTypeRender is a template engine diagnostic.
	ErrorTypeRender ErrorType = "render"
	// ErrorTypeRenameIO is a missing or conflicting file during build renaming.
	ErrorTypeRenameIO ErrorType = "rename_io"
)

// Common error codes.
const (
	ErrCodeInvalidPluginValue = "ERR_INVALID_PLUGIN_VALUE"
	ErrCodeUnknownBuiltin     = "ERR_UNKNOWN_BUILTIN"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeAlreadyConfigured  = "ERR_ALREADY_CONFIGURED"
	ErrCodeNotConfigured      = "ERR_NOT_CONFIGURED"
	ErrCodeMissingTemplate    = "ERR_MISSING_TEMPLATE"
	ErrCodeDataParse          = "ERR_DATA_PARSE"
	ErrCodeDataRead           = "ERR_DATA_READ"
	ErrCodeTemplateNotFound   = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeTemplateOutside    = "ERR_TEMPLATE_OUTSIDE_ROOT"
	ErrCodeRenderFailed       = "ERR_RENDER_FAILED"
	ErrCodeRenameMissing      = "ERR_RENAME_MISSING"
	ErrCodeRenameCollision    = "ERR_RENAME_COLLISION"
	ErrCodeRenameFailed       = "ERR_RENAME_FAILED"
)

// PipelineError is a structured error type with context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Sentinels for errors.Is checks against a whole category.
var (
	ErrConfiguration        = &PipelineError{Type: ErrorTypeConfig}
	ErrMissingTemplateField = &PipelineError{Type: ErrorTypeMissingTemplate}
	ErrDataFileParse        = &PipelineError{Type: ErrorTypeDataParse}
	ErrRender               = &PipelineError{Type: ErrorTypeRender}
	ErrRenameIO             = &PipelineError{Type: ErrorTypeRenameIO}
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on type, and on code when the target carries one.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if !errors.As(target, &t) {
		return false
	}
	if e.Type != t.Type {
		return false
	}

	return t.Code == "" || e.Code == t.Code
}

// WithLocation adds file location information.
func (e *PipelineError) WithLocation(filePath string, line, column int) *PipelineError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithComponent adds component context.
func (e *PipelineError) WithComponent(component string) *PipelineError {
	e.Component = component

	return e
}

// NewConfigError creates a configuration error. Always fatal.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInvalidPluginValue reports a filter or extension that cannot be invoked.
func NewInvalidPluginValue(kind, name string, value interface{}) *PipelineError {
	return NewConfigError(
		ErrCodeInvalidPluginValue,
		fmt.Sprintf("%s %q is not invokable (got %T)", kind, name, value),
	)
}

// NewMissingTemplateField creates the error for a named render without template.
func NewMissingTemplateField(filePath string) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeMissingTemplate,
		Code:        ErrCodeMissingTemplate,
		Message:     `missing "template" field`,
		FilePath:    filePath,
		Recoverable: false,
	}
}

// NewDataFileParseError creates a data source error.
func NewDataFileParseError(filePath string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeDataParse,
		Code:        ErrCodeDataParse,
		Message:     "invalid data file",
		Cause:       cause,
		FilePath:    filePath,
		Recoverable: false,
	}
}

// NewRenderError creates a recoverable template engine error.
func NewRenderError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeRender,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewRenameIOError creates a fatal build renaming error.
func NewRenameIOError(code, filePath, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeRenameIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		FilePath:    filePath,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsRenderError checks if an error is a template engine diagnostic.
func IsRenderError(err error) bool {
	return errors.Is(err, ErrRender)
}

// TypeOf returns the category of err, or "" for foreign errors.
func TypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}

	return ""
}
