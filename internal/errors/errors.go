// Package errors provides structured error types for the advisor.
// Every error carries a category, code, message and severity so that the
// pipeline can decide whether to degrade into a report warning, block a single
// recommendation, or abort the run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryWorkload   ErrorCategory = "WORKLOAD"
	ErrCategoryStatistics ErrorCategory = "STATISTICS"
	ErrCategoryPolicy     ErrorCategory = "POLICY"
	ErrCategoryRun        ErrorCategory = "RUN"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Severity states how the pipeline reacts to an error.
type Severity int

const (
	// SeverityRecoverable errors degrade into report warnings.
	SeverityRecoverable Severity = iota
	// SeverityMustFix errors block one recommendation but not the run.
	SeverityMustFix
	// SeverityFatal errors abort the run without a report.
	SeverityFatal
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	case SeverityMustFix:
		return "must-fix"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Error codes for each category.
const (
	// Workload codes
	CodeMalformedQuery = "MALFORMED_QUERY"
	CodeSourceFailed   = "SOURCE_FAILED"

	// Statistics codes
	CodeMissingStatistics = "MISSING_STATISTICS"
	CodeProviderFailed    = "PROVIDER_FAILED"

	// Policy codes
	CodePolicyConflict   = "POLICY_CONFLICT"
	CodePolicyUnparsable = "POLICY_UNPARSABLE"

	// Run codes
	CodeTimedOut  = "TIMED_OUT"
	CodeCancelled = "CANCELLED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// AdvisorError is the structured error type used throughout the advisor.
type AdvisorError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
	Severity Severity
}

// Error returns a formatted error string.
func (e *AdvisorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *AdvisorError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *AdvisorError) Is(target error) bool {
	var t *AdvisorError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new AdvisorError.
func New(category ErrorCategory, code, message string) *AdvisorError {
	return &AdvisorError{
		Category: category,
		Code:     code,
		Message:  message,
		Severity: severityOf(category, code),
	}
}

// Wrap creates a new AdvisorError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *AdvisorError {
	return &AdvisorError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Severity: severityOf(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *AdvisorError) WithDetails(details map[string]interface{}) *AdvisorError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRecoverable reports whether an error (or its chain) only degrades the report.
// Errors that are not AdvisorErrors are treated as fatal.
func IsRecoverable(err error) bool {
	var ae *AdvisorError
	if errors.As(err, &ae) {
		return ae.Severity == SeverityRecoverable
	}
	return false
}

// GetSeverity extracts the severity from an error chain.
// Returns SeverityFatal if the error is not an AdvisorError.
func GetSeverity(err error) Severity {
	var ae *AdvisorError
	if errors.As(err, &ae) {
		return ae.Severity
	}
	return SeverityFatal
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an AdvisorError.
func GetCategory(err error) ErrorCategory {
	var ae *AdvisorError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an AdvisorError.
func GetCode(err error) string {
	var ae *AdvisorError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func severityOf(category ErrorCategory, code string) Severity {
	switch {
	case category == ErrCategoryWorkload && code == CodeMalformedQuery:
		return SeverityRecoverable
	case category == ErrCategoryStatistics && code == CodeMissingStatistics:
		return SeverityRecoverable
	case category == ErrCategoryPolicy && code == CodePolicyUnparsable:
		return SeverityRecoverable
	case category == ErrCategoryPolicy && code == CodePolicyConflict:
		return SeverityMustFix
	default:
		return SeverityFatal
	}
}

// Sentinels for errors.Is matching on category and code.
var (
	ErrMalformedQuery    = New(ErrCategoryWorkload, CodeMalformedQuery, "malformed query")
	ErrMissingStatistics = New(ErrCategoryStatistics, CodeMissingStatistics, "missing statistics")
	ErrPolicyConflict    = New(ErrCategoryPolicy, CodePolicyConflict, "policy conflict")
	ErrTimedOut          = New(ErrCategoryRun, CodeTimedOut, "timed out")
)

// Convenience constructors for common errors.

func NewMalformedQueryError(query string, cause error) *AdvisorError {
	return Wrap(ErrCategoryWorkload, CodeMalformedQuery, "malformed query", cause).
		WithDetails(map[string]interface{}{"query": query})
}

func NewMissingStatisticsError(table, column string) *AdvisorError {
	return New(ErrCategoryStatistics, CodeMissingStatistics,
		fmt.Sprintf("no statistics for %s.%s", table, column)).
		WithDetails(map[string]interface{}{"table": table, "column": column})
}

func NewPolicyConflictError(policy, column, message string) *AdvisorError {
	return New(ErrCategoryPolicy, CodePolicyConflict, message).
		WithDetails(map[string]interface{}{"policy": policy, "column": column})
}

func NewTimedOutError(stage string, cause error) *AdvisorError {
	return Wrap(ErrCategoryRun, CodeTimedOut, stage+" timed out", cause)
}

func NewStorageError(code, message string, cause error) *AdvisorError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewConfigError(message string) *AdvisorError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *AdvisorError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
