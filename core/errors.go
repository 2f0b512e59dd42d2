package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks caller misuse detected before any data access.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks payloads or shaped rows that do not fit their schema.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned by operations that require at least one matching row.
	ErrNotFound = errors.New("no matching record found")
	// ErrMultipleResults is returned when more rows match than the operation allows.
	ErrMultipleResults = errors.New("multiple records found")
)

// ConfigError names the offending parameter so the caller can fix the input.
type ConfigError struct {
	Param   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Param == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(param string, format string, args ...any) error {
	return &ConfigError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// Issue represents a single validation problem.
type Issue struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Path        string `json:"path,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
}

// ValidationError collects the issues found while validating a document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		if issue.Path != "" {
			msgs[i] = fmt.Sprintf("%s: %s", issue.Path, issue.Message)
		} else {
			msgs[i] = issue.Message
		}
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// MultipleResultsError reports how many rows matched an operation allowing one.
type MultipleResultsError struct {
	Operation string
	Count     int64
}

func (e *MultipleResultsError) Error() string {
	return fmt.Sprintf("%s: expected at most one record, found %d; set AllowMultiple to proceed", e.Operation, e.Count)
}

func (e *MultipleResultsError) Unwrap() error {
	return ErrMultipleResults
}
