// Package apperrors provides the structured error type used across
// riskguard, with error codes covering the failure kinds the system has to
// distinguish: configuration, SDK connectivity, enforcement, persistence,
// rule programming errors, and timer callbacks.
package apperrors

import (
	"fmt"
	"runtime"
	"time"
)

// Code classifies a RiskError for programmatic handling (exit codes,
// alerting, retry policy).
type Code string

const (
	// Configuration errors; the process exits with code 2.
	ErrConfigInvalid     Code = "CONFIG_INVALID"
	ErrConfigMissing     Code = "CONFIG_MISSING"
	ErrCredentialMissing Code = "CREDENTIAL_MISSING"

	// SDK connection errors.
	ErrSDKDisconnected Code = "SDK_DISCONNECTED"
	ErrSDKAuthFailed   Code = "SDK_AUTH_FAILED"

	// Enforcement failures.
	ErrEnforcementFailed Code = "ENFORCEMENT_FAILED"

	// Persistence failures.
	ErrPersistenceRead  Code = "PERSISTENCE_READ"
	ErrPersistenceWrite Code = "PERSISTENCE_WRITE"

	// Programmer errors in a rule.
	ErrRulePanic Code = "RULE_PANIC"

	// Timer callback failures.
	ErrTimerCallback Code = "TIMER_CALLBACK"
)

// RiskError is a structured, wrappable error carrying a Code, an optional
// cause, and call-site location for diagnostics.
type RiskError struct {
	Code    Code
	Message string
	Cause   error
	File    string
	Line    int
	At      time.Time
}

func (e *RiskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RiskError) Unwrap() error { return e.Cause }

// New creates a RiskError with no cause.
func New(code Code, message string) *RiskError {
	_, file, line, _ := runtime.Caller(1)
	return &RiskError{Code: code, Message: message, File: file, Line: line, At: time.Now()}
}

// Newf creates a RiskError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *RiskError {
	_, file, line, _ := runtime.Caller(1)
	return &RiskError{Code: code, Message: fmt.Sprintf(format, args...), File: file, Line: line, At: time.Now()}
}

// Wrap attaches a Code to an existing error.
func Wrap(err error, code Code, message string) *RiskError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &RiskError{Code: code, Message: message, Cause: err, File: file, Line: line, At: time.Now()}
}

// Is reports whether err is (or wraps) a RiskError with the given code.
func Is(err error, code Code) bool {
	for err != nil {
		if re, ok := err.(*RiskError); ok {
			if re.Code == code {
				return true
			}
			err = re.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
