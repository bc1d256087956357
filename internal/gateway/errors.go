package gateway

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes action failures.
type ErrorCode string

const (
	// ErrCodeValidation indicates a blank or out-of-range input. The write
	// collaborator was never called.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeUserCancelled indicates the user rejected an asynchronous action.
	ErrCodeUserCancelled ErrorCode = "USER_CANCELLED"

	// ErrCodeCollaborator indicates any other failure reported by a read or
	// write collaborator. Message carries the collaborator's text verbatim.
	ErrCodeCollaborator ErrorCode = "COLLABORATOR"
)

// ActionError is the error returned by every gateway action.
//
// Validation and cancellation are terminal at the action boundary and must be
// told apart from generic collaborator failures so callers can render
// "cancelled" differently from "failed".
type ActionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Action names the action that failed (e.g. "send_message").
	Action string

	// Message is a human-readable description.
	Message string

	// Err is the underlying collaborator error, if any.
	Err error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Action, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the collaborator error for error chain compatibility.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewValidationError creates an ActionError for a rejected input.
func NewValidationError(action, message string) *ActionError {
	return &ActionError{Code: ErrCodeValidation, Action: action, Message: message}
}

// NewCancelledError creates an ActionError for a user rejection.
func NewCancelledError(action string, err error) *ActionError {
	return &ActionError{Code: ErrCodeUserCancelled, Action: action, Message: "transaction cancelled", Err: err}
}

// NewCollaboratorError wraps a collaborator failure, keeping its message.
func NewCollaboratorError(action string, err error) *ActionError {
	return &ActionError{Code: ErrCodeCollaborator, Action: action, Message: err.Error(), Err: err}
}

// IsValidation returns true if err is a validation failure.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsUserCancelled returns true if the user rejected the action.
func IsUserCancelled(err error) bool {
	return hasCode(err, ErrCodeUserCancelled)
}

// IsCollaborator returns true if a collaborator reported the failure.
func IsCollaborator(err error) bool {
	return hasCode(err, ErrCodeCollaborator)
}

func hasCode(err error, code ErrorCode) bool {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
