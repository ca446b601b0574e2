// File: internal/services/errors.go
package services

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeBusy       ErrorType = "BUSY"
	ErrTypeDisallowed ErrorType = "DISALLOWED"
	ErrTypeStreaming  ErrorType = "STREAMING"
	ErrTypeStore      ErrorType = "STORE"
	ErrTypeConflict   ErrorType = "CONFLICT"
)

// ServiceError is returned by every service operation that fails.
type ServiceError struct {
	Type           ErrorType
	Operation      string
	Message        string
	ConversationID string
	Cause          error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Service %s error in %s: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Service %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// ErrorTypeOf returns the type of a ServiceError anywhere in err's chain.
func ErrorTypeOf(err error) (ErrorType, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type, true
	}
	return "", false
}

func NewValidationError(operation, msg string) *ServiceError {
	return &ServiceError{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

func NewNotFoundError(operation, conversationID string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeNotFound, Operation: operation, Message: "conversation not found", ConversationID: conversationID, Cause: cause}
}

func NewBusyError(operation, conversationID string) *ServiceError {
	return &ServiceError{Type: ErrTypeBusy, Operation: operation, Message: "conversation is streaming", ConversationID: conversationID}
}

func NewDisallowedError(operation, conversationID string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeDisallowed, Operation: operation, Message: "model or addon not allowed", ConversationID: conversationID, Cause: cause}
}

func NewStreamingError(operation, conversationID string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeStreaming, Operation: operation, Message: "model invocation failed", ConversationID: conversationID, Cause: cause}
}

func NewStoreError(operation, conversationID string, cause error) *ServiceError {
	return &ServiceError{Type: ErrTypeStore, Operation: operation, Message: "conversation store failed", ConversationID: conversationID, Cause: cause}
}

func NewConflictError(operation, conversationID, msg string) *ServiceError {
	return &ServiceError{Type: ErrTypeConflict, Operation: operation, Message: msg, ConversationID: conversationID}
}
