// File: internal/services/ai/errors.go
package ai

import "fmt"

type ErrorType string

const (
	ErrTypeConfig   ErrorType = "CONFIG"
	ErrTypeNetwork  ErrorType = "NETWORK"
	ErrTypeProvider ErrorType = "PROVIDER"
	ErrTypeCanceled ErrorType = "CANCELED"
	ErrTypeAddon    ErrorType = "ADDON"
)

type AIError struct {
	Type      ErrorType
	Code      int
	Message   string
	Model     string
	Operation string
	Cause     error
}

func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("AI %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("AI %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *AIError) Unwrap() error { return e.Cause }

func NewConfigError(msg string) *AIError {
	return &AIError{Type: ErrTypeConfig, Message: msg, Operation: "config"}
}

func NewProviderError(operation, model, msg string, code int, cause error) *AIError {
	return &AIError{Type: ErrTypeProvider, Operation: operation, Model: model, Message: msg, Code: code, Cause: cause}
}

func NewNetworkError(operation, model, msg string, cause error) *AIError {
	return &AIError{Type: ErrTypeNetwork, Operation: operation, Model: model, Message: msg, Cause: cause}
}

func NewCanceledError(operation, model string, cause error) *AIError {
	return &AIError{Type: ErrTypeCanceled, Operation: operation, Model: model, Message: "invocation canceled", Cause: cause}
}
