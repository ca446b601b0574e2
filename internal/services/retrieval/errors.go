// File: internal/services/retrieval/errors.go
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

type ErrorType string

const (
	ErrTypeConfig    ErrorType = "CONFIG"
	ErrTypeEmbedding ErrorType = "EMBEDDING"
	ErrTypeQuery     ErrorType = "QUERY"
	ErrTypeTimeout   ErrorType = "TIMEOUT"
)

type RetrievalError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *RetrievalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Retrieval %s error in %s: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Retrieval %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

func NewConfigError(msg string) *RetrievalError {
	return &RetrievalError{Type: ErrTypeConfig, Operation: "config", Message: msg}
}

func NewTimeoutError(msg string, cause error) *RetrievalError {
	return &RetrievalError{Type: ErrTypeTimeout, Operation: "retry", Message: msg, Cause: cause}
}

// IsRetryable reports whether err may go away on a later attempt. Configuration
// problems, an empty embedding, a cancelled caller and 4xx answers other than 408
// and 429 are final; anything unrecognised is retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var rerr *RetrievalError
	if errors.As(err, &rerr) {
		if rerr.Type == ErrTypeConfig {
			return false
		}
		if rerr.Type == ErrTypeEmbedding && rerr.Cause == nil {
			return false
		}
	}
	if status := httpStatus(err); status != 0 {
		return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
