// File: internal/services/ai/interface.go
package ai

import (
	"context"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// Request is one model invocation.
type Request struct {
	Model          string
	AssistantModel string
	SystemPrompt   string
	Temperature    float64
	Addons         []string
	History        []domain.Message
}

// Transport streams a model response. onDelta observes partial output before completion;
// returning an error from it aborts the stream. Cancelling ctx stops the invocation.
type Transport interface {
	Stream(ctx context.Context, req Request, onDelta func(string) error) error
}

// Augmenter contributes extra system context when its addon is selected.
type Augmenter interface {
	Augment(ctx context.Context, req Request) (string, error)
}

// LastUserContent returns the content of the final user message in the history.
func (r Request) LastUserContent() string {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Role == domain.RoleUser {
			return r.History[i].Content
		}
	}
	return ""
}
