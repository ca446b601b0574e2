// File: internal/replay/strategy.go
package replay

import (
	"fmt"
	"strings"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// ContinuePrompt is sent after the partial answer by ContinueStrategy.
const ContinuePrompt = "Continue exactly where your previous answer stopped. Do not repeat what was already written."

// RetryStrategy decides how an interrupted answer is re-requested.
type RetryStrategy interface {
	Name() string
	// Prepare returns the history to send and the content the retried answer starts from.
	// history ends with the queued user message; partial is what was streamed before the
	// interruption.
	Prepare(history []domain.Message, partial string) ([]domain.Message, string)
}

// ResendStrategy re-sends the original prompt and discards the partial answer.
type ResendStrategy struct{}

func (ResendStrategy) Name() string { return "resend" }

func (ResendStrategy) Prepare(history []domain.Message, _ string) ([]domain.Message, string) {
	return history, ""
}

// ContinueStrategy asks the model to pick up after the partial answer. The retried
// message is rebuilt as the partial followed by the continuation.
type ContinueStrategy struct {
	Prompt string
}

func (ContinueStrategy) Name() string { return "continue" }

func (s ContinueStrategy) Prepare(history []domain.Message, partial string) ([]domain.Message, string) {
	if strings.TrimSpace(partial) == "" {
		return history, ""
	}
	prompt := s.Prompt
	if prompt == "" {
		prompt = ContinuePrompt
	}
	out := make([]domain.Message, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		domain.Message{Role: domain.RoleAssistant, Content: partial},
		domain.NewUserMessage(prompt),
	)
	return out, partial
}

// ParseStrategy maps a configuration value to a strategy.
func ParseStrategy(name string) (RetryStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "resend":
		return ResendStrategy{}, nil
	case "continue":
		return ContinueStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown replay retry strategy %q", name)
	}
}
