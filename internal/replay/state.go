// File: internal/replay/state.go
package replay

import "github.com/iyunix/go-chatreplay/internal/domain"

// State is the position of a replay conversation in its lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingStart State = "awaiting_start"
	StateStreaming     State = "streaming"
	StateErrored       State = "errored"
	StateStopped       State = "stopped"
	StateComplete      State = "complete"
)

// CanStart reports whether Start is accepted in this state.
func (s State) CanStart() bool {
	return s == StateIdle || s == StateAwaitingStart
}

// CanRetry reports whether Retry is accepted in this state.
func (s State) CanRetry() bool {
	return s == StateErrored || s == StateStopped
}

// stateOf derives the resting state of a conversation loaded from storage.
// Streaming is never persisted: an answer still marked partial resumes as Stopped.
func stateOf(c *domain.Conversation) State {
	r := c.Replay
	switch {
	case r.IsComplete():
		return StateComplete
	case r.IsError:
		return StateErrored
	}
	if last := c.LastMessage(); last != nil && last.Role == domain.RoleAssistant && last.Partial {
		return StateStopped
	}
	if r.ActiveIndex == 0 && len(c.Messages) == 0 {
		return StateIdle
	}
	return StateAwaitingStart
}
