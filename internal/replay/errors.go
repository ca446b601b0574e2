// File: internal/replay/errors.go
package replay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyStreaming  = errors.New("replay: an invocation is already in flight")
	ErrReplayComplete    = errors.New("replay: every queued message has been replayed")
	ErrInvalidTransition = errors.New("replay: operation not allowed in current state")
	ErrNotReplay         = errors.New("replay: conversation is not a replay")
)

// DisallowedModelError blocks a start or retry until the user picks allowed settings.
type DisallowedModelError struct {
	Models []string
	Addons []string
}

func (e *DisallowedModelError) Error() string {
	var parts []string
	if len(e.Models) > 0 {
		parts = append(parts, "models not allowed: "+strings.Join(e.Models, ", "))
	}
	if len(e.Addons) > 0 {
		parts = append(parts, "addons not allowed: "+strings.Join(e.Addons, ", "))
	}
	return "replay: " + strings.Join(parts, "; ")
}

// TransportError is a failed model invocation.
type TransportError struct {
	ConversationID string
	Model          string
	Cause          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("replay: invocation of %s failed for conversation %s: %v", e.Model, e.ConversationID, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// PersistenceError is a failed write of replay progress. In-memory progress is kept.
type PersistenceError struct {
	ConversationID string
	Transition     State
	Cause          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("replay: persisting %s for conversation %s: %v", e.Transition, e.ConversationID, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
