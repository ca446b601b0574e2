// File: internal/domain/replay.go
package domain

import (
	"errors"
	"fmt"
)

var ErrEmptyReplayStack = errors.New("replay requires at least one user message")

// ReplayMessage is a queued user message awaiting re-submission.
type ReplayMessage struct {
	Content  string         `json:"content"`
	Model    *ModelRef      `json:"model,omitempty"`
	Settings *ModelSettings `json:"settings,omitempty"`
}

// Replay is the state a replay conversation carries on top of an ordinary one.
type Replay struct {
	ReplayAsIs        bool            `json:"replay_as_is"`
	UserMessagesStack []ReplayMessage `json:"replay_user_messages_stack"`
	ActiveIndex       int             `json:"active_replay_index"`
	IsError           bool            `json:"is_error,omitempty"`
}

// NewReplay builds a replay record from a queue of user messages.
func NewReplay(stack []ReplayMessage, asIs bool) (*Replay, error) {
	if len(stack) == 0 {
		return nil, ErrEmptyReplayStack
	}
	r := &Replay{
		ReplayAsIs:        asIs,
		UserMessagesStack: make([]ReplayMessage, len(stack)),
	}
	for i, m := range stack {
		r.UserMessagesStack[i] = m.clone()
	}
	return r, nil
}

// Validate checks the cursor invariant.
func (r *Replay) Validate() error {
	if len(r.UserMessagesStack) == 0 {
		return ErrEmptyReplayStack
	}
	if r.ActiveIndex < 0 || r.ActiveIndex > len(r.UserMessagesStack) {
		return fmt.Errorf("active replay index %d out of range [0, %d]", r.ActiveIndex, len(r.UserMessagesStack))
	}
	return nil
}

// IsComplete reports whether every queued message has been replayed.
func (r *Replay) IsComplete() bool {
	return r.ActiveIndex >= len(r.UserMessagesStack)
}

// Remaining returns the queue entries not yet replayed.
func (r *Replay) Remaining() []ReplayMessage {
	if r.IsComplete() {
		return nil
	}
	return r.UserMessagesStack[r.ActiveIndex:]
}

// Current returns the entry under the cursor.
func (r *Replay) Current() (ReplayMessage, bool) {
	if r.IsComplete() {
		return ReplayMessage{}, false
	}
	return r.UserMessagesStack[r.ActiveIndex], true
}

// Advance moves the cursor forward by one, never past the end.
func (r *Replay) Advance() {
	if !r.IsComplete() {
		r.ActiveIndex++
	}
}

// DisableAsIs turns replay-as-is off. There is no way back.
func (r *Replay) DisableAsIs() {
	r.ReplayAsIs = false
}

// Clone returns a deep copy.
func (r Replay) Clone() Replay {
	out := r
	out.UserMessagesStack = make([]ReplayMessage, len(r.UserMessagesStack))
	for i, m := range r.UserMessagesStack {
		out.UserMessagesStack[i] = m.clone()
	}
	return out
}

func (m ReplayMessage) clone() ReplayMessage {
	out := m
	if m.Model != nil {
		ref := *m.Model
		out.Model = &ref
	}
	if m.Settings != nil {
		s := m.Settings.Clone()
		out.Settings = &s
	}
	return out
}
