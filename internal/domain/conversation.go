// File: internal/domain/conversation.go
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ReplayNamePrefix is prepended to the name of a conversation duplicated for replay.
const ReplayNamePrefix = "[Replay] "

// ConversationKind discriminates ordinary conversations from replays.
type ConversationKind string

const (
	KindOrdinary ConversationKind = "ordinary"
	KindReplay   ConversationKind = "replay"
)

// Conversation is a chat thread with its model configuration.
type Conversation struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	FolderID  *string       `json:"folder_id,omitempty"`
	Messages  []Message     `json:"messages"`
	Settings  ModelSettings `json:"settings"`
	Replay    *Replay       `json:"replay,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	FolderID     *string   `json:"folder_id,omitempty"`
	ModelID      string    `json:"model_id"`
	MessageCount int       `json:"message_count"`
	IsReplay     bool      `json:"is_replay"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Kind reports whether the conversation is a replay.
func (c *Conversation) Kind() ConversationKind {
	if c.Replay != nil {
		return KindReplay
	}
	return KindOrdinary
}

// IsReplay is shorthand for Kind() == KindReplay.
func (c *Conversation) IsReplay() bool {
	return c.Replay != nil
}

// NonSystemCount returns the number of messages that take part in row alignment.
func (c *Conversation) NonSystemCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role != RoleSystem {
			n++
		}
	}
	return n
}

// LastMessage returns the final message, or nil when there is none.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Summary builds the listing view.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Name:         c.Name,
		FolderID:     c.FolderID,
		ModelID:      c.Settings.ModelID,
		MessageCount: c.NonSystemCount(),
		IsReplay:     c.IsReplay(),
		UpdatedAt:    c.UpdatedAt,
	}
}

// Validate checks structural invariants.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation id is required")
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	for i, m := range c.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if !m.Rating.Valid() {
			return fmt.Errorf("message %d: unknown rating %q", i, m.Rating)
		}
	}
	if c.Replay != nil {
		if err := c.Replay.Validate(); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.FolderID != nil {
		f := *c.FolderID
		out.FolderID = &f
	}
	out.Messages = CloneMessages(c.Messages)
	out.Settings = c.Settings.Clone()
	if c.Replay != nil {
		r := c.Replay.Clone()
		out.Replay = &r
	}
	return &out
}

// DuplicateForReplay creates a replay conversation out of src. The user messages of src
// become the replay stack, each remembering the model that answered it.
func DuplicateForReplay(src *Conversation, newID string, now time.Time) (*Conversation, error) {
	stack := make([]ReplayMessage, 0, len(src.Messages))
	for i, m := range src.Messages {
		if m.Role != RoleUser {
			continue
		}
		entry := ReplayMessage{Content: m.Content}
		if ref := answeringModel(src, i); ref != "" {
			entry.Model = &ModelRef{ID: ref}
		}
		if m.Settings != nil {
			s := m.Settings.Clone()
			entry.Settings = &s
		}
		stack = append(stack, entry)
	}

	replay, err := NewReplay(stack, true)
	if err != nil {
		return nil, err
	}

	out := src.Clone()
	out.ID = newID
	out.Name = ReplayNamePrefix + src.Name
	out.Messages = []Message{}
	out.Replay = replay
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// answeringModel returns the model recorded on the user message at i, or on the assistant
// message that answered it.
func answeringModel(c *Conversation, i int) string {
	if m := c.Messages[i].Model; m != nil && m.ID != "" {
		return m.ID
	}
	if i+1 < len(c.Messages) {
		next := c.Messages[i+1]
		if next.Role == RoleAssistant && next.Model != nil {
			return next.Model.ID
		}
	}
	return ""
}

// Normalize fills defaults for a conversation arriving from import or a remote backend.
func Normalize(c *Conversation) {
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if c.Settings.Temperature < 0 || c.Settings.Temperature > 1 {
		c.Settings.Temperature = DefaultTemperature
	}
	if c.Name == "" {
		c.Name = "New conversation"
	}
	if c.Replay != nil && c.Replay.ActiveIndex > len(c.Replay.UserMessagesStack) {
		c.Replay.ActiveIndex = len(c.Replay.UserMessagesStack)
	}
}
