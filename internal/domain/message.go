// File: internal/domain/message.go
package domain

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Rating is the user's feedback on an assistant message.
type Rating string

const (
	RatingNone    Rating = ""
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// Valid reports whether r is a known rating value.
func (r Rating) Valid() bool {
	switch r {
	case RatingNone, RatingLike, RatingDislike:
		return true
	}
	return false
}

// ModelRef points at the model, assistant or application that produced a message.
type ModelRef struct {
	ID string `json:"id"`
}

// MessageError is attached to an assistant message whose generation failed.
type MessageError struct {
	Message string `json:"message"`
}

// Message is a single entry of a conversation.
type Message struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Rating   Rating         `json:"rating,omitempty"`
	Error    *MessageError  `json:"error,omitempty"`
	Model    *ModelRef      `json:"model,omitempty"`
	Settings *ModelSettings `json:"settings,omitempty"`

	// Partial is set when streaming ended before completion (stop or failure).
	// A retry replaces the content of a partial message instead of appending to it.
	Partial bool `json:"partial,omitempty"`
}

// HasError reports whether the message carries an error.
func (m Message) HasError() bool {
	return m.Error != nil
}

// Fail records a failed invocation. An answer that produced nothing shows the error text
// in its place.
func (m *Message) Fail(text string) {
	m.Error = &MessageError{Message: text}
	m.Partial = true
	if m.Content == "" {
		m.Content = text
	}
}

// StreamedContent returns what the model produced, leaving out error text shown in place
// of an empty answer.
func (m Message) StreamedContent() string {
	if m.Error != nil && m.Content == m.Error.Message {
		return ""
	}
	return m.Content
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Error != nil {
		e := *m.Error
		out.Error = &e
	}
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

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantPlaceholder creates an empty assistant message that content is streamed into.
func NewAssistantPlaceholder(model string) Message {
	msg := Message{Role: RoleAssistant}
	if model != "" {
		msg.Model = &ModelRef{ID: model}
	}
	return msg
}

// CloneMessages deep-copies a message slice. A nil input yields an empty slice.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// WithoutSystem returns the messages that take part in row alignment.
func WithoutSystem(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
