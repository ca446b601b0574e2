// File: internal/repository/conversation/interface.go
package conversation

import (
	"context"
	"errors"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
)

// ListFilter narrows List results. A nil FolderID lists every conversation; a pointer to
// an empty string lists conversations outside any folder.
type ListFilter struct {
	FolderID *string
}

// Patch carries the fields an Update writes. Nil fields are left untouched.
type Patch struct {
	Name     *string
	FolderID **string
	Messages *[]domain.Message
	Settings *domain.ModelSettings
	Replay   **domain.Replay
}

// IsEmpty reports whether the patch writes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.FolderID == nil && p.Messages == nil && p.Settings == nil && p.Replay == nil
}

// Apply writes the patch onto c.
func (p Patch) Apply(c *domain.Conversation) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.FolderID != nil {
		c.FolderID = *p.FolderID
	}
	if p.Messages != nil {
		c.Messages = domain.CloneMessages(*p.Messages)
	}
	if p.Settings != nil {
		c.Settings = p.Settings.Clone()
	}
	if p.Replay != nil {
		if *p.Replay == nil {
			c.Replay = nil
		} else {
			r := (*p.Replay).Clone()
			c.Replay = &r
		}
	}
}

// ProgressPatch builds the patch written after every replay or streaming transition.
func ProgressPatch(c *domain.Conversation) Patch {
	msgs := domain.CloneMessages(c.Messages)
	p := Patch{Messages: &msgs}
	if c.Replay != nil {
		r := c.Replay.Clone()
		rp := &r
		p.Replay = &rp
	}
	return p
}

// ConversationStore persists conversations. Implementations must not assume callers
// wait synchronously on anything but the returned error.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, filter ListFilter) ([]domain.ConversationSummary, error)
	Create(ctx context.Context, c *domain.Conversation) error
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
}
