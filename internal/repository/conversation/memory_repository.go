// File: internal/repository/conversation/memory_repository.go
package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// MemoryRepository keeps conversations in process memory. It backs STORE_BACKEND=memory
// and is handy in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Conversation
	now   func() time.Time
}

// NewMemoryRepository returns an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*domain.Conversation),
		now:   time.Now,
	}
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (m *MemoryRepository) List(_ context.Context, filter ListFilter) ([]domain.ConversationSummary, error) {
	m.mu.RLock()
	out := make([]domain.ConversationSummary, 0, len(m.items))
	for _, c := range m.items {
		if filter.FolderID != nil {
			want := *filter.FolderID
			if want == "" && c.FolderID != nil {
				continue
			}
			if want != "" && (c.FolderID == nil || *c.FolderID != want) {
				continue
			}
		}
		out = append(out, c.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) Create(_ context.Context, c *domain.Conversation) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[c.ID]; exists {
		return ErrConversationExists
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.items[c.ID] = c.Clone()
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, id string, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return ErrConversationNotFound
	}
	next := c.Clone()
	patch.Apply(next)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	next.UpdatedAt = m.now()
	m.items[id] = next
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrConversationNotFound
	}
	delete(m.items, id)
	return nil
}
