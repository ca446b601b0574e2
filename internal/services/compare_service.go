// File: internal/services/compare_service.go
package services

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/iyunix/go-chatreplay/internal/compare"
	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
)

// SideResult is the outcome of a synchronized action on one side of a comparison.
type SideResult struct {
	ConversationID string               `json:"conversation_id"`
	Conversation   *domain.Conversation `json:"conversation,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// CompareService owns the selection of displayed conversations and the actions that
// apply to both sides of a comparison.
type CompareService struct {
	chats     *ChatService
	selection *compare.SelectedSet
	logger    Logger

	mu         sync.Mutex
	lastViewed []string
}

func NewCompareService(chats *ChatService, logger Logger) (*CompareService, error) {
	if chats == nil {
		return nil, NewValidationError("constructor", "chat service is required")
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	s := &CompareService{
		chats:     chats,
		selection: compare.NewSelectedSet(),
		logger:    logger,
	}
	chats.AddListener(s)
	return s, nil
}

// CreateComparison creates two empty conversations with the given settings and selects them.
func (s *CompareService) CreateComparison(ctx context.Context, left, right domain.ModelSettings) ([]*domain.Conversation, error) {
	const op = "create_comparison"
	out := make([]*domain.Conversation, 0, compare.MaxSelected)
	for _, settings := range []domain.ModelSettings{left, right} {
		settings := settings
		c, err := s.chats.CreateConversation(ctx, CreateRequest{
			Name:     "Compare: " + settings.ModelID,
			Settings: &settings,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := s.selection.Set(out[0].ID, out[1].ID); err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	s.logger.Info("comparison created", "left", out[0].ID, "right", out[1].ID)
	return out, nil
}

// Select replaces the displayed conversations. Every id must exist.
func (s *CompareService) Select(ctx context.Context, ids []string) (compare.View, error) {
	const op = "select"
	for _, id := range ids {
		if _, err := s.chats.GetConversation(ctx, id); err != nil {
			return compare.View{}, err
		}
	}
	if err := s.selection.Set(ids...); err != nil {
		return compare.View{}, NewValidationError(op, err.Error())
	}
	return s.View(ctx)
}

func (s *CompareService) Selection() []string {
	return s.selection.IDs()
}

func (s *CompareService) IsCompareMode() bool {
	return s.selection.IsCompareMode()
}

// View merges the selected conversations. HasNewSelection is relative to the previous View.
func (s *CompareService) View(ctx context.Context) (compare.View, error) {
	convs, err := s.selected(ctx)
	if err != nil {
		return compare.View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v := compare.Merge(s.lastViewed, convs)
	s.lastViewed = v.ConversationIDs
	return v, nil
}

// Candidates lists the conversations that may be compared with currentID.
func (s *CompareService) Candidates(ctx context.Context, currentID string, showAll bool) ([]domain.ConversationSummary, error) {
	current, err := s.chats.GetConversation(ctx, currentID)
	if err != nil {
		return nil, err
	}
	list, err := s.chats.ListConversations(ctx, conversation.ListFilter{})
	if err != nil {
		return nil, err
	}

	all := make([]*domain.Conversation, 0, len(list))
	for _, summary := range list {
		c, err := s.chats.GetConversation(ctx, summary.ID)
		if err != nil {
			s.logger.Warn("candidate skipped", "conversation_id", summary.ID, "error", err)
			continue
		}
		all = append(all, c)
	}

	eligible := compare.Eligible(current, all, showAll)
	out := make([]domain.ConversationSummary, 0, len(eligible))
	for _, c := range eligible {
		out = append(out, c.Summary())
	}
	return out, nil
}

// SendToBoth sends content to both sides at once. The sides stream independently; one
// failing does not cancel the other.
func (s *CompareService) SendToBoth(ctx context.Context, content string, onDelta func(id, delta string) error) ([]SideResult, error) {
	return s.eachSide(ctx, "send_to_both", func(ctx context.Context, id string) (*domain.Conversation, error) {
		return s.chats.SendMessage(ctx, id, content, sideDelta(id, onDelta))
	})
}

// EditRow rewrites the user message at row on both sides and asks again.
func (s *CompareService) EditRow(ctx context.Context, row int, content string, onDelta func(id, delta string) error) ([]SideResult, error) {
	return s.eachSide(ctx, "edit_row", func(ctx context.Context, id string) (*domain.Conversation, error) {
		return s.chats.EditMessage(ctx, id, row, content, sideDelta(id, onDelta))
	})
}

// DeleteRow removes the message pair at row on both sides.
func (s *CompareService) DeleteRow(ctx context.Context, row int) ([]SideResult, error) {
	return s.eachSide(ctx, "delete_row", func(ctx context.Context, id string) (*domain.Conversation, error) {
		return s.chats.DeleteMessagePair(ctx, id, row)
	})
}

// RegenerateSide regenerates the final answer of one side. A side whose final message
// errored is refused; the other side is not affected by it.
func (s *CompareService) RegenerateSide(ctx context.Context, id string, onDelta func(string) error) (*domain.Conversation, error) {
	const op = "regenerate_side"
	if !s.selection.Contains(id) {
		return nil, NewValidationError(op, "conversation is not selected")
	}
	convs, err := s.selected(ctx)
	if err != nil {
		return nil, err
	}
	v := compare.Merge(nil, convs)
	if !v.RegenerateAllowed()[id] {
		return nil, NewConflictError(op, id, "resolve the error on the final row before regenerating")
	}
	return s.chats.Regenerate(ctx, id, onDelta)
}

// ConversationDeleted leaves compare mode when a displayed conversation goes away.
func (s *CompareService) ConversationDeleted(id string) {
	if s.selection.Remove(id) {
		s.logger.Info("conversation removed from selection", "conversation_id", id, "remaining", s.selection.Len())
	}
}

func (s *CompareService) ConversationChanged(string) {}

func (s *CompareService) eachSide(ctx context.Context, op string, action func(ctx context.Context, id string) (*domain.Conversation, error)) ([]SideResult, error) {
	ids := s.selection.IDs()
	if len(ids) != compare.MaxSelected {
		return nil, NewConflictError(op, "", "compare mode requires two selected conversations")
	}

	results := make([]SideResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			c, err := action(ctx, id)
			results[i] = SideResult{ConversationID: id, Conversation: c}
			if err != nil {
				results[i].Error = err.Error()
				s.logger.Warn("compare action failed on one side", "operation", op, "conversation_id", id, "error", err)
			}
			return err
		})
	}
	return results, g.Wait()
}

func (s *CompareService) selected(ctx context.Context) ([]*domain.Conversation, error) {
	ids := s.selection.IDs()
	convs := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.chats.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, nil
}

func sideDelta(id string, onDelta func(id, delta string) error) func(string) error {
	if onDelta == nil {
		return nil
	}
	return func(delta string) error {
		return onDelta(id, delta)
	}
}
