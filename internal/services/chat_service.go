// File: internal/services/chat_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/replay"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
	"github.com/iyunix/go-chatreplay/internal/services/ai"
	"github.com/iyunix/go-chatreplay/internal/streaming"
)

const maxNameLength = 200

var errStopped = errors.New("invocation stopped")

// ChangeListener is told about conversation changes made through ChatService.
type ChangeListener interface {
	ConversationChanged(id string)
	ConversationDeleted(id string)
}

// Settler is a listener that may itself be streaming into a conversation. Settle must
// stop that writer synchronously and forget any cached copy of the conversation.
type Settler interface {
	Settle(id string) error
}

// Notifier pushes live updates to connected clients.
type Notifier interface {
	BroadcastDelta(conversationID, delta string)
	BroadcastUpdated(conversationID string)
}

type nopNotifier struct{}

func (nopNotifier) BroadcastDelta(string, string) {}
func (nopNotifier) BroadcastUpdated(string)       {}

type ChatConfig struct {
	DefaultModel       string
	DefaultTemperature float64
	SaveTimeout        time.Duration
}

func (c *ChatConfig) Validate() error {
	if c.DefaultModel == "" {
		return NewValidationError("config", "default model is required")
	}
	if c.DefaultTemperature < 0 || c.DefaultTemperature > 1 {
		return NewValidationError("config", "default temperature must be within [0, 1]")
	}
	if c.SaveTimeout <= 0 {
		return NewValidationError("config", "save timeout must be positive")
	}
	return nil
}

func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		DefaultModel:       "gpt-4o-mini",
		DefaultTemperature: domain.DefaultTemperature,
		SaveTimeout:        5 * time.Second,
	}
}

// CreateRequest describes a new conversation. Nil settings take the default model.
type CreateRequest struct {
	Name     string
	FolderID *string
	Settings *domain.ModelSettings
}

// ChatService owns ordinary conversation operations and streaming sends.
type ChatService struct {
	config    *ChatConfig
	store     conversation.ConversationStore
	registry  replay.Registry
	transport ai.Transport
	tracker   *streaming.Tracker
	notifier  Notifier
	logger    Logger

	mu        sync.Mutex
	inflight  map[string]chan struct{}
	listeners []ChangeListener

	newID func() string
	now   func() time.Time
}

func NewChatService(
	config *ChatConfig,
	store conversation.ConversationStore,
	registry replay.Registry,
	transport ai.Transport,
	tracker *streaming.Tracker,
	notifier Notifier,
	logger Logger,
) (*ChatService, error) {
	if config == nil {
		config = DefaultChatConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, NewValidationError("constructor", "conversation store is required")
	}
	if registry == nil {
		return nil, NewValidationError("constructor", "model registry is required")
	}
	if transport == nil {
		return nil, NewValidationError("constructor", "model transport is required")
	}
	if tracker == nil {
		return nil, NewValidationError("constructor", "streaming tracker is required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ChatService{
		config:    config,
		store:     store,
		registry:  registry,
		transport: transport,
		tracker:   tracker,
		notifier:  notifier,
		logger:    logger,
		inflight:  make(map[string]chan struct{}),
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// AddListener registers l for change notifications.
func (s *ChatService) AddListener(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Basic conversation operations
func (s *ChatService) CreateConversation(ctx context.Context, req CreateRequest) (*domain.Conversation, error) {
	const op = "create_conversation"

	now := s.now()
	c := &domain.Conversation{
		ID:        s.newID(),
		Name:      trimName(req.Name),
		FolderID:  req.FolderID,
		Messages:  []domain.Message{},
		Settings:  domain.ModelSettings{ModelID: s.config.DefaultModel, Temperature: s.config.DefaultTemperature},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Settings != nil {
		c.Settings = req.Settings.Clone()
	}
	domain.Normalize(c)
	if err := c.Validate(); err != nil {
		return nil, NewValidationError(op, err.Error())
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, NewStoreError(op, c.ID, err)
	}
	s.logger.Info("conversation created", "conversation_id", c.ID, "model", c.Settings.ModelID)
	return c, nil
}

func (s *ChatService) ListConversations(ctx context.Context, filter conversation.ListFilter) ([]domain.ConversationSummary, error) {
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, NewStoreError("list_conversations", "", err)
	}
	return list, nil
}

func (s *ChatService) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.load(ctx, "get_conversation", id)
}

func (s *ChatService) RenameConversation(ctx context.Context, id, name string) (*domain.Conversation, error) {
	const op = "rename_conversation"
	name = trimName(name)
	if name == "" {
		return nil, NewValidationError(op, "conversation name cannot be empty")
	}
	return s.patch(ctx, op, id, conversation.Patch{Name: &name})
}

// MoveToFolder files the conversation under folderID, or outside any folder when nil.
func (s *ChatService) MoveToFolder(ctx context.Context, id string, folderID *string) (*domain.Conversation, error) {
	return s.patch(ctx, "move_conversation", id, conversation.Patch{FolderID: &folderID})
}

// UpdateSettings changes the model configuration used for later sends. Choosing settings
// for a replay conversation switches replay-as-is off for good, and is refused while the
// replay is streaming.
func (s *ChatService) UpdateSettings(ctx context.Context, id string, settings domain.ModelSettings) (*domain.Conversation, error) {
	const op = "update_settings"
	if err := settings.Validate(); err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !c.IsReplay() {
		return s.patch(ctx, op, id, conversation.Patch{Settings: &settings})
	}

	if s.tracker.IsStreaming(id) {
		return nil, NewBusyError(op, id)
	}
	if err := s.settle(id); err != nil {
		return nil, err
	}
	r := c.Replay.Clone()
	r.DisableAsIs()
	rp := &r
	return s.patch(ctx, op, id, conversation.Patch{Settings: &settings, Replay: &rp})
}

// DeleteConversation stops anything in flight, deletes the conversation and tells
// listeners, which drop it from any selection.
func (s *ChatService) DeleteConversation(ctx context.Context, id string) error {
	const op = "delete_conversation"
	if err := s.stopAndWait(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return NewNotFoundError(op, id, err)
		}
		return NewStoreError(op, id, err)
	}
	for _, l := range s.snapshotListeners() {
		l.ConversationDeleted(id)
	}
	s.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// DuplicateForReplay copies the conversation's user messages into a new replay conversation.
func (s *ChatService) DuplicateForReplay(ctx context.Context, id string) (*domain.Conversation, error) {
	const op = "duplicate_for_replay"
	src, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	dup, err := domain.DuplicateForReplay(src, s.newID(), s.now())
	if err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	if err := s.store.Create(ctx, dup); err != nil {
		return nil, NewStoreError(op, dup.ID, err)
	}
	s.logger.Info("replay conversation created", "source_id", id, "conversation_id", dup.ID,
		"queued", len(dup.Replay.UserMessagesStack))
	return dup, nil
}

// Streaming functionality

// SendMessage appends a user message and streams the answer. onDelta receives every
// streamed chunk; an error from it stops the stream. A stopped send returns the partial
// conversation and no error.
func (s *ChatService) SendMessage(ctx context.Context, id, content string, onDelta func(string) error) (*domain.Conversation, error) {
	const op = "send_message"
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError(op, "message cannot be empty")
	}
	if s.tracker.IsStreaming(id) {
		return nil, NewBusyError(op, id)
	}
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}

	msg := domain.NewUserMessage(content)
	msg.Model = &domain.ModelRef{ID: c.Settings.ModelID}
	settings := c.Settings.Clone()
	msg.Settings = &settings
	c.Messages = append(c.Messages, msg)
	return s.stream(ctx, op, c, onDelta)
}

// Stop cancels the invocation in flight for the conversation and waits for its partial
// answer to be written.
func (s *ChatService) Stop(ctx context.Context, id string) error {
	if !s.tracker.IsStreaming(id) {
		return NewConflictError("stop", id, "conversation is not streaming")
	}
	return s.stopAndWait(ctx, id)
}

// Regenerate stops any invocation in flight, drops the trailing answer and asks again.
func (s *ChatService) Regenerate(ctx context.Context, id string, onDelta func(string) error) (*domain.Conversation, error) {
	const op = "regenerate"
	if err := s.stopAndWait(ctx, id); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	c.DropTrailingAnswer()
	if last := c.LastMessage(); last == nil || last.Role != domain.RoleUser {
		return nil, NewValidationError(op, "nothing to regenerate")
	}
	return s.stream(ctx, op, c, onDelta)
}

// EditMessage rewrites the user message at row, drops what followed and asks again.
func (s *ChatService) EditMessage(ctx context.Context, id string, row int, content string, onDelta func(string) error) (*domain.Conversation, error) {
	const op = "edit_message"
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError(op, "message cannot be empty")
	}
	if err := s.stopAndWait(ctx, id); err != nil {
		return nil, err
	}
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := c.EditUserMessage(row, content); err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	return s.stream(ctx, op, c, onDelta)
}

// DeleteMessagePair removes the message at row with its question or answer.
func (s *ChatService) DeleteMessagePair(ctx context.Context, id string, row int) (*domain.Conversation, error) {
	const op = "delete_message_pair"
	if s.tracker.IsStreaming(id) {
		return nil, NewBusyError(op, id)
	}
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := c.DeletePair(row); err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	return s.saveMessages(ctx, op, c)
}

func (s *ChatService) RateMessage(ctx context.Context, id string, row int, rating domain.Rating) (*domain.Conversation, error) {
	const op = "rate_message"
	c, err := s.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := c.Rate(row, rating); err != nil {
		return nil, NewValidationError(op, err.Error())
	}
	return s.saveMessages(ctx, op, c)
}

// IsStreaming reports whether an invocation is in flight for the conversation.
func (s *ChatService) IsStreaming(id string) bool {
	return s.tracker.IsStreaming(id)
}

// stream invokes the model for c, whose final message is the question, and streams the
// answer into a new assistant message.
func (s *ChatService) stream(ctx context.Context, op string, c *domain.Conversation, onDelta func(string) error) (*domain.Conversation, error) {
	if err := replay.CheckSettings(s.registry, c.Settings); err != nil {
		return nil, NewDisallowedError(op, c.ID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	token, err := s.tracker.Begin(c.ID, cancel)
	if err != nil {
		return nil, NewBusyError(op, c.ID)
	}
	done := s.beginInflight(c.ID)
	defer s.endInflight(c.ID, done)

	req := replay.BuildRequest(s.registry, c.Settings, domain.CloneMessages(c.Messages))
	answer := domain.NewAssistantPlaceholder(c.Settings.ModelID)
	answer.Partial = true
	c.Messages = append(c.Messages, answer)
	if _, err := s.saveMessages(ctx, op, c); err != nil {
		s.tracker.End(c.ID, token)
		return nil, err
	}

	s.logger.Info("stream started", "conversation_id", c.ID, "model", req.Model, "history", len(req.History))
	var reply strings.Builder
	streamErr := s.transport.Stream(runCtx, req, func(delta string) error {
		if !s.tracker.Owns(c.ID, token) {
			return errStopped
		}
		reply.WriteString(delta)
		s.notifier.BroadcastDelta(c.ID, delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})
	s.tracker.End(c.ID, token)

	last := c.LastMessage()
	last.Content = reply.String()
	var result error
	switch {
	case streamErr == nil:
		last.Partial = false
	case errors.Is(streamErr, errStopped) || runCtx.Err() != nil:
		s.logger.Info("stream stopped", "conversation_id", c.ID, "received", reply.Len())
	default:
		last.Fail(streamErr.Error())
		result = NewStreamingError(op, c.ID, streamErr)
		s.logger.Error("stream failed", "conversation_id", c.ID, "model", req.Model, "error", streamErr)
	}

	// The request context may be gone by now; the answer is saved regardless.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), s.config.SaveTimeout)
	defer saveCancel()
	if _, err := s.saveMessages(saveCtx, op, c); err != nil && result == nil {
		result = err
	}
	s.logger.Info("stream completed", "conversation_id", c.ID, "response_length", reply.Len())
	return c, result
}

func (s *ChatService) beginInflight(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(chan struct{})
	s.inflight[id] = done
	return done
}

func (s *ChatService) endInflight(id string, done chan struct{}) {
	s.mu.Lock()
	if s.inflight[id] == done {
		delete(s.inflight, id)
	}
	s.mu.Unlock()
	close(done)
}

// stopAndWait stops whatever streams into the conversation. Replay invocations settle
// synchronously; a send started here is waited for until its partial answer is written.
func (s *ChatService) stopAndWait(ctx context.Context, id string) error {
	if err := s.settle(id); err != nil {
		return err
	}
	if !s.tracker.Cancel(id) {
		return nil
	}
	s.mu.Lock()
	done := s.inflight[id]
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChatService) settle(id string) error {
	for _, l := range s.snapshotListeners() {
		st, ok := l.(Settler)
		if !ok {
			continue
		}
		if err := st.Settle(id); err != nil {
			return NewConflictError("settle", id, err.Error())
		}
	}
	return nil
}

func (s *ChatService) load(ctx context.Context, op, id string) (*domain.Conversation, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return nil, NewNotFoundError(op, id, err)
		}
		return nil, NewStoreError(op, id, err)
	}
	domain.Normalize(c)
	return c, nil
}

func (s *ChatService) patch(ctx context.Context, op, id string, p conversation.Patch) (*domain.Conversation, error) {
	if err := s.store.Update(ctx, id, p); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return nil, NewNotFoundError(op, id, err)
		}
		return nil, NewStoreError(op, id, err)
	}
	s.changed(id)
	return s.load(ctx, op, id)
}

func (s *ChatService) saveMessages(ctx context.Context, op string, c *domain.Conversation) (*domain.Conversation, error) {
	c.UpdatedAt = s.now()
	msgs := domain.CloneMessages(c.Messages)
	if err := s.store.Update(ctx, c.ID, conversation.Patch{Messages: &msgs}); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return nil, NewNotFoundError(op, c.ID, err)
		}
		return nil, NewStoreError(op, c.ID, err)
	}
	s.changed(c.ID)
	return c, nil
}

func (s *ChatService) changed(id string) {
	s.notifier.BroadcastUpdated(id)
	for _, l := range s.snapshotListeners() {
		l.ConversationChanged(id)
	}
}

func (s *ChatService) snapshotListeners() []ChangeListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChangeListener(nil), s.listeners...)
}

func trimName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}
