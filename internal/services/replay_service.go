// File: internal/services/replay_service.go
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/replay"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
)

// ReplayStatus is what clients see of a replay conversation.
type ReplayStatus struct {
	ConversationID string               `json:"conversation_id"`
	State          replay.State         `json:"state"`
	ActiveIndex    int                  `json:"active_index"`
	Total          int                  `json:"total"`
	HasMore        bool                 `json:"has_more"`
	ReplayAsIs     bool                 `json:"replay_as_is"`
	Streaming      bool                 `json:"streaming"`
	Blocked        *BlockedStatus       `json:"blocked,omitempty"`
	PersistError   string               `json:"persist_error,omitempty"`
	Conversation   *domain.Conversation `json:"conversation"`
}

// BlockedStatus lists what keeps the replay from starting.
type BlockedStatus struct {
	Models []string `json:"models,omitempty"`
	Addons []string `json:"addons,omitempty"`
}

// ReplayService keeps one engine per replay conversation.
type ReplayService struct {
	store conversation.ConversationStore
	deps  replay.Deps
	opts  replay.Options

	mu      sync.Mutex
	engines map[string]*replay.Engine
	logger  Logger
}

// NewReplayService builds engines from deps; deps.Store is replaced by store.
func NewReplayService(store conversation.ConversationStore, deps replay.Deps, opts replay.Options, logger Logger) (*ReplayService, error) {
	if store == nil {
		return nil, NewValidationError("constructor", "conversation store is required")
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	deps.Store = store
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &ReplayService{
		store:   store,
		deps:    deps,
		opts:    opts,
		engines: make(map[string]*replay.Engine),
		logger:  logger,
	}, nil
}

// Start sends the next queued message. The invocation outlives ctx; use Stop to end it.
func (s *ReplayService) Start(ctx context.Context, id string) (*ReplayStatus, error) {
	const op = "replay_start"
	e, err := s.engine(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, s.mapError(op, id, err)
	}
	return s.status(e), nil
}

// Retry re-sends the queued message after a failure or a stop.
func (s *ReplayService) Retry(ctx context.Context, id string) (*ReplayStatus, error) {
	const op = "replay_retry"
	e, err := s.engine(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.Retry(context.WithoutCancel(ctx)); err != nil {
		return nil, s.mapError(op, id, err)
	}
	return s.status(e), nil
}

func (s *ReplayService) Stop(ctx context.Context, id string) (*ReplayStatus, error) {
	const op = "replay_stop"
	e, err := s.engine(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := e.Stop(); err != nil {
		return nil, s.mapError(op, id, err)
	}
	return s.status(e), nil
}

func (s *ReplayService) Status(ctx context.Context, id string) (*ReplayStatus, error) {
	e, err := s.engine(ctx, "replay_status", id)
	if err != nil {
		return nil, err
	}
	return s.status(e), nil
}

// OverrideSettings switches the replay to user-chosen settings. Replay-as-is stays off.
func (s *ReplayService) OverrideSettings(ctx context.Context, id string, settings domain.ModelSettings) (*ReplayStatus, error) {
	const op = "replay_override_settings"
	e, err := s.engine(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := e.OverrideSettings(settings); err != nil {
		return nil, s.mapError(op, id, err)
	}
	return s.status(e), nil
}

// Wait blocks until the latest invocation of the conversation ends.
func (s *ReplayService) Wait(ctx context.Context, id string) (replay.Outcome, error) {
	e, err := s.engine(ctx, "replay_wait", id)
	if err != nil {
		return replay.Outcome{}, err
	}
	h := e.ActiveHandle()
	if h == nil {
		return replay.Outcome{State: e.State()}, nil
	}
	return h.Wait(ctx), nil
}

// ConversationChanged drops a cached engine so the next call reloads the conversation.
// A streaming engine is kept; ChatService settles it before writing messages or settings.
func (s *ReplayService) ConversationChanged(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.engines[id]; ok && e.State() != replay.StateStreaming {
		delete(s.engines, id)
	}
}

// Settle stops a replay invocation streaming into the conversation and forgets the
// engine. Stop settles under the engine lock, so no write of that invocation follows.
func (s *ReplayService) Settle(id string) error {
	s.mu.Lock()
	e, ok := s.engines[id]
	delete(s.engines, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := e.Stop(); err != nil && !errors.Is(err, replay.ErrInvalidTransition) {
		return err
	}
	if perr := e.LastPersistError(); perr != nil {
		s.logger.Warn("replay settled with unsaved progress", "conversation_id", id, "error", perr)
	}
	s.logger.Debug("replay engine settled", "conversation_id", id)
	return nil
}

func (s *ReplayService) ConversationDeleted(id string) {
	s.mu.Lock()
	e, ok := s.engines[id]
	delete(s.engines, id)
	s.mu.Unlock()
	if ok {
		_ = e.Stop()
	}
}

func (s *ReplayService) engine(ctx context.Context, op, id string) (*replay.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.engines[id]; ok {
		return e, nil
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return nil, NewNotFoundError(op, id, err)
		}
		return nil, NewStoreError(op, id, err)
	}
	domain.Normalize(c)
	e, err := replay.NewEngine(c, s.deps, s.opts)
	if err != nil {
		if errors.Is(err, replay.ErrNotReplay) {
			return nil, NewConflictError(op, id, "conversation is not a replay")
		}
		return nil, NewValidationError(op, err.Error())
	}
	s.engines[id] = e
	s.logger.Debug("replay engine loaded", "conversation_id", id, "state", e.State())
	return e, nil
}

func (s *ReplayService) status(e *replay.Engine) *ReplayStatus {
	snap := e.Snapshot()
	idx, total := e.Progress()
	st := &ReplayStatus{
		ConversationID: snap.ID,
		State:          e.State(),
		ActiveIndex:    idx,
		Total:          total,
		HasMore:        idx < total,
		ReplayAsIs:     snap.Replay.ReplayAsIs,
		Conversation:   snap,
	}
	st.Streaming = st.State == replay.StateStreaming
	var dis *replay.DisallowedModelError
	if errors.As(e.Check(), &dis) {
		st.Blocked = &BlockedStatus{Models: dis.Models, Addons: dis.Addons}
	}
	if perr := e.LastPersistError(); perr != nil {
		st.PersistError = perr.Error()
	}
	return st
}

func (s *ReplayService) mapError(op, id string, err error) error {
	var dis *replay.DisallowedModelError
	switch {
	case errors.As(err, &dis):
		return NewDisallowedError(op, id, err)
	case errors.Is(err, replay.ErrAlreadyStreaming):
		return NewBusyError(op, id)
	case errors.Is(err, replay.ErrReplayComplete), errors.Is(err, replay.ErrInvalidTransition):
		return &ServiceError{Type: ErrTypeConflict, Operation: op, Message: err.Error(), ConversationID: id, Cause: err}
	default:
		return &ServiceError{Type: ErrTypeValidation, Operation: op, Message: err.Error(), ConversationID: id, Cause: err}
	}
}
