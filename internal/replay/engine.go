// File: internal/replay/engine.go
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
	"github.com/iyunix/go-chatreplay/internal/services/ai"
	"github.com/iyunix/go-chatreplay/internal/streaming"
)

const defaultPersistTimeout = 10 * time.Second

var errSuperseded = errors.New("replay: invocation superseded")

// Store is the part of the conversation store the engine writes through.
type Store interface {
	Update(ctx context.Context, id string, patch conversation.Patch) error
}

// Registry answers whether models and addons are currently allowed.
type Registry interface {
	Resolve(id string) (domain.Entity, bool)
	ResolveAddon(id string) (domain.Addon, bool)
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

type Deps struct {
	Store     Store
	Registry  Registry
	Transport ai.Transport
	Tracker   *streaming.Tracker
	Logger    Logger
	Strategy  RetryStrategy
	Events    EventSink
}

type Options struct {
	// AutoAdvance starts the next queued message as soon as one succeeds.
	AutoAdvance    bool
	PersistTimeout time.Duration
}

// Engine drives one replay conversation through its queue of user messages.
// It owns its copy of the conversation; callers read it through Snapshot.
type Engine struct {
	deps Deps
	opts Options

	mu         sync.Mutex
	conv       *domain.Conversation
	state      State
	token      streaming.Token
	handle     *Handle
	baseCtx    context.Context
	persistErr error
}

func NewEngine(conv *domain.Conversation, deps Deps, opts Options) (*Engine, error) {
	if conv == nil || !conv.IsReplay() {
		return nil, ErrNotReplay
	}
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("replay: invalid conversation: %w", err)
	}
	if deps.Store == nil || deps.Registry == nil || deps.Transport == nil || deps.Tracker == nil {
		return nil, errors.New("replay: store, registry, transport and tracker are required")
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if deps.Strategy == nil {
		deps.Strategy = ResendStrategy{}
	}
	if deps.Events == nil {
		deps.Events = discardSink{}
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}

	c := conv.Clone()
	return &Engine{
		deps:    deps,
		opts:    opts,
		conv:    c,
		state:   stateOf(c),
		baseCtx: context.Background(),
	}, nil
}

func (e *Engine) ID() string {
	return e.conv.ID
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a deep copy of the conversation as the engine currently sees it.
func (e *Engine) Snapshot() *domain.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Clone()
}

// HasMore reports whether queued messages remain.
func (e *Engine) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.conv.Replay.IsComplete()
}

// Progress returns the cursor and the queue length.
func (e *Engine) Progress() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Replay.ActiveIndex, len(e.conv.Replay.UserMessagesStack)
}

// LastPersistError returns the most recent failed write, cleared by the next good one.
func (e *Engine) LastPersistError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistErr
}

// ActiveHandle returns the handle of the latest invocation, or nil before the first.
func (e *Engine) ActiveHandle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// Check runs the disallowed-model guard against the registry.
func (e *Engine) Check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkLocked()
}

// Start sends the queued message under the cursor.
func (e *Engine) Start(ctx context.Context) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == StateStreaming:
		return nil, ErrAlreadyStreaming
	case e.state == StateComplete:
		return nil, ErrReplayComplete
	case !e.state.CanStart():
		return nil, ErrInvalidTransition
	}
	return e.startLocked(ctx)
}

// Retry re-issues the queued message under the cursor after a failure or a stop.
// The interrupted answer is rebuilt according to the retry strategy.
func (e *Engine) Retry(ctx context.Context) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state == StateStreaming:
		return nil, ErrAlreadyStreaming
	case e.state == StateComplete:
		return nil, ErrReplayComplete
	case !e.state.CanRetry():
		return nil, ErrInvalidTransition
	}

	n := len(e.conv.Messages)
	if n < 2 || e.conv.Messages[n-1].Role != domain.RoleAssistant || e.conv.Messages[n-2].Role != domain.RoleUser {
		return nil, ErrInvalidTransition
	}
	if err := e.checkLocked(); err != nil {
		e.blockedLocked(err)
		return nil, err
	}

	entry, _ := e.conv.Replay.Current()
	settings := e.settingsFor(entry)

	history := domain.CloneMessages(e.conv.Messages[:n-1])
	history[n-2] = userMessage(entry.Content, settings)
	reqHistory, seed := e.deps.Strategy.Prepare(history, e.conv.Messages[n-1].StreamedContent())

	return e.invokeLocked(ctx, e.requestFor(settings, reqHistory), func() {
		e.conv.Messages[n-2] = history[n-2]
		answer := domain.NewAssistantPlaceholder(settings.ModelID)
		answer.Content = seed
		answer.Partial = true
		e.conv.Messages[n-1] = answer
		e.conv.Replay.IsError = false
	})
}

// Stop cancels the in-flight invocation. Streamed content is kept and marked partial.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStreaming {
		return ErrInvalidTransition
	}
	return e.stopLocked(e.token)
}

// OverrideSettings replaces the model settings used for the rest of the replay.
// Replay-as-is is switched off for good. Nothing is re-run.
func (e *Engine) OverrideSettings(settings domain.ModelSettings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStreaming {
		return ErrAlreadyStreaming
	}

	e.conv.Settings = settings.Clone()
	e.conv.Replay.DisableAsIs()
	e.conv.UpdatedAt = time.Now()

	patch := conversation.ProgressPatch(e.conv)
	s := e.conv.Settings.Clone()
	patch.Settings = &s
	e.persistLocked(patch)
	e.deps.Logger.Info("replay settings overridden", "conversation_id", e.conv.ID, "model", settings.ModelID)
	e.deps.Events.Publish(e.eventLocked(EventState))
	return nil
}

func (e *Engine) startLocked(ctx context.Context) (*Handle, error) {
	if err := e.checkLocked(); err != nil {
		e.blockedLocked(err)
		return nil, err
	}
	entry, ok := e.conv.Replay.Current()
	if !ok {
		return nil, ErrReplayComplete
	}

	settings := e.settingsFor(entry)
	user := userMessage(entry.Content, settings)
	history := append(domain.CloneMessages(e.conv.Messages), user)

	return e.invokeLocked(ctx, e.requestFor(settings, history), func() {
		answer := domain.NewAssistantPlaceholder(settings.ModelID)
		answer.Partial = true
		e.conv.Messages = append(e.conv.Messages, user, answer)
	})
}

// invokeLocked claims the conversation's in-flight slot, applies mutate and streams req
// into the final message. Nothing is mutated when the slot is taken.
func (e *Engine) invokeLocked(ctx context.Context, req ai.Request, mutate func()) (*Handle, error) {
	runCtx, cancel := context.WithCancel(ctx)
	token, err := e.deps.Tracker.Begin(e.conv.ID, cancel)
	if err != nil {
		cancel()
		return nil, ErrAlreadyStreaming
	}

	mutate()
	e.token = token
	e.baseCtx = ctx
	h := newHandle(func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.stopLocked(token)
	})
	e.handle = h
	e.transitionLocked(StateStreaming)

	e.deps.Logger.Info("replay invocation started",
		"conversation_id", e.conv.ID,
		"active_index", e.conv.Replay.ActiveIndex,
		"model", req.Model,
	)
	go e.run(runCtx, cancel, token, req, h)
	return h, nil
}

func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, token streaming.Token, req ai.Request, h *Handle) {
	defer cancel()
	err := e.deps.Transport.Stream(ctx, req, func(delta string) error {
		return e.appendDelta(token, delta)
	})
	e.finish(ctx, token, req.Model, err, h)
}

func (e *Engine) appendDelta(token streaming.Token, delta string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != token || e.state != StateStreaming {
		return errSuperseded
	}
	last := e.conv.LastMessage()
	last.Content += delta

	ev := e.eventLocked(EventDelta)
	ev.Delta = delta
	e.deps.Events.Publish(ev)
	return nil
}

func (e *Engine) finish(ctx context.Context, token streaming.Token, model string, err error, h *Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Stop already settled this invocation.
	if e.token != token || e.state != StateStreaming {
		return
	}
	e.token = 0
	e.deps.Tracker.End(e.conv.ID, token)

	last := e.conv.LastMessage()
	var outcomeErr error
	switch {
	case err == nil:
		last.Partial = false
		last.Error = nil
		e.conv.Replay.IsError = false
		e.conv.Replay.Advance()
		if e.conv.Replay.IsComplete() {
			e.transitionLocked(StateComplete)
		} else {
			e.transitionLocked(StateAwaitingStart)
		}
	case errors.Is(ctx.Err(), context.Canceled):
		// Cancelled through the tracker rather than Stop.
		last.Partial = true
		e.transitionLocked(StateStopped)
	default:
		outcomeErr = &TransportError{ConversationID: e.conv.ID, Model: model, Cause: err}
		last.Fail(err.Error())
		e.conv.Replay.IsError = true
		e.deps.Logger.Error("replay invocation failed", "conversation_id", e.conv.ID, "model", model, "error", err)
		e.transitionLocked(StateErrored)
	}
	h.resolve(Outcome{State: e.state, Err: outcomeErr})

	if err == nil && e.opts.AutoAdvance && e.state == StateAwaitingStart {
		if _, serr := e.startLocked(e.baseCtx); serr != nil {
			e.deps.Logger.Warn("replay auto-advance halted", "conversation_id", e.conv.ID, "error", serr)
		}
	}
}

func (e *Engine) stopLocked(token streaming.Token) error {
	if e.state != StateStreaming || e.token != token {
		return nil
	}
	e.token = 0
	if e.deps.Tracker.Owns(e.conv.ID, token) {
		e.deps.Tracker.Cancel(e.conv.ID)
	}
	e.conv.LastMessage().Partial = true
	e.transitionLocked(StateStopped)
	if e.handle != nil {
		e.handle.resolve(Outcome{State: StateStopped})
	}
	return nil
}

func (e *Engine) transitionLocked(next State) {
	prev := e.state
	e.state = next
	e.conv.UpdatedAt = time.Now()
	e.persistLocked(conversation.ProgressPatch(e.conv))

	e.deps.Logger.Debug("replay transition", "conversation_id", e.conv.ID, "from", prev, "to", next)
	e.deps.Events.Publish(e.eventLocked(EventState))
}

// persistLocked writes through the store. A failure is recorded and announced; the
// in-memory state stays as it is and the write is not retried.
func (e *Engine) persistLocked(patch conversation.Patch) {
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
	defer cancel()

	if err := e.deps.Store.Update(ctx, e.conv.ID, patch); err != nil {
		perr := &PersistenceError{ConversationID: e.conv.ID, Transition: e.state, Cause: err}
		e.persistErr = perr
		e.deps.Logger.Error("replay progress not persisted", "conversation_id", e.conv.ID, "state", e.state, "error", err)

		ev := e.eventLocked(EventPersistError)
		ev.Error = perr.Error()
		e.deps.Events.Publish(ev)
		return
	}
	e.persistErr = nil
}

func (e *Engine) blockedLocked(err error) {
	ev := e.eventLocked(EventBlocked)
	ev.Error = err.Error()
	e.deps.Events.Publish(ev)
	e.deps.Logger.Warn("replay blocked", "conversation_id", e.conv.ID, "error", err)
}

func (e *Engine) eventLocked(t EventType) Event {
	return Event{
		Type:           t,
		ConversationID: e.conv.ID,
		State:          e.state,
		ActiveIndex:    e.conv.Replay.ActiveIndex,
		Total:          len(e.conv.Replay.UserMessagesStack),
	}
}

// settingsFor applies the model-resolution rule to a queued message. As-is replays use
// the message's recorded model (then its recorded settings, then the conversation's);
// otherwise the conversation's current settings win.
func (e *Engine) settingsFor(entry domain.ReplayMessage) domain.ModelSettings {
	if !e.conv.Replay.ReplayAsIs {
		return e.conv.Settings.Clone()
	}
	s := e.conv.Settings.Clone()
	if entry.Settings != nil {
		s = entry.Settings.Clone()
	}
	if entry.Model != nil && entry.Model.ID != "" {
		s.ModelID = entry.Model.ID
	}
	if s.ModelID == "" {
		s.ModelID = e.conv.Settings.ModelID
	}
	return s
}

func (e *Engine) checkLocked() error {
	var entries []domain.ReplayMessage
	if e.conv.Replay.ReplayAsIs {
		entries = e.conv.Replay.Remaining()
	} else if cur, ok := e.conv.Replay.Current(); ok {
		entries = []domain.ReplayMessage{cur}
	}

	settings := make([]domain.ModelSettings, len(entries))
	for i, entry := range entries {
		settings[i] = e.settingsFor(entry)
	}
	return CheckSettings(e.deps.Registry, settings...)
}

func (e *Engine) requestFor(s domain.ModelSettings, history []domain.Message) ai.Request {
	return BuildRequest(e.deps.Registry, s, history)
}

func userMessage(content string, s domain.ModelSettings) domain.Message {
	msg := domain.NewUserMessage(content)
	msg.Model = &domain.ModelRef{ID: s.ModelID}
	snapshot := s.Clone()
	msg.Settings = &snapshot
	return msg
}
