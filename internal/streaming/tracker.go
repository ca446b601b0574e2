// File: internal/streaming/tracker.go
package streaming

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when a conversation already has an invocation in flight.
var ErrBusy = errors.New("conversation is already streaming")

// Token identifies one in-flight invocation. Writes made under a stale token must be dropped.
type Token uint64

type entry struct {
	token  Token
	cancel context.CancelFunc
}

// Tracker enforces at most one in-flight model invocation per conversation.
type Tracker struct {
	mu     sync.Mutex
	next   Token
	active map[string]entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]entry)}
}

// Begin registers an invocation for the conversation. cancel is called by Cancel.
func (t *Tracker) Begin(conversationID string, cancel context.CancelFunc) (Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.active[conversationID]; busy {
		return 0, ErrBusy
	}
	t.next++
	t.active[conversationID] = entry{token: t.next, cancel: cancel}
	return t.next, nil
}

// End releases the slot if token still owns it. It reports whether it did.
func (t *Tracker) End(conversationID string, token Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.active[conversationID]
	if !ok || e.token != token {
		return false
	}
	delete(t.active, conversationID)
	return true
}

// Cancel stops whatever is in flight for the conversation and frees the slot at once.
func (t *Tracker) Cancel(conversationID string) bool {
	t.mu.Lock()
	e, ok := t.active[conversationID]
	if ok {
		delete(t.active, conversationID)
	}
	t.mu.Unlock()

	if ok && e.cancel != nil {
		e.cancel()
	}
	return ok
}

// IsStreaming reports whether an invocation is in flight.
func (t *Tracker) IsStreaming(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[conversationID]
	return ok
}

// Owns reports whether token is the current owner of the conversation's slot.
func (t *Tracker) Owns(conversationID string, token Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.active[conversationID]
	return ok && e.token == token
}
