// File: internal/replay/handle.go
package replay

import (
	"context"
	"sync"
)

// Outcome is how one invocation ended.
type Outcome struct {
	State State
	Err   error
}

// Handle is a cancellable view of one in-flight invocation.
type Handle struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
	cancel  func() error
}

func newHandle(cancel func() error) *Handle {
	return &Handle{done: make(chan struct{}), cancel: cancel}
}

func (h *Handle) resolve(o Outcome) {
	h.once.Do(func() {
		h.outcome = o
		close(h.done)
	})
}

// Done is closed once the invocation has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the invocation ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) Outcome {
	select {
	case <-h.done:
		return h.outcome
	case <-ctx.Done():
		return Outcome{State: StateStreaming, Err: ctx.Err()}
	}
}

// Cancel stops the invocation. It is a no-op once the invocation has ended.
func (h *Handle) Cancel() {
	select {
	case <-h.done:
		return
	default:
	}
	_ = h.cancel()
}
