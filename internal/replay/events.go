// File: internal/replay/events.go
package replay

type EventType string

const (
	EventState        EventType = "state"
	EventDelta        EventType = "delta"
	EventPersistError EventType = "persist_error"
	EventBlocked      EventType = "blocked"
)

// Event is published on every transition and every streamed delta.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	State          State     `json:"state"`
	ActiveIndex    int       `json:"active_index"`
	Total          int       `json:"total"`
	Delta          string    `json:"delta,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// EventSink receives engine events. Publish is called with the engine lock held and
// must not block.
type EventSink interface {
	Publish(Event)
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
