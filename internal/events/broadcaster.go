// File: internal/events/broadcaster.go
package events

import (
	"encoding/json"
	"sync"

	"github.com/iyunix/go-chatreplay/internal/replay"
)

const clientBuffer = 64

// Event is one Server-Sent Event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Broadcaster fans conversation events out to SSE clients. Slow clients miss events
// rather than block publishers.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]map[chan Event]struct{}
	logger  Logger
}

func NewBroadcaster(logger Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]map[chan Event]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a client for a conversation's events.
func (b *Broadcaster) Subscribe(conversationID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, clientBuffer)
	if b.clients[conversationID] == nil {
		b.clients[conversationID] = make(map[chan Event]struct{})
	}
	b.clients[conversationID][ch] = struct{}{}

	b.logger.Debug("sse client subscribed", "conversation_id", conversationID, "clients", len(b.clients[conversationID]))
	return ch
}

// Unsubscribe removes the client and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.clients[conversationID]
	if !ok {
		return
	}
	if _, ok := clients[ch]; !ok {
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(b.clients, conversationID)
	}
	b.logger.Debug("sse client unsubscribed", "conversation_id", conversationID)
}

// Broadcast sends event to every client of the conversation without blocking.
func (b *Broadcaster) Broadcast(conversationID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.clients[conversationID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("sse client channel full, event dropped", "conversation_id", conversationID, "type", event.Type)
		}
	}
}

// Publish forwards replay engine events.
func (b *Broadcaster) Publish(ev replay.Event) {
	b.Broadcast(ev.ConversationID, Event{Type: "replay_" + string(ev.Type), Data: ev})
}

// BroadcastDelta announces streamed content of an ordinary send.
func (b *Broadcaster) BroadcastDelta(conversationID, delta string) {
	b.Broadcast(conversationID, Event{Type: "delta", Data: map[string]string{"delta": delta}})
}

// BroadcastUpdated announces that a conversation changed.
func (b *Broadcaster) BroadcastUpdated(conversationID string) {
	b.Broadcast(conversationID, Event{Type: "updated", Data: map[string]string{"conversation_id": conversationID}})
}

// ClientCount returns the number of clients subscribed to the conversation.
func (b *Broadcaster) ClientCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[conversationID])
}

// FormatSSE renders an event in the text/event-stream wire format.
func FormatSSE(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + event.Type + "\ndata: " + string(data) + "\n\n"), nil
}
