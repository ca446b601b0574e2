package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatreplay/internal/events"
)

// EventsHandler streams a conversation's live events over SSE.
type EventsHandler struct {
	broadcaster *events.Broadcaster
	logger      *slog.Logger
}

func NewEventsHandler(b *events.Broadcaster, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{broadcaster: b, logger: logger}
}

// HandleEvents handles GET /api/conversations/{id}/events.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	eventCh := h.broadcaster.Subscribe(conversationID)
	defer h.broadcaster.Unsubscribe(conversationID, eventCh)

	if err := stream.Send(events.Event{Type: "connected", Data: map[string]string{"conversation_id": conversationID}}); err != nil {
		return
	}
	h.logger.Debug("sse client connected", "conversation_id", conversationID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse client disconnected", "conversation_id", conversationID)
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := stream.Send(event); err != nil {
				h.logger.Debug("sse write failed", "conversation_id", conversationID, "error", err)
				return
			}
		}
	}
}
