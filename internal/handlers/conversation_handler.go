// File: internal/handlers/conversation_handler.go
package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/events"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
	"github.com/iyunix/go-chatreplay/internal/services"
)

type ConversationHandler struct {
	ChatService *services.ChatService
}

func NewConversationHandler(cs *services.ChatService) *ConversationHandler {
	return &ConversationHandler{ChatService: cs}
}

type createConversationRequest struct {
	Name     string                `json:"name"`
	FolderID *string               `json:"folder_id"`
	Settings *domain.ModelSettings `json:"settings"`
}

// updateConversationRequest carries the fields a PATCH may change. folder_id "" moves
// the conversation out of its folder.
type updateConversationRequest struct {
	Name     *string               `json:"name"`
	FolderID *string               `json:"folder_id"`
	Settings *domain.ModelSettings `json:"settings"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type ratingRequest struct {
	Rating domain.Rating `json:"rating"`
}

// ListConversations handles GET /api/conversations; ?folder= narrows to one folder.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	var filter conversation.ListFilter
	if values, ok := r.URL.Query()["folder"]; ok {
		folder := values[0]
		filter.FolderID = &folder
	}
	list, err := h.ChatService.ListConversations(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.ChatService.CreateConversation(r.Context(), services.CreateRequest{
		Name:     req.Name,
		FolderID: req.FolderID,
		Settings: req.Settings,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.ChatService.GetConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateConversation applies rename, move and settings changes in that order.
func (h *ConversationHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.FolderID == nil && req.Settings == nil {
		writeError(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var (
		c   *domain.Conversation
		err error
	)
	if req.Name != nil {
		if c, err = h.ChatService.RenameConversation(ctx, id, *req.Name); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if req.FolderID != nil {
		folder := req.FolderID
		if *folder == "" {
			folder = nil
		}
		if c, err = h.ChatService.MoveToFolder(ctx, id, folder); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if req.Settings != nil {
		if c, err = h.ChatService.UpdateSettings(ctx, id, *req.Settings); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.ChatService.DeleteConversation(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/conversations/{id}/messages. With Accept:
// text/event-stream the answer is streamed as "delta" events.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.invoke(w, r, func(ctx context.Context, onDelta func(string) error) (*domain.Conversation, error) {
		return h.ChatService.SendMessage(ctx, id, req.Content, onDelta)
	})
}

func (h *ConversationHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.invoke(w, r, func(ctx context.Context, onDelta func(string) error) (*domain.Conversation, error) {
		return h.ChatService.Regenerate(ctx, id, onDelta)
	})
}

// EditMessage handles PUT /api/conversations/{id}/messages/{row}.
func (h *ConversationHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	row, ok := pathInt(w, r, "row")
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.invoke(w, r, func(ctx context.Context, onDelta func(string) error) (*domain.Conversation, error) {
		return h.ChatService.EditMessage(ctx, id, row, req.Content, onDelta)
	})
}

func (h *ConversationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.ChatService.Stop(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	c, err := h.ChatService.GetConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	row, ok := pathInt(w, r, "row")
	if !ok {
		return
	}
	c, err := h.ChatService.DeleteMessagePair(r.Context(), mux.Vars(r)["id"], row)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) RateMessage(w http.ResponseWriter, r *http.Request) {
	row, ok := pathInt(w, r, "row")
	if !ok {
		return
	}
	var req ratingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.ChatService.RateMessage(r.Context(), mux.Vars(r)["id"], row, req.Rating)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DuplicateForReplay handles POST /api/conversations/{id}/replay.
func (h *ConversationHandler) DuplicateForReplay(w http.ResponseWriter, r *http.Request) {
	c, err := h.ChatService.DuplicateForReplay(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// invoke runs a streaming call, as SSE when the client asked for it and as one JSON
// response otherwise.
func (h *ConversationHandler) invoke(w http.ResponseWriter, r *http.Request, call func(context.Context, func(string) error) (*domain.Conversation, error)) {
	if !wantsStream(r) {
		c, err := call(r.Context(), nil)
		if err != nil && c == nil {
			writeServiceError(w, err)
			return
		}
		if err != nil {
			body, status := errorBodyFor(err)
			writeJSON(w, status, map[string]interface{}{"error": body, "conversation": c})
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	c, err := call(r.Context(), func(delta string) error {
		return stream.Send(events.Event{Type: "delta", Data: map[string]string{"delta": delta}})
	})
	var result interface{}
	if c != nil {
		result = c
	}
	stream.finish(w, result, err)
}
