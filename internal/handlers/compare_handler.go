package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/iyunix/go-chatreplay/internal/compare"
	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/events"
	"github.com/iyunix/go-chatreplay/internal/services"
)

type CompareHandler struct {
	CompareService *services.CompareService
	markdown       goldmark.Markdown
	logger         *slog.Logger
}

func NewCompareHandler(cs *services.CompareService, logger *slog.Logger) *CompareHandler {
	return &CompareHandler{
		CompareService: cs,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		logger: logger,
	}
}

type createComparisonRequest struct {
	Left  domain.ModelSettings `json:"left"`
	Right domain.ModelSettings `json:"right"`
}

type selectionRequest struct {
	IDs []string `json:"ids"`
}

// cellView is a compare cell with its content rendered for display.
type cellView struct {
	compare.Cell
	ContentHTML string `json:"content_html"`
}

type rowView struct {
	Index int        `json:"index"`
	Cells []cellView `json:"cells"`
}

type compareView struct {
	ConversationIDs    []string        `json:"conversation_ids"`
	Rows               []rowView       `json:"rows"`
	HasNewSelection    bool            `json:"has_new_selection"`
	IsLastMessageError bool            `json:"is_last_message_error"`
	CompareMode        bool            `json:"compare_mode"`
	RegenerateAllowed  map[string]bool `json:"regenerate_allowed"`
}

func (h *CompareHandler) CreateComparison(w http.ResponseWriter, r *http.Request) {
	var req createComparisonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	convs, err := h.CompareService.CreateComparison(r.Context(), req.Left, req.Right)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, convs)
}

// Select handles PUT /api/compare/selection.
func (h *CompareHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.CompareService.Select(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(v))
}

func (h *CompareHandler) View(w http.ResponseWriter, r *http.Request) {
	v, err := h.CompareService.View(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.render(v))
}

// Candidates handles GET /api/compare/candidates?current={id}&show_all=true.
func (h *CompareHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := q.Get("current")
	if current == "" {
		writeError(w, "current is required", http.StatusBadRequest)
		return
	}
	showAll, _ := strconv.ParseBool(q.Get("show_all"))
	list, err := h.CompareService.Candidates(r.Context(), current, showAll)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SendToBoth handles POST /api/compare/messages.
func (h *CompareHandler) SendToBoth(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.both(w, r, func(ctx context.Context, onDelta func(id, delta string) error) ([]services.SideResult, error) {
		return h.CompareService.SendToBoth(ctx, req.Content, onDelta)
	})
}

// EditRow handles PUT /api/compare/rows/{row}.
func (h *CompareHandler) EditRow(w http.ResponseWriter, r *http.Request) {
	row, ok := pathInt(w, r, "row")
	if !ok {
		return
	}
	var req messageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.both(w, r, func(ctx context.Context, onDelta func(id, delta string) error) ([]services.SideResult, error) {
		return h.CompareService.EditRow(ctx, row, req.Content, onDelta)
	})
}

func (h *CompareHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	row, ok := pathInt(w, r, "row")
	if !ok {
		return
	}
	results, err := h.CompareService.DeleteRow(r.Context(), row)
	if results == nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// RegenerateSide handles POST /api/compare/sides/{id}/regenerate.
func (h *CompareHandler) RegenerateSide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.both(w, r, func(ctx context.Context, onDelta func(id, delta string) error) ([]services.SideResult, error) {
		var sideDelta func(string) error
		if onDelta != nil {
			sideDelta = func(delta string) error { return onDelta(id, delta) }
		}
		c, err := h.CompareService.RegenerateSide(ctx, id, sideDelta)
		if c == nil {
			return nil, err
		}
		res := services.SideResult{ConversationID: id, Conversation: c}
		if err != nil {
			res.Error = err.Error()
		}
		return []services.SideResult{res}, err
	})
}

// both runs an action over the compared sides. Per-side failures are reported inside
// the results; the request fails only when no side ran.
func (h *CompareHandler) both(w http.ResponseWriter, r *http.Request, call func(context.Context, func(id, delta string) error) ([]services.SideResult, error)) {
	if !wantsStream(r) {
		results, err := call(r.Context(), nil)
		if results == nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	results, err := call(r.Context(), func(id, delta string) error {
		return stream.Send(events.Event{Type: "delta", Data: map[string]string{"conversation_id": id, "delta": delta}})
	})
	if results == nil {
		stream.finish(w, nil, err)
		return
	}
	stream.finish(w, results, nil)
}

func (h *CompareHandler) render(v compare.View) compareView {
	out := compareView{
		ConversationIDs:    v.ConversationIDs,
		Rows:               make([]rowView, 0, len(v.Rows)),
		HasNewSelection:    v.HasNewSelection,
		IsLastMessageError: v.IsLastMessageError,
		CompareMode:        len(v.ConversationIDs) == compare.MaxSelected,
		RegenerateAllowed:  v.RegenerateAllowed(),
	}
	for _, row := range v.Rows {
		rv := rowView{Index: row.Index, Cells: make([]cellView, 0, len(row.Cells))}
		for _, cell := range row.Cells {
			rv.Cells = append(rv.Cells, cellView{Cell: cell, ContentHTML: h.toHTML(cell.Message.Content)})
		}
		out.Rows = append(out.Rows, rv)
	}
	return out
}

func (h *CompareHandler) toHTML(content string) string {
	if content == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(content), &buf); err != nil {
		h.logger.Warn("markdown render failed", "error", err)
		return ""
	}
	return buf.String()
}
