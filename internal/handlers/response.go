package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatreplay/internal/events"
	"github.com/iyunix/go-chatreplay/internal/replay"
	"github.com/iyunix/go-chatreplay/internal/services"
)

const maxBodyBytes = 1 << 20

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorBody is the JSON shape of a failed service call.
type errorBody struct {
	Error  string   `json:"error"`
	Type   string   `json:"type,omitempty"`
	Models []string `json:"models,omitempty"`
	Addons []string `json:"addons,omitempty"`
}

// statusFor maps a service error type to an HTTP status.
func statusFor(t services.ErrorType) int {
	switch t {
	case services.ErrTypeValidation:
		return http.StatusBadRequest
	case services.ErrTypeNotFound:
		return http.StatusNotFound
	case services.ErrTypeBusy, services.ErrTypeConflict:
		return http.StatusConflict
	case services.ErrTypeDisallowed:
		return http.StatusForbidden
	case services.ErrTypeStreaming:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBodyFor(err error) (errorBody, int) {
	t, ok := services.ErrorTypeOf(err)
	if !ok {
		return errorBody{Error: "internal error"}, http.StatusInternalServerError
	}
	body := errorBody{Error: err.Error(), Type: string(t)}
	var se *services.ServiceError
	if errors.As(err, &se) {
		body.Error = se.Message
	}
	var dis *replay.DisallowedModelError
	if errors.As(err, &dis) {
		body.Models = dis.Models
		body.Addons = dis.Addons
	}
	return body, statusFor(t)
}

// writeServiceError renders err with the status its type maps to.
func writeServiceError(w http.ResponseWriter, err error) {
	body, status := errorBodyFor(err)
	writeJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || n < 0 {
		writeError(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// wantsStream reports whether the client asked for an event stream.
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// sseStream writes Server-Sent Events. Headers go out with the first event, so a
// request that fails before streaming can still get a plain JSON error.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	started bool
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseStream{w: w, flusher: flusher}, true
}

func (s *sseStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *sseStream) Send(event events.Event) error {
	data, err := events.FormatSSE(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// finish ends a streamed call with an "error" event when err is set and a "done" event
// carrying result. A call that failed before anything was streamed gets a plain JSON error.
func (s *sseStream) finish(w http.ResponseWriter, result interface{}, err error) {
	if err != nil && result == nil && !s.Started() {
		writeServiceError(w, err)
		return
	}
	if err != nil {
		body, _ := errorBodyFor(err)
		_ = s.Send(events.Event{Type: "error", Data: body})
	}
	if result != nil {
		_ = s.Send(events.Event{Type: "done", Data: result})
	}
}
