package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/services"
)

type ReplayHandler struct {
	ReplayService *services.ReplayService
}

func NewReplayHandler(rs *services.ReplayService) *ReplayHandler {
	return &ReplayHandler{ReplayService: rs}
}

func (h *ReplayHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.ReplayService.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Start sends the next queued message. The answer streams in the background; follow
// it on the events endpoint, or pass ?wait=true to get the status once it settles.
func (h *ReplayHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.ReplayService.Start)
}

func (h *ReplayHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.ReplayService.Retry)
}

func (h *ReplayHandler) Stop(w http.ResponseWriter, r *http.Request) {
	st, err := h.ReplayService.Stop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// OverrideSettings handles PUT /api/replays/{id}/settings.
func (h *ReplayHandler) OverrideSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.ModelSettings
	if !decodeJSON(w, r, &settings) {
		return
	}
	st, err := h.ReplayService.OverrideSettings(r.Context(), mux.Vars(r)["id"], settings)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ReplayHandler) run(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (*services.ReplayStatus, error)) {
	id := mux.Vars(r)["id"]
	st, err := action(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, st)
		return
	}
	if _, err := h.ReplayService.Wait(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	if st, err = h.ReplayService.Status(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
