package handlers

import (
	"net/http"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/registry"
)

type ModelHandler struct {
	registry *registry.Registry
}

func NewModelHandler(reg *registry.Registry) *ModelHandler {
	return &ModelHandler{registry: reg}
}

// ListModels handles GET /api/models: every entity that may be invoked right now.
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	entities := h.registry.List()
	views := make([]domain.EntityView, 0, len(entities))
	for _, e := range entities {
		views = append(views, domain.ViewOf(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": views,
		"addons": h.registry.Addons(),
	})
}
