// File: internal/replay/guard.go
package replay

import (
	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/services/ai"
)

// CheckSettings reports every model and addon referenced by settings that the registry
// does not currently allow. Assistants are checked together with the model they delegate to.
func CheckSettings(reg Registry, settings ...domain.ModelSettings) error {
	var bad DisallowedModelError
	seenModels := make(map[string]bool)
	seenAddons := make(map[string]bool)
	badModel := func(id string) {
		if !seenModels[id] {
			seenModels[id] = true
			bad.Models = append(bad.Models, id)
		}
	}

	for _, s := range settings {
		entity, ok := reg.Resolve(s.ModelID)
		if !ok {
			badModel(s.ModelID)
		} else if sub := entity.ResolveSubModel(s.AssistantModelID); sub != "" {
			if _, ok := reg.Resolve(sub); !ok {
				badModel(sub)
			}
		}
		for _, addon := range addonsFor(s, entity) {
			if seenAddons[addon] {
				continue
			}
			seenAddons[addon] = true
			if _, ok := reg.ResolveAddon(addon); !ok {
				bad.Addons = append(bad.Addons, addon)
			}
		}
	}

	if len(bad.Models) > 0 || len(bad.Addons) > 0 {
		return &bad
	}
	return nil
}

// BuildRequest turns settings and history into a transport request.
func BuildRequest(reg Registry, s domain.ModelSettings, history []domain.Message) ai.Request {
	entity, _ := reg.Resolve(s.ModelID)
	req := ai.Request{
		Model:        s.ModelID,
		SystemPrompt: s.Prompt,
		Temperature:  s.Temperature,
		Addons:       addonsFor(s, entity),
		History:      history,
	}
	if entity != nil {
		req.AssistantModel = entity.ResolveSubModel(s.AssistantModelID)
	}
	return req
}

// addonsFor returns the explicitly selected addons, else the entity's defaults.
func addonsFor(s domain.ModelSettings, entity domain.Entity) []string {
	if len(s.SelectedAddons) > 0 {
		return s.SelectedAddons
	}
	if entity != nil {
		return entity.DefaultAddons()
	}
	return nil
}
