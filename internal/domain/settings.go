// File: internal/domain/settings.go
package domain

import (
	"errors"
	"fmt"
)

// DefaultTemperature is applied when a conversation arrives without one.
const DefaultTemperature = 1.0

// ModelSettings is the model configuration a conversation (or a single message) was made with.
type ModelSettings struct {
	ModelID          string   `json:"model_id"`
	AssistantModelID string   `json:"assistant_model_id,omitempty"`
	Temperature      float64  `json:"temperature"`
	Prompt           string   `json:"prompt,omitempty"`
	SelectedAddons   []string `json:"selected_addons,omitempty"`
}

// Validate checks the settings are usable for an invocation.
func (s ModelSettings) Validate() error {
	if s.ModelID == "" {
		return errors.New("model id is required")
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature %.2f out of range [0, 1]", s.Temperature)
	}
	return nil
}

// Clone returns a deep copy of the settings.
func (s ModelSettings) Clone() ModelSettings {
	out := s
	if s.SelectedAddons != nil {
		out.SelectedAddons = append([]string(nil), s.SelectedAddons...)
	}
	return out
}

// WithModel returns a copy pointing at another model id.
func (s ModelSettings) WithModel(id string) ModelSettings {
	out := s.Clone()
	out.ModelID = id
	return out
}
