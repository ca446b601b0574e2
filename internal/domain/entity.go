// File: internal/domain/entity.go
package domain

// EntityKind tags the three kinds of thing a conversation can talk to.
type EntityKind string

const (
	EntityModel       EntityKind = "model"
	EntityAssistant   EntityKind = "assistant"
	EntityApplication EntityKind = "application"
)

// Entity is the capability set shared by models, assistants and applications.
type Entity interface {
	ID() string
	Kind() EntityKind
	Name() string
	IconURL() string
	DefaultAddons() []string
	// ResolveSubModel returns the model an invocation is delegated to. Only assistants
	// delegate; models and applications return an empty string.
	ResolveSubModel(requested string) string
}

// EntityInfo holds the display metadata common to every entity.
type EntityInfo struct {
	EntityID    string   `yaml:"id" json:"id"`
	DisplayName string   `yaml:"name" json:"name"`
	Icon        string   `yaml:"icon_url" json:"icon_url,omitempty"`
	Addons      []string `yaml:"default_addons" json:"default_addons,omitempty"`
}

func (e EntityInfo) ID() string      { return e.EntityID }
func (e EntityInfo) IconURL() string { return e.Icon }

func (e EntityInfo) Name() string {
	if e.DisplayName == "" {
		return e.EntityID
	}
	return e.DisplayName
}

func (e EntityInfo) DefaultAddons() []string {
	return append([]string(nil), e.Addons...)
}

// Model is a plain model served by the backend.
type Model struct {
	EntityInfo `yaml:",inline"`
}

func (Model) Kind() EntityKind { return EntityModel }
func (Model) ResolveSubModel(string) string { return "" }

// Assistant delegates invocations to an underlying model.
type Assistant struct {
	EntityInfo     `yaml:",inline"`
	DefaultModelID string `yaml:"default_model" json:"default_model"`
}

func (Assistant) Kind() EntityKind { return EntityAssistant }

// ResolveSubModel prefers the explicitly requested model over the assistant's default.
func (a Assistant) ResolveSubModel(requested string) string {
	if requested != "" {
		return requested
	}
	return a.DefaultModelID
}

// Application is a backend-hosted app with its own behaviour.
type Application struct {
	EntityInfo `yaml:",inline"`
}

func (Application) Kind() EntityKind { return EntityApplication }
func (Application) ResolveSubModel(string) string { return "" }

// Addon is an optional capability attached to an invocation (search, retrieval, ...).
type Addon struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// EntityView is the JSON shape of an entity for API listings.
type EntityView struct {
	ID             string     `json:"id"`
	Kind           EntityKind `json:"kind"`
	Name           string     `json:"name"`
	IconURL        string     `json:"icon_url,omitempty"`
	DefaultAddons  []string   `json:"default_addons,omitempty"`
	DefaultModelID string     `json:"default_model,omitempty"`
}

// ViewOf flattens an entity for serialization.
func ViewOf(e Entity) EntityView {
	return EntityView{
		ID:             e.ID(),
		Kind:           e.Kind(),
		Name:           e.Name(),
		IconURL:        e.IconURL(),
		DefaultAddons:  e.DefaultAddons(),
		DefaultModelID: e.ResolveSubModel(""),
	}
}
