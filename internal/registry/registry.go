// File: internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// File is the on-disk layout of the registry definition.
type File struct {
	Models       []domain.Model       `yaml:"models"`
	Assistants   []domain.Assistant   `yaml:"assistants"`
	Applications []domain.Application `yaml:"applications"`
	Addons       []domain.Addon       `yaml:"addons"`
}

// ModelLister is the part of the OpenAI client used by Sync.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Registry resolves model, assistant and application ids. An id that does not resolve
// is treated as currently disallowed.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]domain.Entity
	addons   map[string]domain.Addon
	logger   Logger
}

// Logger is the logging interface used by the registry.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// New creates an empty registry.
func New(logger Logger) *Registry {
	return &Registry{
		entities: make(map[string]domain.Entity),
		addons:   make(map[string]domain.Addon),
		logger:   logger,
	}
}

// LoadFile reads a YAML definition and adds its contents to the registry.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read registry file: %w", err)
	}
	return r.LoadYAML(data)
}

// LoadYAML parses a YAML definition and adds its contents to the registry.
func (r *Registry) LoadYAML(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse registry file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range f.Models {
		r.put(m)
	}
	for _, a := range f.Assistants {
		r.put(a)
	}
	for _, a := range f.Applications {
		r.put(a)
	}
	for _, a := range f.Addons {
		if a.ID == "" {
			continue
		}
		r.addons[a.ID] = a
	}
	r.logger.Info("model registry loaded",
		"models", len(f.Models), "assistants", len(f.Assistants),
		"applications", len(f.Applications), "addons", len(f.Addons))
	return nil
}

// Register adds or replaces a single entity.
func (r *Registry) Register(e domain.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(e)
}

// RegisterAddon adds or replaces an addon.
func (r *Registry) RegisterAddon(a domain.Addon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addons[a.ID] = a
}

// Remove drops an entity, making it disallowed.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, id)
}

func (r *Registry) put(e domain.Entity) {
	if e.ID() == "" {
		return
	}
	r.entities[e.ID()] = e
}

// Resolve looks up an entity by id.
func (r *Registry) Resolve(id string) (domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// ResolveAddon looks up an addon by id.
func (r *Registry) ResolveAddon(id string) (domain.Addon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addons[id]
	return a, ok
}

// List returns every entity ordered by kind then id.
func (r *Registry) List() []domain.Entity {
	r.mu.RLock()
	out := make([]domain.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind() != out[j].Kind() {
			return out[i].Kind() < out[j].Kind()
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Addons returns every addon ordered by id.
func (r *Registry) Addons() []domain.Addon {
	r.mu.RLock()
	out := make([]domain.Addon, 0, len(r.addons))
	for _, a := range r.addons {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sync adds the models reported by the backend. Entities already defined are kept as is,
// so file metadata wins over the bare ids the backend reports.
func (r *Registry) Sync(ctx context.Context, lister ModelLister) (int, error) {
	list, err := lister.ListModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("list backend models: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, m := range list.Models {
		if m.ID == "" {
			continue
		}
		if _, exists := r.entities[m.ID]; exists {
			continue
		}
		r.entities[m.ID] = domain.Model{EntityInfo: domain.EntityInfo{EntityID: m.ID}}
		added++
	}
	r.logger.Info("model registry synced with backend", "reported", len(list.Models), "added", added)
	return added, nil
}
