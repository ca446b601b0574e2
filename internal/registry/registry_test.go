package registry

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}

const sampleYAML = `
models:
  - id: gpt-35
    name: GPT-3.5
  - id: gpt-4
    name: GPT-4
    default_addons: [search]
assistants:
  - id: helper
    name: Helper
    default_model: gpt-4
applications:
  - id: summarizer
addons:
  - id: search
    name: Web search
  - id: retrieval
`

func TestRegistry_LoadYAML(t *testing.T) {
	r := New(nopLogger{})
	require.NoError(t, r.LoadYAML([]byte(sampleYAML)))

	m, ok := r.Resolve("gpt-4")
	require.True(t, ok)
	assert.Equal(t, domain.EntityModel, m.Kind())
	assert.Equal(t, "GPT-4", m.Name())
	assert.Equal(t, []string{"search"}, m.DefaultAddons())

	a, ok := r.Resolve("helper")
	require.True(t, ok)
	assert.Equal(t, domain.EntityAssistant, a.Kind())
	assert.Equal(t, "gpt-4", a.ResolveSubModel(""))

	app, ok := r.Resolve("summarizer")
	require.True(t, ok)
	assert.Equal(t, domain.EntityApplication, app.Kind())
	assert.Equal(t, "summarizer", app.Name())

	_, ok = r.Resolve("gpt-5")
	assert.False(t, ok)

	_, ok = r.ResolveAddon("retrieval")
	assert.True(t, ok)
	assert.Len(t, r.Addons(), 2)
	assert.Len(t, r.List(), 4)
}

func TestRegistry_LoadYAML_Invalid(t *testing.T) {
	r := New(nopLogger{})
	assert.Error(t, r.LoadYAML([]byte("models: [")))
}

type fakeLister struct {
	models []openai.Model
	err    error
}

func (f fakeLister) ListModels(context.Context) (openai.ModelsList, error) {
	return openai.ModelsList{Models: f.models}, f.err
}

func TestRegistry_Sync(t *testing.T) {
	r := New(nopLogger{})
	require.NoError(t, r.LoadYAML([]byte(sampleYAML)))

	added, err := r.Sync(context.Background(), fakeLister{models: []openai.Model{{ID: "gpt-4"}, {ID: "llama-3"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	m, ok := r.Resolve("gpt-4")
	require.True(t, ok)
	assert.Equal(t, "GPT-4", m.Name(), "file metadata is kept")

	_, ok = r.Resolve("llama-3")
	assert.True(t, ok)

	_, err = r.Sync(context.Background(), fakeLister{err: errors.New("boom")})
	assert.Error(t, err)
}

func TestRegistry_Remove(t *testing.T) {
	r := New(nopLogger{})
	r.Register(domain.Model{EntityInfo: domain.EntityInfo{EntityID: "gpt-4"}})
	r.Remove("gpt-4")
	_, ok := r.Resolve("gpt-4")
	assert.False(t, ok)
}
