package conversation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

func newGormStore(t *testing.T) ConversationStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return NewGormRepository(db)
}

func testConversation(id string) *domain.Conversation {
	return &domain.Conversation{
		ID:       id,
		Name:     "Chat " + id,
		Settings: domain.ModelSettings{ModelID: "gpt-4", Temperature: 0.7},
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello", Model: &domain.ModelRef{ID: "gpt-4"}},
		},
	}
}

// storeContract runs the behaviour every ConversationStore backend must share.
func storeContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testConversation("a")))
	assert.ErrorIs(t, store.Create(ctx, testConversation("a")), ErrConversationExists)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Chat a", got.Name)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "gpt-4", got.Messages[2].Model.ID)
	assert.Nil(t, got.Replay)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	replay, err := domain.NewReplay([]domain.ReplayMessage{{Content: "hi"}}, true)
	require.NoError(t, err)
	name := "Renamed"
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "only"}}
	require.NoError(t, store.Update(ctx, "a", Patch{Name: &name, Messages: &msgs, Replay: &replay}))

	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Len(t, got.Messages, 1)
	require.NotNil(t, got.Replay)
	assert.True(t, got.Replay.ReplayAsIs)
	assert.Equal(t, 0.7, got.Settings.Temperature, "untouched fields survive")

	assert.ErrorIs(t, store.Update(ctx, "missing", Patch{Name: &name}), ErrConversationNotFound)

	folder := "work"
	b := testConversation("b")
	b.FolderID = &folder
	require.NoError(t, store.Create(ctx, b))

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inFolder, err := store.List(ctx, ListFilter{FolderID: &folder})
	require.NoError(t, err)
	require.Len(t, inFolder, 1)
	assert.Equal(t, "b", inFolder[0].ID)
	assert.Equal(t, 2, inFolder[0].MessageCount)

	root := ""
	unfiled, err := store.List(ctx, ListFilter{FolderID: &root})
	require.NoError(t, err)
	require.Len(t, unfiled, 1)
	assert.Equal(t, "a", unfiled[0].ID)
	assert.True(t, unfiled[0].IsReplay)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.ErrorIs(t, store.Delete(ctx, "a"), ErrConversationNotFound)
}

func TestGormRepository(t *testing.T) {
	storeContract(t, newGormStore(t))
}

func TestMemoryRepository(t *testing.T) {
	storeContract(t, NewMemoryRepository())
}

func TestGormRepository_RejectsInvalid(t *testing.T) {
	store := newGormStore(t)
	c := testConversation("x")
	c.Settings.Temperature = 3
	assert.Error(t, store.Create(context.Background(), c))
}

func TestPatch_ClearReplay(t *testing.T) {
	c := testConversation("a")
	c.Replay = &domain.Replay{UserMessagesStack: []domain.ReplayMessage{{Content: "x"}}}
	var none *domain.Replay
	Patch{Replay: &none}.Apply(c)
	assert.Nil(t, c.Replay)
}

func TestRemoteRepository(t *testing.T) {
	var lastPatch map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/conversations/a":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(testConversation("a"))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/conversations":
			assert.Equal(t, "work", r.URL.Query().Get("folder_id"))
			_ = json.NewEncoder(w).Encode([]domain.ConversationSummary{{ID: "a"}})
		case r.Method == http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(body, &lastPatch))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusConflict)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("quota exceeded"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, err := NewRemoteRepository(&RemoteConfig{BaseURL: srv.URL + "/v1/", Token: "secret"})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Chat a", got.Name)

	_, err = store.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	folder := "work"
	list, err := store.List(ctx, ListFilter{FolderID: &folder})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	var noFolder *string
	require.NoError(t, store.Update(ctx, "a", Patch{FolderID: &noFolder}))
	assert.Equal(t, "null", string(lastPatch["folder_id"]))
	assert.NotContains(t, lastPatch, "messages")

	assert.ErrorIs(t, store.Create(ctx, testConversation("a")), ErrConversationExists)

	err = store.Delete(ctx, "a")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "quota exceeded", statusErr.Body)
}

func TestRemoteConfig_Validate(t *testing.T) {
	_, err := NewRemoteRepository(&RemoteConfig{})
	assert.Error(t, err)
}
