package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

func newCompareService(t *testing.T, f *chatFixture) *CompareService {
	t.Helper()
	s, err := NewCompareService(f.chats, nil)
	require.NoError(t, err)
	return s
}

func TestCompareService_DeleteRowOnBothSides(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "left", "1+2", "2+3", "3+4")
	f.seed(t, "right", "1+2", "2+3", "3+4")

	_, err := s.Select(ctx, []string{"left", "right"})
	require.NoError(t, err)

	results, err := s.DeleteRow(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	v, err := s.View(ctx)
	require.NoError(t, err)
	require.Len(t, v.Rows, 2)
	for _, cell := range v.Rows[0].Cells {
		assert.Equal(t, "2+3", cell.Message.Content)
	}
}

func TestCompareService_SendToBothSidesAreIndependent(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()

	pair, err := s.CreateComparison(ctx,
		domain.ModelSettings{ModelID: testModel, Temperature: 0.3},
		domain.ModelSettings{ModelID: brokenModel, Temperature: 0.3})
	require.NoError(t, err)
	left, right := pair[0].ID, pair[1].ID
	assert.True(t, s.IsCompareMode())
	assert.Equal(t, "Compare: "+testModel, pair[0].Name)

	var mu sync.Mutex
	seen := map[string]string{}
	results, err := s.SendToBoth(ctx, "hi", func(id, delta string) error {
		mu.Lock()
		seen[id] += delta
		mu.Unlock()
		return nil
	})
	require.Error(t, err)
	require.Len(t, results, 2)

	assert.Empty(t, results[0].Error)
	assert.Equal(t, "re: hi", results[0].Conversation.LastMessage().Content)
	assert.NotEmpty(t, results[1].Error)
	assert.Equal(t, "re: hi", seen[left])
	assert.Equal(t, "re: ", seen[right])

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.True(t, v.IsLastMessageError)
	allowed := v.RegenerateAllowed()
	assert.True(t, allowed[left])
	assert.False(t, allowed[right])

	_, err = s.RegenerateSide(ctx, right, nil)
	assert.Equal(t, ErrTypeConflict, typeOf(err))

	regenerated, err := s.RegenerateSide(ctx, left, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "re: hi"}, messageContents(regenerated))

	_, err = s.RegenerateSide(ctx, "elsewhere", nil)
	assert.Equal(t, ErrTypeValidation, typeOf(err))
}

func TestCompareService_EditRow(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "left", "first", "second")
	f.seed(t, "right", "first", "second")
	_, err := s.Select(ctx, []string{"left", "right"})
	require.NoError(t, err)

	results, err := s.EditRow(ctx, 0, "changed", nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, []string{"changed", "re: changed"}, messageContents(r.Conversation))
	}
}

func TestCompareService_RequiresTwoSides(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "only", "q")
	_, err := s.Select(ctx, []string{"only"})
	require.NoError(t, err)

	_, err = s.SendToBoth(ctx, "hi", nil)
	assert.Equal(t, ErrTypeConflict, typeOf(err))
	assert.False(t, s.IsCompareMode())
}

func TestCompareService_Select(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "a", "q")
	f.seed(t, "b", "q")
	f.seed(t, "c", "q")

	_, err := s.Select(ctx, []string{"a", "missing"})
	assert.Equal(t, ErrTypeNotFound, typeOf(err))

	_, err = s.Select(ctx, []string{"a", "b", "c"})
	assert.Equal(t, ErrTypeValidation, typeOf(err))

	v, err := s.Select(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, v.HasNewSelection)
	assert.Equal(t, []string{"a", "b"}, s.Selection())

	v, err = s.View(ctx)
	require.NoError(t, err)
	assert.False(t, v.HasNewSelection)
}

func TestCompareService_DeletedConversationLeavesCompareMode(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "a", "q")
	f.seed(t, "b", "q")
	_, err := s.Select(ctx, []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, f.chats.DeleteConversation(ctx, "a"))
	assert.False(t, s.IsCompareMode())
	assert.Equal(t, []string{"b"}, s.Selection())
}

func TestCompareService_Candidates(t *testing.T) {
	f := newChatFixture(t)
	s := newCompareService(t, f)
	ctx := context.Background()
	f.seed(t, "a", "q1", "q2")
	f.seed(t, "b", "q1", "q2")
	f.seed(t, "c", "q1", "q2", "q3")

	same, err := s.Candidates(ctx, "a", false)
	require.NoError(t, err)
	require.Len(t, same, 1)
	assert.Equal(t, "b", same[0].ID)

	all, err := s.Candidates(ctx, "a", true)
	require.NoError(t, err)
	ids := []string{}
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)

	_, err = s.Candidates(ctx, "missing", false)
	assert.Equal(t, ErrTypeNotFound, typeOf(err))
}
