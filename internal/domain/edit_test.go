package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chat(contents ...string) *Conversation {
	c := &Conversation{ID: "c", Settings: ModelSettings{ModelID: "gpt-4"}}
	c.Messages = append(c.Messages, Message{Role: RoleSystem, Content: "sys"})
	for i, content := range contents {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		c.Messages = append(c.Messages, Message{Role: role, Content: content})
	}
	return c
}

func contents(c *Conversation) []string {
	var out []string
	for _, m := range WithoutSystem(c.Messages) {
		out = append(out, m.Content)
	}
	return out
}

func TestMessageIndex_SkipsSystem(t *testing.T) {
	c := chat("q1", "a1")
	i, ok := c.MessageIndex(0)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = c.MessageIndex(2)
	assert.False(t, ok)
	_, ok = c.MessageIndex(-1)
	assert.False(t, ok)
}

func TestDeletePair(t *testing.T) {
	tests := []struct {
		name string
		row  int
		want []string
	}{
		{"user row takes answer", 0, []string{"q2", "a2", "q3"}},
		{"answer row takes question", 3, []string{"q1", "a1", "q3"}},
		{"unanswered last question", 4, []string{"q1", "a1", "q2", "a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chat("q1", "a1", "q2", "a2", "q3")
			require.NoError(t, c.DeletePair(tt.row))
			assert.Equal(t, tt.want, contents(c))
			assert.Equal(t, RoleSystem, c.Messages[0].Role)
		})
	}

	c := chat("q1")
	assert.ErrorIs(t, c.DeletePair(5), ErrRowOutOfRange)
}

func TestDeletePair_UserOnlyHistory(t *testing.T) {
	c := &Conversation{ID: "c", Messages: []Message{
		NewUserMessage("1+2"), NewUserMessage("2+3"), NewUserMessage("3+4"),
	}}
	require.NoError(t, c.DeletePair(0))
	assert.Equal(t, []string{"2+3", "3+4"}, contents(c))
}

func TestEditUserMessage(t *testing.T) {
	c := chat("q1", "a1", "q2", "a2")
	require.NoError(t, c.EditUserMessage(2, "q2 edited"))
	assert.Equal(t, []string{"q1", "a1", "q2 edited"}, contents(c))

	assert.ErrorIs(t, c.EditUserMessage(1, "x"), ErrNotUserRow)
	assert.ErrorIs(t, c.EditUserMessage(9, "x"), ErrRowOutOfRange)
}

func TestDropTrailingAnswerAndRate(t *testing.T) {
	c := chat("q1", "a1")
	require.NoError(t, c.Rate(1, RatingLike))
	assert.Equal(t, RatingLike, c.Messages[2].Rating)
	assert.ErrorIs(t, c.Rate(0, RatingLike), ErrNotAnswerRow)
	assert.Error(t, c.Rate(1, Rating("meh")))

	assert.True(t, c.DropTrailingAnswer())
	assert.False(t, c.DropTrailingAnswer())
	assert.Equal(t, []string{"q1"}, contents(c))
}
