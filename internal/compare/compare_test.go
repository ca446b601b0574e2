package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

func conv(id string, msgs ...domain.Message) *domain.Conversation {
	return &domain.Conversation{ID: id, Messages: msgs, Settings: domain.ModelSettings{ModelID: "gpt-4"}}
}

func user(s string) domain.Message { return domain.NewUserMessage(s) }

func answer(s string) domain.Message { return domain.Message{Role: domain.RoleAssistant, Content: s} }

func failed(s string) domain.Message {
	m := answer(s)
	m.Error = &domain.MessageError{Message: "backend unavailable"}
	return m
}

func system() domain.Message { return domain.Message{Role: domain.RoleSystem, Content: "be nice"} }

func TestMerge_RowCountAndPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		a, b int
	}{
		{"equal", 4, 4},
		{"left shorter", 2, 5},
		{"right shorter", 3, 1},
		{"one empty", 0, 2},
		{"both empty", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			build := func(id string, n int) *domain.Conversation {
				c := conv(id, system())
				for i := 0; i < n; i++ {
					if i%2 == 0 {
						c.Messages = append(c.Messages, user("q"))
					} else {
						c.Messages = append(c.Messages, answer("a"))
					}
				}
				return c
			}
			a, b := build("a", tt.a), build("b", tt.b)
			v := Merge(nil, []*domain.Conversation{a, b})

			want := tt.a
			if tt.b > want {
				want = tt.b
			}
			require.Len(t, v.Rows, want)
			for i, row := range v.Rows {
				assert.Equal(t, i, row.Index)
				require.Len(t, row.Cells, 2)
				for j, n := range []int{tt.a, tt.b} {
					cell := row.Cells[j]
					assert.NotEqual(t, domain.RoleSystem, cell.Message.Role)
					if i >= n {
						assert.True(t, cell.Placeholder)
						assert.Equal(t, domain.Message{Role: domain.RoleAssistant}, cell.Message)
						assert.Equal(t, -1, cell.MessageIndex)
					} else {
						assert.False(t, cell.Placeholder)
						assert.Equal(t, i+1, cell.MessageIndex)
					}
				}
			}
		})
	}
}

func TestMerge_IsPure(t *testing.T) {
	a := conv("a", system(), user("1+2"), answer("3"))
	b := conv("b", user("1+2"), failed(""))
	convs := []*domain.Conversation{a, b}
	prev := []string{"x"}

	first := Merge(prev, convs)
	first.Rows[0].Cells[0].Message.Content = "mutated"
	second := Merge(prev, convs)
	third := Merge(prev, convs)

	assert.Equal(t, second, third)
	assert.Equal(t, "1+2", a.Messages[1].Content)
	assert.Equal(t, []string{"x"}, prev)
}

func TestMerge_HasNewSelection(t *testing.T) {
	a, b, c := conv("a"), conv("b"), conv("c")

	assert.True(t, Merge(nil, []*domain.Conversation{a, b}).HasNewSelection)
	assert.False(t, Merge([]string{"a", "b"}, []*domain.Conversation{a, b}).HasNewSelection)
	assert.False(t, Merge([]string{"b", "c"}, []*domain.Conversation{a, b}).HasNewSelection)
	assert.True(t, Merge([]string{"c"}, []*domain.Conversation{a, b}).HasNewSelection)
	assert.False(t, Merge([]string{"a"}, nil).HasNewSelection)
	assert.True(t, Merge([]string{"a", "b"}, []*domain.Conversation{c}).HasNewSelection)
}

func TestMerge_IsLastMessageError(t *testing.T) {
	ok := conv("a", user("q"), answer("fine"))
	bad := conv("b", user("q"), failed("partial"))
	earlier := conv("c", user("q"), failed("x"), user("again"), answer("done"))

	v := Merge(nil, []*domain.Conversation{ok, bad})
	assert.True(t, v.IsLastMessageError)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, v.RegenerateAllowed())

	v = Merge(nil, []*domain.Conversation{ok, earlier})
	assert.False(t, v.IsLastMessageError, "only the final row counts")

	shortBad := conv("d", user("q"), failed("x"))
	longer := conv("e", user("q"), answer("a"), user("q2"))
	v = Merge(nil, []*domain.Conversation{shortBad, longer})
	assert.False(t, v.IsLastMessageError, "placeholder at the final row is not an error")

	both := Merge(nil, []*domain.Conversation{bad, conv("f", user("q"), failed(""))})
	assert.True(t, both.IsLastMessageError)
	assert.Equal(t, map[string]bool{"b": false, "f": false}, both.RegenerateAllowed())

	empty := Merge(nil, []*domain.Conversation{conv("g"), conv("h")})
	assert.Equal(t, map[string]bool{"g": false, "h": false}, empty.RegenerateAllowed())
}

func TestMerge_DeletedPairShiftsRows(t *testing.T) {
	left := conv("left", user("1+2"), user("2+3"), user("3+4"))
	right := conv("right", user("1+2"), user("2+3"), user("3+4"))

	for _, c := range []*domain.Conversation{left, right} {
		require.NoError(t, c.DeletePair(0))
	}
	v := Merge([]string{"left", "right"}, []*domain.Conversation{left, right})

	require.Len(t, v.Rows, 2)
	assert.Equal(t, "2+3", v.Rows[0].Cells[0].Message.Content)
	assert.Equal(t, "3+4", v.Rows[1].Cells[0].Message.Content)
	assert.Equal(t, "2+3", v.Rows[0].Cells[1].Message.Content)
}

func TestMerge_SelectedPairOfDifferentLengths(t *testing.T) {
	left := conv("left", user("q1"), answer("a1"))
	right := conv("right", user("q1"), answer("a1"), user("q2"))

	assert.Empty(t, Eligible(left, []*domain.Conversation{right}, false))

	v := Merge(nil, []*domain.Conversation{left, right})
	require.Len(t, v.Rows, 3)
	assert.True(t, v.Rows[2].Cells[0].Placeholder)
	assert.Equal(t, "", v.Rows[2].Cells[0].Message.Content)
	assert.Equal(t, "q2", v.Rows[2].Cells[1].Message.Content)
}

func TestEligible(t *testing.T) {
	current := conv("cur", system(), user("q"), answer("a"))
	same := conv("same", user("q"), answer("b"))
	longer := conv("longer", user("q"), answer("a"), user("q2"))
	withSystem := conv("sys", system(), system(), user("x"), answer("y"))

	got := Eligible(current, []*domain.Conversation{current, same, longer, withSystem, nil}, false)
	assert.Equal(t, []*domain.Conversation{same, withSystem}, got)

	got = Eligible(current, []*domain.Conversation{current, same, longer}, true)
	assert.Equal(t, []*domain.Conversation{same, longer}, got)
}

func TestSelectedSet(t *testing.T) {
	s := NewSelectedSet()
	assert.False(t, s.IsCompareMode())

	require.NoError(t, s.Set("a", "b"))
	assert.True(t, s.IsCompareMode())
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.True(t, s.Contains("b"))

	assert.ErrorIs(t, s.Set("a", "b", "c"), ErrTooManySelected)
	assert.ErrorIs(t, s.Set("a", "a"), ErrDuplicateID)
	assert.ErrorIs(t, s.Set(""), ErrEmptyID)
	assert.Equal(t, []string{"a", "b"}, s.IDs(), "failed updates leave the selection alone")

	assert.True(t, s.Remove("a"))
	assert.False(t, s.IsCompareMode())
	assert.Equal(t, []string{"b"}, s.IDs())
	assert.Equal(t, []string{"a", "b"}, s.Previous())
	assert.False(t, s.Remove("zzz"))

	require.NoError(t, s.Set())
	assert.Equal(t, 0, s.Len())
}
