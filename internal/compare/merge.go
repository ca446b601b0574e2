// File: internal/compare/merge.go
package compare

import "github.com/iyunix/go-chatreplay/internal/domain"

// Cell is one conversation's entry at a row.
type Cell struct {
	ConversationID string         `json:"conversation_id"`
	Message        domain.Message `json:"message"`
	Index          int            `json:"index"`
	// MessageIndex points into the conversation's full message list, -1 for placeholders.
	MessageIndex int  `json:"message_index"`
	Placeholder  bool `json:"placeholder,omitempty"`
}

// Row aligns the selected conversations at one position.
type Row struct {
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

// View is the merged, row-aligned rendering of the selection.
type View struct {
	ConversationIDs    []string `json:"conversation_ids"`
	Rows               []Row    `json:"rows"`
	HasNewSelection    bool     `json:"has_new_selection"`
	IsLastMessageError bool     `json:"is_last_message_error"`
}

// Merge aligns conversations row by row. System messages never take part; a conversation
// shorter than the longest one is padded with empty assistant placeholders. previousIDs is
// the selection of the previous call and only feeds HasNewSelection. Merge reads its
// inputs and nothing else.
func Merge(previousIDs []string, convs []*domain.Conversation) View {
	v := View{
		ConversationIDs: make([]string, 0, len(convs)),
		Rows:            []Row{},
	}

	type side struct {
		id       string
		messages []domain.Message
		indexes  []int
	}
	sides := make([]side, 0, len(convs))
	rows := 0
	for _, c := range convs {
		if c == nil {
			continue
		}
		s := side{id: c.ID}
		for i, m := range c.Messages {
			if m.Role == domain.RoleSystem {
				continue
			}
			s.messages = append(s.messages, m)
			s.indexes = append(s.indexes, i)
		}
		if len(s.messages) > rows {
			rows = len(s.messages)
		}
		sides = append(sides, s)
		v.ConversationIDs = append(v.ConversationIDs, c.ID)
	}

	for i := 0; i < rows; i++ {
		row := Row{Index: i, Cells: make([]Cell, 0, len(sides))}
		for _, s := range sides {
			cell := Cell{ConversationID: s.id, Index: i, MessageIndex: -1}
			if i < len(s.messages) {
				cell.Message = s.messages[i].Clone()
				cell.MessageIndex = s.indexes[i]
			} else {
				cell.Message = domain.Message{Role: domain.RoleAssistant, Content: ""}
				cell.Placeholder = true
			}
			row.Cells = append(row.Cells, cell)
		}
		v.Rows = append(v.Rows, row)
	}

	v.HasNewSelection = len(v.ConversationIDs) > 0 && !intersects(previousIDs, v.ConversationIDs)
	if last, ok := v.LastRow(); ok {
		for _, cell := range last.Cells {
			if cell.Message.HasError() {
				v.IsLastMessageError = true
				break
			}
		}
	}
	return v
}

// LastRow returns the final row, if any.
func (v View) LastRow() (Row, bool) {
	if len(v.Rows) == 0 {
		return Row{}, false
	}
	return v.Rows[len(v.Rows)-1], true
}

// RegenerateAllowed reports per conversation whether its final row may be regenerated.
// A side whose final message errored must be resolved first; the other side is unaffected.
func (v View) RegenerateAllowed() map[string]bool {
	out := make(map[string]bool, len(v.ConversationIDs))
	last, ok := v.LastRow()
	for _, id := range v.ConversationIDs {
		out[id] = false
	}
	if !ok {
		return out
	}
	for _, cell := range last.Cells {
		out[cell.ConversationID] = !cell.Message.HasError()
	}
	return out
}

func intersects(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}
