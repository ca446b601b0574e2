// File: internal/domain/edit.go
package domain

import "errors"

var (
	ErrRowOutOfRange = errors.New("message row out of range")
	ErrNotUserRow    = errors.New("row is not a user message")
	ErrNotAnswerRow  = errors.New("row is not an assistant message")
)

// MessageIndex maps a row (position among non-system messages) to an index into Messages.
func (c *Conversation) MessageIndex(row int) (int, bool) {
	if row < 0 {
		return 0, false
	}
	n := 0
	for i, m := range c.Messages {
		if m.Role == RoleSystem {
			continue
		}
		if n == row {
			return i, true
		}
		n++
	}
	return 0, false
}

// DeletePair removes the message at row together with its counterpart. A user message
// takes the answer that follows it; an answer takes the question before it.
func (c *Conversation) DeletePair(row int) error {
	i, ok := c.MessageIndex(row)
	if !ok {
		return ErrRowOutOfRange
	}
	from, to := i, i+1
	switch c.Messages[i].Role {
	case RoleUser:
		if to < len(c.Messages) && c.Messages[to].Role == RoleAssistant {
			to++
		}
	case RoleAssistant:
		if from > 0 && c.Messages[from-1].Role == RoleUser {
			from--
		}
	}
	c.Messages = append(c.Messages[:from:from], c.Messages[to:]...)
	return nil
}

// EditUserMessage replaces the content of the user message at row and drops everything
// after it, so the conversation can be re-invoked from there.
func (c *Conversation) EditUserMessage(row int, content string) error {
	i, ok := c.MessageIndex(row)
	if !ok {
		return ErrRowOutOfRange
	}
	if c.Messages[i].Role != RoleUser {
		return ErrNotUserRow
	}
	c.Messages[i].Content = content
	c.Messages = c.Messages[:i+1]
	return nil
}

// DropTrailingAnswer removes the final message when it is an assistant message and
// reports whether it did.
func (c *Conversation) DropTrailingAnswer() bool {
	last := c.LastMessage()
	if last == nil || last.Role != RoleAssistant {
		return false
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	return true
}

// Rate sets the rating of the assistant message at row.
func (c *Conversation) Rate(row int, rating Rating) error {
	if !rating.Valid() {
		return errors.New("unknown rating")
	}
	i, ok := c.MessageIndex(row)
	if !ok {
		return ErrRowOutOfRange
	}
	if c.Messages[i].Role != RoleAssistant {
		return ErrNotAnswerRow
	}
	c.Messages[i].Rating = rating
	return nil
}
