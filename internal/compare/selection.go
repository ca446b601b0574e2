// File: internal/compare/selection.go
package compare

import (
	"errors"
	"sync"

	"github.com/iyunix/go-chatreplay/internal/domain"
)

// MaxSelected is the number of conversations shown side by side in compare mode.
const MaxSelected = 2

var (
	ErrTooManySelected = errors.New("compare: at most two conversations can be selected")
	ErrDuplicateID     = errors.New("compare: a conversation cannot be compared with itself")
	ErrEmptyID         = errors.New("compare: conversation id is required")
)

// SelectedSet is the ordered list of displayed conversation ids. Two entries mean compare
// mode; dropping to one leaves it immediately.
type SelectedSet struct {
	mu       sync.RWMutex
	ids      []string
	previous []string
}

func NewSelectedSet() *SelectedSet {
	return &SelectedSet{}
}

// Set replaces the selection. The old one is kept for new-pair detection.
func (s *SelectedSet) Set(ids ...string) error {
	if len(ids) > MaxSelected {
		return ErrTooManySelected
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return ErrEmptyID
		}
		if seen[id] {
			return ErrDuplicateID
		}
		seen[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.previous = s.ids
	s.ids = append([]string(nil), ids...)
	return nil
}

// IDs returns a copy of the selection.
func (s *SelectedSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

// Previous returns the selection before the latest change.
func (s *SelectedSet) Previous() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.previous...)
}

func (s *SelectedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *SelectedSet) IsCompareMode() bool {
	return s.Len() == MaxSelected
}

func (s *SelectedSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Remove drops id from the selection and reports whether it was selected.
func (s *SelectedSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.ids))
	for _, v := range s.ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == len(s.ids) {
		return false
	}
	s.previous = s.ids
	s.ids = out
	return true
}

// Eligible returns the candidates that may be offered for comparison with current:
// never current itself, and only those with the same non-system message count unless
// showAll is set.
func Eligible(current *domain.Conversation, candidates []*domain.Conversation, showAll bool) []*domain.Conversation {
	out := make([]*domain.Conversation, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.ID == current.ID {
			continue
		}
		if !showAll && c.NonSystemCount() != current.NonSystemCount() {
			continue
		}
		out = append(out, c)
	}
	return out
}
