package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_FailShowsErrorInEmptySlot(t *testing.T) {
	m := NewAssistantPlaceholder("gpt-4")
	m.Fail("upstream 502")

	require.NotNil(t, m.Error)
	assert.Equal(t, "upstream 502", m.Content)
	assert.True(t, m.Partial)
	assert.Empty(t, m.StreamedContent())
}

func TestMessage_FailKeepsStreamedText(t *testing.T) {
	m := NewAssistantPlaceholder("gpt-4")
	m.Content = "half an ans"
	m.Fail("connection reset")

	assert.Equal(t, "half an ans", m.Content)
	assert.Equal(t, "half an ans", m.StreamedContent())
	assert.Equal(t, "connection reset", m.Error.Message)
}
