package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConversationState(t *testing.T) {
	s := NewConversationState(1000)

	assert.Empty(t, s.Messages)
	assert.NotNil(t, s.Messages)
	assert.Equal(t, int64(1000), s.CreatedAt)
	assert.Equal(t, int64(1000), s.LastArchiveTime)
	assert.Zero(t, s.LastMessageTime)
	assert.False(t, s.IsGenerating)
}

func TestConversationState_CloneIsIndependent(t *testing.T) {
	s := NewConversationState(1)
	s.Messages = append(s.Messages, Message{ID: "a", Content: "hello"})

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Messages = append(c.Messages, Message{ID: "b"})

	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.Len(t, s.Messages, 1)
	assert.Nil(t, (*ConversationState)(nil).Clone())
}

func TestConversationState_LastMessage(t *testing.T) {
	s := NewConversationState(1)
	_, ok := s.LastMessage()
	assert.False(t, ok)

	s.Messages = []Message{{ID: "a"}, {ID: "b"}}
	last, ok := s.LastMessage()
	assert.True(t, ok)
	assert.Equal(t, "b", last.ID)
}
