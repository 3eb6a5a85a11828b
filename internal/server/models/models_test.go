package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Flags(t *testing.T) {
	empty := ""
	url := "/uploads/messages/x.png"

	m := &Message{}
	assert.False(t, m.DeletedForBoth())
	assert.False(t, m.HasMedia())

	m.DeletedForSender = true
	assert.False(t, m.DeletedForBoth())
	m.DeletedForReceiver = true
	assert.True(t, m.DeletedForBoth())

	m.MediaURL = &empty
	assert.False(t, m.HasMedia())
	m.MediaURL = &url
	assert.True(t, m.HasMedia())
}

func TestConversationSummary_LastActivity(t *testing.T) {
	c := &ConversationSummary{}
	assert.True(t, c.LastActivity().IsZero())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.LastMessage = &LastMessage{CreatedAt: ts}
	assert.Equal(t, ts, c.LastActivity())
}
