package models

import "time"

// LastMessage summarises the newest message of a conversation.
type LastMessage struct {
	ID        string
	SenderID  string
	Content   string
	MediaType *string
	CreatedAt time.Time
	IsMine    bool
}

// ConversationSummary is one row of a user's conversation list. It is
// derived on every request and never stored.
type ConversationSummary struct {
	UserID      string
	UserName    string
	LastMessage *LastMessage
	UnreadCount int64
}

// LastActivity is the timestamp used to order conversations.
func (c *ConversationSummary) LastActivity() time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.CreatedAt
}
