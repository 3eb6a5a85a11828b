package models

import "time"

// EncryptedPayload is the at-rest form of message content.
type EncryptedPayload struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	Algorithm  string
}

// Message is one directed communication between two users.
//
// Encrypted is set iff content was supplied. Content holds the readable text
// after a service has decrypted the row; it is persisted only when plaintext
// retention is enabled.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string

	Content   *string
	Encrypted *EncryptedPayload

	MediaURL  *string
	MediaType *string

	CreatedAt time.Time
	UpdatedAt time.Time

	Read               bool
	IsEdited           bool
	DeletedForSender   bool
	DeletedForReceiver bool

	ReplyToID *string
	ReplyTo   *ReplyPreview
}

// ReplyPreview is the quoted part of the message a reply points to.
// ReceiverID and Encrypted are only needed to decrypt Content.
type ReplyPreview struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    *string
	Encrypted  *EncryptedPayload
	MediaType  *string
}

// DeletedForBoth reports whether both sides have hidden the message.
func (m *Message) DeletedForBoth() bool {
	return m.DeletedForSender && m.DeletedForReceiver
}

// HasMedia reports whether the message references a media blob.
func (m *Message) HasMedia() bool {
	return m.MediaURL != nil && *m.MediaURL != ""
}

// MessageInfo is the delivery/read view of a single message.
// Delivery is instantaneous, so DeliveredAt is the creation time;
// ReadAt is approximated by the last update time.
type MessageInfo struct {
	MessageID   string
	DeliveredAt time.Time
	Read        bool
	ReadAt      *time.Time
}
