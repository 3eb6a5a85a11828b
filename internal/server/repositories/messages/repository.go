package messages

import (
	"context"
	"time"

	"github.com/dmitrijs2005/parley/internal/server/models"
)

// SideDeleteResult reports the outcome of hiding a message for one side.
type SideDeleteResult struct {
	// Updated is false when the flag was already set (nothing changed).
	Updated bool
	// OtherSideDeleted is the other side's flag as stored by the same update.
	OtherSideDeleted bool
	MediaURL         *string
}

// Repository is the persistent store for messages. Every mutating method is
// a single statement, so it is atomic with respect to the row it touches.
type Repository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)

	ListBetween(ctx context.Context, viewerID, otherID string) ([]*models.Message, error)
	Correspondents(ctx context.Context, viewerID string) ([]*models.User, error)
	LastBetween(ctx context.Context, userA, userB string) (*models.Message, error)
	CountUnreadFrom(ctx context.Context, receiverID, senderID string) (int64, error)
	UnreadCount(ctx context.Context, receiverID string) (int64, error)

	UpdateContent(ctx context.Context, id, senderID string, notBefore time.Time, content *string, enc *models.EncryptedPayload, now time.Time) (*models.Message, error)
	MarkRead(ctx context.Context, receiverID string, ids []string, now time.Time) (int64, error)

	MarkDeletedForSender(ctx context.Context, id, senderID string, now time.Time) (*SideDeleteResult, error)
	MarkDeletedForReceiver(ctx context.Context, id, receiverID string, now time.Time) (*SideDeleteResult, error)
	MarkDeletedForBoth(ctx context.Context, id, senderID string, now time.Time) (bool, error)

	MediaCandidates(ctx context.Context, userA, userB string) ([]*models.Message, error)
	HideSent(ctx context.Context, senderID, receiverID string, now time.Time) (int64, error)
	HideReceived(ctx context.Context, receiverID, senderID string, now time.Time) (int64, error)
	FullyDeletedMedia(ctx context.Context, userA, userB string) ([]*models.Message, error)
	CountMediaReferences(ctx context.Context, mediaURL string) (int64, error)
}
