package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/dbx"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/config"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/repositories/messages"
	"github.com/dmitrijs2005/parley/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DeleteScope says which side flags a delete touches. It is resolved once
// from the requested mode and the actor's role in the message.
type DeleteScope int

const (
	DeleteScopeAll DeleteScope = iota + 1
	DeleteScopeSelfAsSender
	DeleteScopeSelfAsReceiver
)

func (s DeleteScope) String() string {
	switch s {
	case DeleteScopeAll:
		return "all"
	case DeleteScopeSelfAsSender:
		return "self_as_sender"
	case DeleteScopeSelfAsReceiver:
		return "self_as_receiver"
	}
	return "unknown"
}

// Requested delete modes as they arrive from clients.
const (
	DeleteModeSelf = "self"
	DeleteModeAll  = "all"
)

// ResolveDeleteScope maps a requested mode onto the actor's role in m.
func ResolveDeleteScope(m *models.Message, actorID, mode string) (DeleteScope, error) {
	switch mode {
	case DeleteModeAll:
		if m.SenderID != actorID {
			return 0, fmt.Errorf("%w: only the sender can delete for everyone", common.ErrorForbidden)
		}
		return DeleteScopeAll, nil
	case DeleteModeSelf, "":
		switch actorID {
		case m.SenderID:
			return DeleteScopeSelfAsSender, nil
		case m.ReceiverID:
			return DeleteScopeSelfAsReceiver, nil
		}
		return 0, fmt.Errorf("%w: not a participant", common.ErrorForbidden)
	}
	return 0, fmt.Errorf("%w: unknown delete scope %q", common.ErrorValidation, mode)
}

// SendRequest carries the fields of a new message. Content and MediaURL are
// optional individually but not both.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Content    *string
	ReplyToID  *string
	MediaURL   *string
	MediaType  *string
}

// MessageService manages the message lifecycle: send, edit, per-side delete,
// read receipts, and the media blobs tied to deletion.
type MessageService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	reader          contentReader
	media           MediaReleaser
	log             logging.Logger
	editWindow      time.Duration
	retainPlaintext bool
	now             func() time.Time
	newID           func() string
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, cipher Cipher, media MediaReleaser,
	log logging.Logger, cfg *config.Config) *MessageService {

	log = log.With("module", "messages")
	return &MessageService{
		db:              db,
		repomanager:     m,
		reader:          contentReader{cipher: cipher, log: log},
		media:           media,
		log:             log,
		editWindow:      cfg.EditWindow,
		retainPlaintext: cfg.RetainPlaintext,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Send validates and stores a new message. Content, when present, is always
// encrypted for the sender/receiver pair.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	content := present(req.Content)
	mediaURL := present(req.MediaURL)
	if content == nil && mediaURL == nil {
		return nil, fmt.Errorf("%w: content or media is required", common.ErrorValidation)
	}

	if _, err := s.repomanager.Users(s.db).GetByID(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: receiver does not exist", common.ErrorValidation)
		}
		return nil, err
	}

	now := s.now().UTC()
	m := &models.Message{
		ID:         s.newID(),
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		ReplyToID:  present(req.ReplyToID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if mediaURL != nil {
		m.MediaURL = mediaURL
		m.MediaType = present(req.MediaType)
	}

	if content != nil {
		b, err := s.reader.cipher.Encrypt(*content, req.SenderID, req.ReceiverID)
		if err != nil {
			return nil, err
		}
		m.Encrypted = fromBundle(b)
		if s.retainPlaintext {
			m.Content = content
		}
	}

	if err := s.repomanager.Messages(s.db).Create(ctx, m); err != nil {
		return nil, err
	}
	m.Content = content

	s.log.Info(ctx, "message sent", "message_id", m.ID, "receiver_id", m.ReceiverID, "has_media", m.HasMedia())
	return m, nil
}

// ListMessages returns the conversation as viewerID sees it, oldest first.
// Reply previews are attached only when includeReplies is set.
func (s *MessageService) ListMessages(ctx context.Context, viewerID, otherID string, includeReplies bool) ([]*models.Message, error) {
	list, err := s.repomanager.Messages(s.db).ListBetween(ctx, viewerID, otherID)
	if err != nil {
		return nil, err
	}

	for _, m := range list {
		m.Content = s.reader.open(ctx, m.ID, m.SenderID, m.ReceiverID, m.Content, m.Encrypted).Text

		if !includeReplies {
			m.ReplyTo = nil
			continue
		}
		if p := m.ReplyTo; p != nil {
			p.Content = s.reader.open(ctx, p.ID, p.SenderID, p.ReceiverID, p.Content, p.Encrypted).Text
		}
	}
	return list, nil
}

// Edit replaces the content of a message the editor sent within the edit
// window. The new content is encrypted with a fresh IV.
func (s *MessageService) Edit(ctx context.Context, messageID, editorID, newContent string) (*models.Message, error) {
	content := present(&newContent)
	if content == nil {
		return nil, fmt.Errorf("%w: content is required", common.ErrorValidation)
	}

	repo := s.repomanager.Messages(s.db)
	m, err := repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: only the sender can edit", common.ErrorForbidden)
	}

	now := s.now().UTC()
	notBefore := now.Add(-s.editWindow)
	if m.CreatedAt.Before(notBefore) {
		return nil, fmt.Errorf("%w: edit window of %s has passed", common.ErrorExpired, s.editWindow)
	}

	b, err := s.reader.cipher.Encrypt(*content, m.SenderID, m.ReceiverID)
	if err != nil {
		return nil, err
	}
	var retained *string
	if s.retainPlaintext {
		retained = content
	}

	// sender and window are re-checked by the update itself
	updated, err := repo.UpdateContent(ctx, m.ID, editorID, notBefore, retained, fromBundle(b), now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: edit window of %s has passed", common.ErrorExpired, s.editWindow)
		}
		return nil, err
	}
	updated.Content = content

	s.log.Info(ctx, "message edited", "message_id", m.ID)
	return updated, nil
}

// Delete hides a message for the actor (mode "self") or for both sides
// (mode "all", sender only). Media is released when the message reaches
// deleted-for-both through this call.
func (s *MessageService) Delete(ctx context.Context, messageID, actorID, mode string) error {
	repo := s.repomanager.Messages(s.db)

	m, err := repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	scope, err := ResolveDeleteScope(m, actorID, mode)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var (
		bothDeleted bool
		mediaURL    = m.MediaURL
	)

	switch scope {
	case DeleteScopeAll:
		bothDeleted, err = repo.MarkDeletedForBoth(ctx, m.ID, actorID, now)
	case DeleteScopeSelfAsSender, DeleteScopeSelfAsReceiver:
		var res *messages.SideDeleteResult
		if scope == DeleteScopeSelfAsSender {
			res, err = repo.MarkDeletedForSender(ctx, m.ID, actorID, now)
		} else {
			res, err = repo.MarkDeletedForReceiver(ctx, m.ID, actorID, now)
		}
		if err == nil {
			bothDeleted = res.Updated && res.OtherSideDeleted
			if res.MediaURL != nil {
				mediaURL = res.MediaURL
			}
		}
	}
	if err != nil {
		return err
	}

	s.log.Info(ctx, "message deleted", "message_id", m.ID, "scope", scope.String(), "both_sides", bothDeleted)

	if bothDeleted && mediaURL != nil && *mediaURL != "" {
		s.releaseIfUnreferenced(ctx, *mediaURL)
	}
	return nil
}

// DeleteConversation hides every message between viewerID and otherID on the
// viewer's side and releases media of messages that became deleted for
// both. It returns the number of media-bearing messages considered.
func (s *MessageService) DeleteConversation(ctx context.Context, viewerID, otherID string) (int, error) {
	var (
		candidates int
		release    []string
	)

	now := s.now().UTC()
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Messages(tx)

		before, err := repo.MediaCandidates(ctx, viewerID, otherID)
		if err != nil {
			return err
		}
		candidates = len(before)

		if _, err := repo.HideSent(ctx, viewerID, otherID, now); err != nil {
			return err
		}
		if _, err := repo.HideReceived(ctx, viewerID, otherID, now); err != nil {
			return err
		}
		if candidates == 0 {
			return nil
		}

		after, err := repo.FullyDeletedMedia(ctx, viewerID, otherID)
		if err != nil {
			return err
		}

		wasCandidate := make(map[string]bool, len(before))
		for _, m := range before {
			wasCandidate[m.ID] = true
		}
		seen := make(map[string]bool)
		for _, m := range after {
			if !wasCandidate[m.ID] || !m.HasMedia() || seen[*m.MediaURL] {
				continue
			}
			seen[*m.MediaURL] = true
			release = append(release, *m.MediaURL)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info(ctx, "conversation deleted", "other_id", otherID, "media_candidates", candidates, "released", len(release))

	for _, url := range release {
		s.releaseIfUnreferenced(ctx, url)
	}
	return candidates, nil
}

// MarkRead marks the listed messages addressed to viewerID as read and
// returns how many actually changed.
func (s *MessageService) MarkRead(ctx context.Context, viewerID string, ids []string) (int64, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return 0, nil
	}

	return s.repomanager.Messages(s.db).MarkRead(ctx, viewerID, uniq, s.now().UTC())
}

func (s *MessageService) UnreadCount(ctx context.Context, viewerID string) (int64, error) {
	return s.repomanager.Messages(s.db).UnreadCount(ctx, viewerID)
}

// GetMessageInfo reports delivery and read state. Messages the viewer does
// not take part in are reported as not found.
func (s *MessageService) GetMessageInfo(ctx context.Context, messageID, viewerID string) (*models.MessageInfo, error) {
	m, err := s.repomanager.Messages(s.db).GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != viewerID && m.ReceiverID != viewerID {
		return nil, common.ErrorNotFound
	}

	info := &models.MessageInfo{
		MessageID:   m.ID,
		DeliveredAt: m.CreatedAt,
		Read:        m.Read,
	}
	if m.Read {
		readAt := m.UpdatedAt
		info.ReadAt = &readAt
	}
	return info, nil
}

// --- helpers below ---

// releaseIfUnreferenced frees url unless a message still visible to someone
// points at it.
func (s *MessageService) releaseIfUnreferenced(ctx context.Context, url string) {
	n, err := s.repomanager.Messages(s.db).CountMediaReferences(ctx, url)
	if err != nil {
		s.log.Error(ctx, "media reference check failed", "url", url, "error", err)
		return
	}
	if n > 0 {
		s.log.Debug(ctx, "media still referenced", "url", url, "refs", n)
		return
	}
	s.media.Release(ctx, url)
}

// present returns nil for absent or blank values.
func present(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}
