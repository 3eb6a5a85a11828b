package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/dmitrijs2005/parley/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

// maxSummaryWorkers bounds the per-correspondent fan-out of one listing.
const maxSummaryWorkers = 8

// ConversationService derives conversation summaries from stored messages.
// Nothing is cached: every call recomputes from the store.
type ConversationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	reader      contentReader
	log         logging.Logger
}

func NewConversationService(db *sql.DB, m repomanager.RepositoryManager, cipher Cipher, log logging.Logger) *ConversationService {
	log = log.With("module", "conversations")
	return &ConversationService{
		db:          db,
		repomanager: m,
		reader:      contentReader{cipher: cipher, log: log},
		log:         log,
	}
}

// ListConversations returns one summary per correspondent of viewerID,
// most recent activity first. Undecryptable last messages show a placeholder
// without affecting the other summaries.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error) {
	people, err := s.repomanager.Messages(s.db).Correspondents(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	result := make([]*models.ConversationSummary, len(people))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSummaryWorkers)
	for i, u := range people {
		i, u := i, u
		g.Go(func() error {
			sum, err := s.summarize(gctx, viewerID, u)
			if err != nil {
				return fmt.Errorf("summary for %s: %w", u.ID, err)
			}
			result[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(result, func(a, b *models.ConversationSummary) int {
		return b.LastActivity().Compare(a.LastActivity())
	})
	return result, nil
}

// CreateConversationPlaceholder returns the summary for the pair without
// writing anything. With no prior messages it has no last message and zero
// unread.
func (s *ConversationService) CreateConversationPlaceholder(ctx context.Context, viewerID, otherID string) (*models.ConversationSummary, error) {
	if viewerID == otherID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", common.ErrorValidation)
	}
	other, err := s.repomanager.Users(s.db).GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, viewerID, other)
}

func (s *ConversationService) summarize(ctx context.Context, viewerID string, other *models.User) (*models.ConversationSummary, error) {
	repo := s.repomanager.Messages(s.db)

	sum := &models.ConversationSummary{UserID: other.ID, UserName: other.UserName}

	unread, err := repo.CountUnreadFrom(ctx, viewerID, other.ID)
	if err != nil {
		return nil, err
	}
	sum.UnreadCount = unread

	last, err := repo.LastBetween(ctx, viewerID, other.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return sum, nil
	case err != nil:
		return nil, err
	}

	lm := &models.LastMessage{
		ID:        last.ID,
		SenderID:  last.SenderID,
		MediaType: last.MediaType,
		CreatedAt: last.CreatedAt,
		IsMine:    last.SenderID == viewerID,
	}
	if text := s.reader.open(ctx, last.ID, last.SenderID, last.ReceiverID, last.Content, last.Encrypted).Text; text != nil {
		lm.Content = *text
	}
	sum.LastMessage = lm
	return sum, nil
}
