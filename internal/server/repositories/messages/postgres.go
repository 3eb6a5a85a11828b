// Package messages implements message persistence over PostgreSQL.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/dbx"
	"github.com/dmitrijs2005/parley/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes raised by caller-supplied values.
const (
	invalidTextRepresentation = "22P02"
	foreignKeyViolation       = "23503"
)

const messageColumns = `id, sender_id, receiver_id, content, ciphertext, iv, auth_tag, algorithm,
	media_url, media_type, read, is_edited, deleted_for_sender, deleted_for_receiver,
	reply_to_id, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new message row. ID and timestamps must be set by the caller.
func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content, ciphertext, iv, auth_tag, algorithm,
			media_url, media_type, reply_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	ciphertext, iv, tag, algorithm := payloadArgs(m.Encrypted)

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.Content, ciphertext, iv, tag, algorithm,
		m.MediaURL, m.MediaType, m.ReplyToID, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if code := sqlState(err); code == invalidTextRepresentation || code == foreignKeyViolation {
			return fmt.Errorf("%w: unknown message or user reference", common.ErrorValidation)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapError("db error", err)
	}
	return m, nil
}

// ListBetween returns the pair's messages that viewerID has not hidden,
// oldest first, each joined with its reply target when there is one.
func (r *PostgresRepository) ListBetween(ctx context.Context, viewerID, otherID string) ([]*models.Message, error) {
	query := `
		SELECT m.id, m.sender_id, m.receiver_id, m.content, m.ciphertext, m.iv, m.auth_tag, m.algorithm,
			m.media_url, m.media_type, m.read, m.is_edited, m.deleted_for_sender, m.deleted_for_receiver,
			m.reply_to_id, m.created_at, m.updated_at,
			p.id, p.sender_id, p.receiver_id, p.content, p.ciphertext, p.iv, p.auth_tag, p.algorithm, p.media_type
		FROM messages m
		LEFT JOIN messages p ON p.id = m.reply_to_id
		WHERE (m.sender_id = $1 AND m.receiver_id = $2 AND m.deleted_for_sender = false)
		   OR (m.sender_id = $2 AND m.receiver_id = $1 AND m.deleted_for_receiver = false)
		ORDER BY m.created_at ASC, m.id ASC`

	rows, err := r.db.QueryContext(ctx, query, viewerID, otherID)
	if err != nil {
		return nil, wrapError("failed to select messages", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var (
			m models.Message
			s messageScan
			p replyScan
		)
		dest := append(s.targets(&m), p.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.apply(&m)
		m.ReplyTo = p.preview()
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Correspondents returns every user viewerID has exchanged a message with,
// regardless of delete flags.
func (r *PostgresRepository) Correspondents(ctx context.Context, viewerID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.username
		FROM users u
		WHERE u.id IN (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
		)`

	rows, err := r.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, wrapError("failed to select correspondents", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.UserName); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LastBetween returns the newest message exchanged by the pair in either
// direction, or common.ErrorNotFound.
func (r *PostgresRepository) LastBetween(ctx context.Context, userA, userB string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, userA, userB))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapError("db error", err)
	}
	return m, nil
}

func (r *PostgresRepository) CountUnreadFrom(ctx context.Context, receiverID, senderID string) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND sender_id = $2 AND read = false`
	return r.count(ctx, query, receiverID, senderID)
}

// UnreadCount counts unread messages addressed to receiverID that the
// receiver has not hidden.
func (r *PostgresRepository) UnreadCount(ctx context.Context, receiverID string) (int64, error) {
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND read = false AND deleted_for_receiver = false`
	return r.count(ctx, query, receiverID)
}

// UpdateContent replaces the content of message id in a single conditional
// update: the row changes only if senderID wrote it and it was created at or
// after notBefore. common.ErrorNotFound means the condition did not hold;
// the caller decides why.
func (r *PostgresRepository) UpdateContent(ctx context.Context, id, senderID string, notBefore time.Time,
	content *string, enc *models.EncryptedPayload, now time.Time) (*models.Message, error) {

	query := `
		UPDATE messages
		SET content = $4, ciphertext = $5, iv = $6, auth_tag = $7, algorithm = $8,
			is_edited = true, updated_at = $9
		WHERE id = $1 AND sender_id = $2 AND created_at >= $3
		RETURNING ` + messageColumns

	ciphertext, iv, tag, algorithm := payloadArgs(enc)

	m, err := scanMessage(r.db.QueryRowContext(ctx, query,
		id, senderID, notBefore, content, ciphertext, iv, tag, algorithm, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapError("db error", err)
	}
	return m, nil
}

// MarkRead flips read=true on the listed messages addressed to receiverID
// that are still unread, and returns how many rows changed. Ids that are not
// UUIDs cannot match a row and are skipped.
func (r *PostgresRepository) MarkRead(ctx context.Context, receiverID string, ids []string, now time.Time) (int64, error) {
	args := make([]any, 0, len(ids)+2)
	args = append(args, receiverID, now)
	placeholders := make([]string, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		args = append(args, parsed.String())
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}
	if len(placeholders) == 0 {
		return 0, nil
	}

	query := `UPDATE messages SET read = true, updated_at = $2
		WHERE receiver_id = $1 AND read = false AND id IN (` + strings.Join(placeholders, ", ") + `)`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapError("failed to mark read", err)
	}
	return dbx.Affected(res)
}

func (r *PostgresRepository) MarkDeletedForSender(ctx context.Context, id, senderID string, now time.Time) (*SideDeleteResult, error) {
	query := `
		UPDATE messages SET deleted_for_sender = true, updated_at = $3
		WHERE id = $1 AND sender_id = $2 AND deleted_for_sender = false
		RETURNING deleted_for_receiver, media_url`
	return r.markSide(ctx, query, id, senderID, now)
}

func (r *PostgresRepository) MarkDeletedForReceiver(ctx context.Context, id, receiverID string, now time.Time) (*SideDeleteResult, error) {
	query := `
		UPDATE messages SET deleted_for_receiver = true, updated_at = $3
		WHERE id = $1 AND receiver_id = $2 AND deleted_for_receiver = false
		RETURNING deleted_for_sender, media_url`
	return r.markSide(ctx, query, id, receiverID, now)
}

// MarkDeletedForBoth sets both side flags. It returns true only when this
// call moved the row into the deleted-for-both state.
func (r *PostgresRepository) MarkDeletedForBoth(ctx context.Context, id, senderID string, now time.Time) (bool, error) {
	query := `
		UPDATE messages SET deleted_for_sender = true, deleted_for_receiver = true, updated_at = $3
		WHERE id = $1 AND sender_id = $2 AND NOT (deleted_for_sender AND deleted_for_receiver)`

	res, err := r.db.ExecContext(ctx, query, id, senderID, now)
	if err != nil {
		return false, wrapError("failed to delete message", err)
	}
	n, err := dbx.Affected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MediaCandidates locks and returns the pair's media-bearing messages that
// are not yet deleted for both sides. Meant to run inside a transaction.
func (r *PostgresRepository) MediaCandidates(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := `
		SELECT id, media_url FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND media_url IS NOT NULL
		  AND NOT (deleted_for_sender AND deleted_for_receiver)
		FOR UPDATE`
	return r.selectMedia(ctx, query, userA, userB)
}

// FullyDeletedMedia returns the pair's media-bearing messages hidden on both sides.
func (r *PostgresRepository) FullyDeletedMedia(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := `
		SELECT id, media_url FROM messages
		WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
		  AND media_url IS NOT NULL
		  AND deleted_for_sender AND deleted_for_receiver`
	return r.selectMedia(ctx, query, userA, userB)
}

func (r *PostgresRepository) HideSent(ctx context.Context, senderID, receiverID string, now time.Time) (int64, error) {
	query := `UPDATE messages SET deleted_for_sender = true, updated_at = $3
		WHERE sender_id = $1 AND receiver_id = $2 AND deleted_for_sender = false`
	return r.exec(ctx, query, senderID, receiverID, now)
}

func (r *PostgresRepository) HideReceived(ctx context.Context, receiverID, senderID string, now time.Time) (int64, error) {
	query := `UPDATE messages SET deleted_for_receiver = true, updated_at = $3
		WHERE receiver_id = $1 AND sender_id = $2 AND deleted_for_receiver = false`
	return r.exec(ctx, query, receiverID, senderID, now)
}

// CountMediaReferences counts messages still visible to at least one side
// that point at mediaURL.
func (r *PostgresRepository) CountMediaReferences(ctx context.Context, mediaURL string) (int64, error) {
	query := `SELECT COUNT(*) FROM messages
		WHERE media_url = $1 AND NOT (deleted_for_sender AND deleted_for_receiver)`
	return r.count(ctx, query, mediaURL)
}

// --- helpers below ---

func (r *PostgresRepository) markSide(ctx context.Context, query, id, actorID string, now time.Time) (*SideDeleteResult, error) {
	var (
		other    bool
		mediaURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id, actorID, now).Scan(&other, &mediaURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &SideDeleteResult{}, nil
		}
		return nil, wrapError("failed to delete message", err)
	}
	return &SideDeleteResult{Updated: true, OtherSideDeleted: other, MediaURL: nullString(mediaURL)}, nil
}

func (r *PostgresRepository) selectMedia(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("failed to select media", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		var (
			m   models.Message
			url sql.NullString
		)
		if err := rows.Scan(&m.ID, &url); err != nil {
			return nil, err
		}
		m.MediaURL = nullString(url)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, wrapError("db error", err)
	}
	return n, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapError("db error", err)
	}
	return dbx.Affected(res)
}

// wrapError annotates a store error. A malformed id names no row, so
// invalid_text_representation is reported as common.ErrorNotFound.
func wrapError(msg string, err error) error {
	if sqlState(err) == invalidTextRepresentation {
		return fmt.Errorf("%w: malformed id", common.ErrorNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
