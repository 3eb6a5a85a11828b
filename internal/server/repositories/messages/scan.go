package messages

import (
	"database/sql"

	"github.com/dmitrijs2005/parley/internal/server/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// messageScan holds the nullable columns of a messages row between Scan and apply.
type messageScan struct {
	content    sql.NullString
	ciphertext []byte
	iv         []byte
	authTag    []byte
	algorithm  sql.NullString
	mediaURL   sql.NullString
	mediaType  sql.NullString
	replyToID  sql.NullString
}

// targets lists scan destinations in messageColumns order.
func (s *messageScan) targets(m *models.Message) []any {
	return []any{
		&m.ID, &m.SenderID, &m.ReceiverID,
		&s.content, &s.ciphertext, &s.iv, &s.authTag, &s.algorithm,
		&s.mediaURL, &s.mediaType,
		&m.Read, &m.IsEdited, &m.DeletedForSender, &m.DeletedForReceiver,
		&s.replyToID, &m.CreatedAt, &m.UpdatedAt,
	}
}

func (s *messageScan) apply(m *models.Message) {
	m.Content = nullString(s.content)
	m.Encrypted = payload(s.ciphertext, s.iv, s.authTag, s.algorithm)
	m.MediaURL = nullString(s.mediaURL)
	m.MediaType = nullString(s.mediaType)
	m.ReplyToID = nullString(s.replyToID)
}

// replyScan holds the LEFT JOINed reply target columns.
type replyScan struct {
	id         sql.NullString
	senderID   sql.NullString
	receiverID sql.NullString
	content    sql.NullString
	ciphertext []byte
	iv         []byte
	authTag    []byte
	algorithm  sql.NullString
	mediaType  sql.NullString
}

func (p *replyScan) targets() []any {
	return []any{
		&p.id, &p.senderID, &p.receiverID, &p.content,
		&p.ciphertext, &p.iv, &p.authTag, &p.algorithm, &p.mediaType,
	}
}

// preview returns nil when the join found no reply target.
func (p *replyScan) preview() *models.ReplyPreview {
	if !p.id.Valid {
		return nil
	}
	return &models.ReplyPreview{
		ID:         p.id.String,
		SenderID:   p.senderID.String,
		ReceiverID: p.receiverID.String,
		Content:    nullString(p.content),
		Encrypted:  payload(p.ciphertext, p.iv, p.authTag, p.algorithm),
		MediaType:  nullString(p.mediaType),
	}
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m models.Message
		s messageScan
	)
	if err := row.Scan(s.targets(&m)...); err != nil {
		return nil, err
	}
	s.apply(&m)
	return &m, nil
}

func payload(ciphertext, iv, tag []byte, algorithm sql.NullString) *models.EncryptedPayload {
	if ciphertext == nil || !algorithm.Valid {
		return nil
	}
	return &models.EncryptedPayload{
		Ciphertext: ciphertext,
		IV:         iv,
		AuthTag:    tag,
		Algorithm:  algorithm.String,
	}
}

// payloadArgs flattens an optional payload into query arguments; absent
// payloads become untyped nils so drivers see NULL.
func payloadArgs(p *models.EncryptedPayload) (ciphertext, iv, tag, algorithm any) {
	if p == nil {
		return nil, nil, nil, nil
	}
	return p.Ciphertext, p.IV, p.AuthTag, p.Algorithm
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
