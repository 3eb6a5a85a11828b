package services

import (
	"context"

	"github.com/dmitrijs2005/parley/internal/common"
	"github.com/dmitrijs2005/parley/internal/cryptox"
	"github.com/dmitrijs2005/parley/internal/logging"
	"github.com/dmitrijs2005/parley/internal/server/models"
)

// Cipher is the part of cryptox.Engine the services use.
type Cipher interface {
	Encrypt(plaintext string, userA, userB string) (*cryptox.Bundle, error)
	Decrypt(b *cryptox.Bundle, userA, userB string) (string, error)
}

// opened is the outcome of reading one stored body. Failed is set when a
// bundle existed but could not be opened; Text then holds the placeholder.
type opened struct {
	Text   *string
	Failed bool
}

// contentReader turns stored bodies back into readable text.
type contentReader struct {
	cipher Cipher
	log    logging.Logger
}

// open prefers the encrypted bundle and falls back to retained plaintext
// only when there is no bundle. Media-only messages yield a nil Text.
func (r contentReader) open(ctx context.Context, id, senderID, receiverID string, retained *string, enc *models.EncryptedPayload) opened {
	if enc == nil {
		return opened{Text: retained}
	}

	text, err := r.cipher.Decrypt(toBundle(enc), senderID, receiverID)
	if err != nil {
		r.log.Warn(ctx, "decrypt failed", "message_id", id, "error", err)
		placeholder := common.EncryptedContentPlaceholder
		return opened{Text: &placeholder, Failed: true}
	}
	return opened{Text: &text}
}

func toBundle(p *models.EncryptedPayload) *cryptox.Bundle {
	return &cryptox.Bundle{
		Ciphertext: p.Ciphertext,
		IV:         p.IV,
		AuthTag:    p.AuthTag,
		Algorithm:  p.Algorithm,
	}
}

func fromBundle(b *cryptox.Bundle) *models.EncryptedPayload {
	return &models.EncryptedPayload{
		Ciphertext: b.Ciphertext,
		IV:         b.IV,
		AuthTag:    b.AuthTag,
		Algorithm:  b.Algorithm,
	}
}
