package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/parley/internal/common"
	"golang.org/x/crypto/hkdf"
)

// AlgorithmAES256GCM is the algorithm tag written next to every ciphertext.
const AlgorithmAES256GCM = "aes-256-gcm"

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// Bundle is everything needed to reverse Encrypt, apart from the key.
type Bundle struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	Algorithm  string
}

// Engine derives per-conversation keys from a process-wide secret and
// encrypts message bodies with AES-256-GCM.
//
// The key for a conversation depends only on the unordered pair of
// participant ids, so Encrypt(m, a, b) can be reversed with Decrypt(.., b, a).
type Engine struct {
	secret []byte
	rand   io.Reader
}

// NewEngine returns an Engine bound to secret. The secret is configuration:
// it must be identical across restarts or existing messages become unreadable.
func NewEngine(secret string) *Engine {
	return &Engine{secret: []byte(secret), rand: randReader}
}

// DeriveKey returns the 32-byte symmetric key for the pair (userA, userB).
// Order of the arguments does not matter.
func (e *Engine) DeriveKey(userA, userB string) ([]byte, error) {
	if len(e.secret) == 0 {
		return nil, fmt.Errorf("%w: empty key secret", common.ErrorCrypto)
	}
	if userA == "" || userB == "" {
		return nil, fmt.Errorf("%w: empty participant id", common.ErrorCrypto)
	}

	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}

	// length-prefixed so ("ab","c") and ("a","bc") cannot collide
	info := fmt.Appendf(nil, "parley/conversation/v1|%d:%s|%d:%s", len(lo), lo, len(hi), hi)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, e.secret, nil, info), key); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return key, nil
}

// Encrypt seals plaintext under the key for (userA, userB) with a fresh
// random IV.
func (e *Engine) Encrypt(plaintext string, userA, userB string) (*Bundle, error) {
	key, err := e.DeriveKey(userA, userB)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(e.rand, iv); err != nil {
		return nil, fmt.Errorf("%w: iv: %v", common.ErrorCrypto, err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(sealed) - tagSize

	return &Bundle{
		Ciphertext: sealed[:split:split],
		IV:         iv,
		AuthTag:    sealed[split:],
		Algorithm:  AlgorithmAES256GCM,
	}, nil
}

// Decrypt verifies and opens b with the key for (userA, userB).
// Any malformed input or tag mismatch yields an error wrapping common.ErrorCrypto.
func (e *Engine) Decrypt(b *Bundle, userA, userB string) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: nil bundle", common.ErrorCrypto)
	}
	if b.Algorithm != AlgorithmAES256GCM {
		return "", fmt.Errorf("%w: unsupported algorithm %q", common.ErrorCrypto, b.Algorithm)
	}
	if len(b.IV) != nonceSize || len(b.AuthTag) != tagSize {
		return "", fmt.Errorf("%w: malformed bundle", common.ErrorCrypto)
	}

	key, err := e.DeriveKey(userA, userB)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(b.Ciphertext)+tagSize)
	sealed = append(sealed, b.Ciphertext...)
	sealed = append(sealed, b.AuthTag...)

	plaintext, err := aead.Open(nil, b.IV, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorCrypto, err)
	}
	return aead, nil
}

// IsCryptoError reports whether err came out of the engine.
func IsCryptoError(err error) bool {
	return errors.Is(err, common.ErrorCrypto)
}
