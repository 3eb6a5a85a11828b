// Package cryptox holds the cryptographic primitives used by the server:
// argon2id password hashing and the per-conversation message encryption engine.
package cryptox

import (
	"crypto/subtle"

	"github.com/dmitrijs2005/parley/internal/common"
	"golang.org/x/crypto/argon2"
)

// PasswordSaltSize is the length of the random salt stored with each user.
const PasswordSaltSize = 16

// HashPassword derives an argon2id hash of password with the given salt.
func HashPassword(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// NewPasswordHash generates a fresh salt and returns it together with the hash.
func NewPasswordHash(password []byte) (hash, salt []byte) {
	salt = common.GenerateRandByteArray(PasswordSaltSize)
	return HashPassword(password, salt), salt
}

// VerifyPassword reports whether candidate hashes to expected under salt.
// The comparison is constant time.
func VerifyPassword(candidate, salt, expected []byte) bool {
	got := HashPassword(candidate, salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
