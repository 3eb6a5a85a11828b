// Package common contains shared constants and sentinel errors used across
// parley components.
package common

// AccessTokenHeaderName is the HTTP header used to carry the access token
// when the Authorization header is not set.
const AccessTokenHeaderName = "access_token"

// EncryptedContentPlaceholder replaces message content that cannot be decrypted.
const EncryptedContentPlaceholder = "[Encrypted Content]"
