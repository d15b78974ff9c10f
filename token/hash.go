package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the hex SHA-256 digest stored in place of a raw refresh token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashMatches compares a raw token against a stored digest in constant time.
func HashMatches(raw, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(storedHash)) == 1
}
