// Package tokens generates and validates the opaque credentials used by the
// invitation flow, and formats sequential contract numbers.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
)

// TokenLength is the length of a plaintext invitation token. 32 random bytes
// encoded as unpadded url-safe base64 always yield 43 characters.
const TokenLength = 43

var (
	tokenRx          = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)
	contractNumberRx = regexp.MustCompile(`^VH-\d{4}-\d{6}$`)
)

// NewInvitationToken returns a fresh plaintext token and its storable hash.
// The plaintext is shown to the caller exactly once; only the hash is persisted.
func NewInvitationToken() (plaintext string, hash string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", fmt.Errorf("reading random bytes: %s", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(buf[:])
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the lowercase hex SHA-256 digest of the plaintext token.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ValidateTokenFormat rejects structurally invalid tokens before any lookup.
func ValidateTokenFormat(token string) error {
	if len(token) != TokenLength {
		return fmt.Errorf("token must be %d characters, got %d", TokenLength, len(token))
	}
	if !tokenRx.MatchString(token) {
		return fmt.Errorf("token contains characters outside the url-safe base64 alphabet")
	}
	return nil
}

// FormatContractNumber renders a contract number such as VH-2025-000042.
func FormatContractNumber(year int, seq int64) string {
	return fmt.Sprintf("VH-%04d-%06d", year, seq)
}

// ValidContractNumber reports whether s has the VH-YYYY-NNNNNN shape.
func ValidContractNumber(s string) bool {
	return contractNumberRx.MatchString(s)
}
