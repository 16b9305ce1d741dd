package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the entropy carried by generated verification tokens.
const TokenBytes = 32

// GenerateToken returns a random hex-encoded token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("crypto: token length must be positive, got %d", length)
	}

	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("crypto: read random bytes: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
