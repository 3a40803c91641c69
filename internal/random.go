package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"

	"github.com/google/uuid"
)

// DefaultTokenBytes is the entropy of an email token before encoding.
const DefaultTokenBytes = 32

// NewOpaqueToken returns size random bytes as unpadded base64url.
func NewOpaqueToken(size int) (string, error) {
	if size < 16 {
		return "", errors.New("token size must be >= 16 bytes")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewID returns a random row identifier.
func NewID() string {
	return uuid.NewString()
}

// RandomIndex returns a uniform index in [0, max) from crypto/rand.
func RandomIndex(max int) (int, error) {
	if max <= 0 {
		return 0, errors.New("max must be > 0")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
