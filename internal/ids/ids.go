package ids

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a random UUID string for records and events.
func New() string {
	return uuid.NewString()
}

// NewSessionID returns a KSUID: a timestamp prefix followed by 128 bits
// read from crypto/rand.
func NewSessionID() string {
	return ksuid.New().String()
}

// NewToken returns a URL-safe token carrying n random bytes.
func NewToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
