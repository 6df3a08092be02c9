package service

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// OAuthError is a protocol-level failure carrying the HTTP status the
// handler should answer with. Anything else that escapes a service is
// an internal error.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Status      int    `json:"-"`
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(status int, code, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description, Status: status}
}

// randomHex returns n random bytes as 2n lowercase hex characters.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// randomClientID draws a strictly positive 31-bit identifier. Zero is
// redrawn: it collides with the unscoped-lookup sentinel.
func randomClientID() (int32, error) {
	for {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("read random bytes: %w", err)
		}
		if id := int32(binary.BigEndian.Uint32(buf[:]) & 0x7fffffff); id != 0 {
			return id, nil
		}
	}
}
