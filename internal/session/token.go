package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenBytes is 128 bits, matching the opaque, unguessable session token
// size named in the data model.
const tokenBytes = 16

// newToken mints a fresh session token.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
