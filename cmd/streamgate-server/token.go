package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newSessionToken mints the registry key under which the supervisor tracks
// one spawned streamer — distinct from the session token the streamer itself
// mints later and hands the browser client in Setup.
func newSessionToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("streamgate-server: generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
