package todoist

import (
	"crypto/rand"
	"fmt"
)

const (
	// StateLength is the number of characters in an OAuth state parameter.
	StateLength = 24

	stateAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// stateByteLimit is the largest multiple of len(stateAlphabet) that fits in a byte.
	// Bytes at or above it are rejected so every character is equally likely.
	stateByteLimit = 256 - 256%len(stateAlphabet)
)

// NewState returns a cryptographically random alphanumeric string of StateLength
// characters for use as the OAuth state parameter.
func NewState() (string, error) {
	out := make([]byte, 0, StateLength)
	buf := make([]byte, StateLength)

	for len(out) < StateLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= stateByteLimit {
				continue
			}
			out = append(out, stateAlphabet[int(b)%len(stateAlphabet)])
			if len(out) == StateLength {
				break
			}
		}
	}

	return string(out), nil
}
