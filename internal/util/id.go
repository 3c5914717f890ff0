package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewPrefixedID returns an ID carrying an entity prefix ("pkg", "job") so
// identifiers remain recognizable in logs and support tickets.
func NewPrefixedID(prefix string) string {
	if prefix == "" {
		return NewID()
	}
	return prefix + "_" + NewID()
}
