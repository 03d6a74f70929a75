package database

import (
	"crypto/rand"
	"encoding/hex"
)

// NewId returns a 24-character lowercase hex identifier. Room ids on the
// wire are validated against this format, and the "ai" sender sentinel can
// never collide with it.
func NewId() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("database: read random id: " + err.Error())
	}
	return hex.EncodeToString(b)
}
