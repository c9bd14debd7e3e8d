package auth

import (
	"crypto/rand"
	"encoding/hex"
)

func newID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "id-unknown"
	}
	return hex.EncodeToString(buf[:])
}
