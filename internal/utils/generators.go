package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateToken returns n random bytes hex-encoded, falling back to a
// timestamp when the system random source fails.
func GenerateToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// FormatOrderNumber renders the per-branch order number shown on tickets and displays.
func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("#%04d", n)
}
