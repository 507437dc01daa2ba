package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash computes SHA-256 of path + content. The same transcript stored
// under two paths hashes differently, so it counts as two documents.
func ContentHash(path, content string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))
}
