package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash returns the hex-encoded SHA-256 digest of data, stored on
// each cache entry and reported in the perform metric event
// (sf_core::cache's digest::content_hash).
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
