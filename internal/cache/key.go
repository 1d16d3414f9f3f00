package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key creates a cache key for one batch request. The same operation and
// request body always produce the same key, so repeated dispatches of an
// identical batch hit the cache.
func Key(op string, requestBody []byte) string {
	hash := sha256.Sum256(requestBody)
	return op + ":" + hex.EncodeToString(hash[:16])
}
