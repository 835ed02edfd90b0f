package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key is the structured form of a lookup key. Field order and the colon
// joiner are part of the external contract: upstream callers rebuild the
// same string to invalidate entries.
type Key struct {
	Namespace string
	Subject   string
	Operation string
	Version   string // optional; empty serializes as an empty segment
	Limit     int    // optional; <= 0 serializes as "1"
}

// String renders the key as namespace:subject:operation:version:limit.
// Absent optional fields keep their segment so the field count is stable.
func (k Key) String() string {
	limit := k.Limit
	if limit <= 0 {
		limit = 1
	}
	return strings.Join([]string{
		k.Namespace,
		k.Subject,
		k.Operation,
		k.Version,
		strconv.Itoa(limit),
	}, ":")
}

// GenerateKey builds the canonical cache key string. It is a pure function
// of its arguments: no salts, no timestamps, stable across restarts.
func GenerateKey(namespace, subject, operation, version string, limit int) string {
	return Key{
		Namespace: namespace,
		Subject:   subject,
		Operation: operation,
		Version:   version,
		Limit:     limit,
	}.String()
}

// FingerprintKey builds a bounded-length key for embedding results.
// The text is hashed so arbitrarily long inputs produce a fixed-size key.
func FingerprintKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}
