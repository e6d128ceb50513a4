package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// BodyDigest returns the lowercase hex SHA-256 of a raw request payload.
// Webhook replay protection keys deliveries by this digest.
func BodyDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
