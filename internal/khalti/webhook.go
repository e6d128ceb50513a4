package khalti

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signature computes the hex-encoded HMAC-SHA256 digest of payload keyed by
// secret. This is the value the processor sends in the signature header.
func Signature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the HMAC-SHA256 digest
// of the raw payload under the client's secret. It must run before any field
// of the payload is trusted.
//
// Fail-closed by contract: an empty or malformed signature, arbitrary
// payload bytes, or a missing secret all yield false. Only the boolean is
// observable; no partial reason leaks to the caller.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if c == nil || c.secretKey == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
