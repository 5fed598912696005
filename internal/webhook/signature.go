// Package webhook verifies inbound bank notifications.
//
// The notifier signs the exact request body with HMAC-SHA256 using a shared
// secret and sends it as:
//
//	X-Fleet-Signature: sha256={hex}
//
// Verification must run on the raw body before any JSON decoding.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultHeader is the request header carrying the signature
const DefaultHeader = "X-Fleet-Signature"

const schemePrefix = "sha256="

// ComputeSignature returns the hex HMAC-SHA256 of payload
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign produces the header value for payload, e.g. "sha256=ab12..."
func Sign(payload []byte, secret string) string {
	return schemePrefix + ComputeSignature(payload, secret)
}

// Verify checks signature against payload. Both "sha256=<hex>" and a bare
// hex digest are accepted. Anything malformed returns false, and an empty
// secret never verifies.
func Verify(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}

	sig := strings.TrimSpace(signature)
	if i := strings.IndexByte(sig, '='); i >= 0 {
		if !strings.EqualFold(sig[:i+1], schemePrefix) {
			return false
		}
		sig = sig[i+1:]
	}

	provided, err := hex.DecodeString(sig)
	if err != nil || len(provided) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
