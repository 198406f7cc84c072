// Package signing computes and verifies the HMAC-SHA256 signatures carried
// in the X-Hub-Signature-256 header, both for inbound hooks and for the
// copies relayed to destinations.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// HeaderSignature256 carries "sha256=<hex>" on inbound and outbound hooks.
	HeaderSignature256 = "X-Hub-Signature-256"
	// HeaderSignature is the legacy SHA-1 header. It is never relayed.
	HeaderSignature = "X-Hub-Signature"

	Prefix = "sha256="
)

// Sign returns the lower-case hex HMAC-SHA256 of data keyed with secret.
func Sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHex is the HMAC-SHA256 of data keyed with
// secret. Malformed hex is treated as a mismatch.
func Verify(secret string, data []byte, signatureHex string) bool {
	received, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(mac.Sum(nil), received)
}

// Header renders the X-Hub-Signature-256 value for data.
func Header(secret string, data []byte) string {
	return Prefix + Sign(secret, data)
}

// VerifyHeader checks an X-Hub-Signature-256 value of the form "sha256=<hex>".
func VerifyHeader(secret string, data []byte, value string) bool {
	if !strings.HasPrefix(value, Prefix) {
		return false
	}
	return Verify(secret, data, strings.TrimPrefix(value, Prefix))
}
