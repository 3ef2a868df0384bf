package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// verifySignature checks an X-Hub-Signature-256 header against the raw
// payload. An empty configured secret disables verification (local
// development only). Comparison is constant-time.
func verifySignature(secret string, payload []byte, header string) bool {
	if secret == "" {
		return true
	}

	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(provided, expected)
}
