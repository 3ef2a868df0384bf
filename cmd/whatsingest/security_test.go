package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "webhook-secret"
	payload := []byte(`{"entry":[]}`)

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, verifySignature(secret, payload, signPayload(secret, payload)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, verifySignature(secret, payload, signPayload("other-secret", payload)))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signPayload(secret, payload)
		assert.False(t, verifySignature(secret, []byte(`{"entry":[{}]}`), header))
	})

	t.Run("missing prefix", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		assert.False(t, verifySignature(secret, payload, hex.EncodeToString(mac.Sum(nil))))
	})

	t.Run("invalid hex", func(t *testing.T) {
		assert.False(t, verifySignature(secret, payload, "sha256=not-hex"))
	})

	t.Run("empty header", func(t *testing.T) {
		assert.False(t, verifySignature(secret, payload, ""))
	})

	t.Run("empty secret disables verification", func(t *testing.T) {
		assert.True(t, verifySignature("", payload, ""))
		assert.True(t, verifySignature("", payload, "sha256=garbage"))
	})
}
