package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify_ValidSignature(t *testing.T) {
	v := NewVerifier("topsecret")
	require.True(t, v.Enabled())

	body := []byte(`[{"type":"SWAP"}]`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	assert.NoError(t, v.Verify(body, signPayload("topsecret", ts, body), ts))
}

func TestVerify_WrongSecret(t *testing.T) {
	v := NewVerifier("topsecret")

	body := []byte(`[{"type":"SWAP"}]`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	err := v.Verify(body, signPayload("otherkey", ts, body), ts)
	assert.ErrorContains(t, err, "signature mismatch")
}

func TestVerify_TamperedBody(t *testing.T) {
	v := NewVerifier("topsecret")

	ts := fmt.Sprintf("%d", time.Now().Unix())
	sig := signPayload("topsecret", ts, []byte(`original`))

	err := v.Verify([]byte(`tampered`), sig, ts)
	assert.ErrorContains(t, err, "signature mismatch")
}

func TestVerify_StaleTimestamp(t *testing.T) {
	v := NewVerifier("topsecret")

	body := []byte(`[]`)
	ts := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())

	err := v.Verify(body, signPayload("topsecret", ts, body), ts)
	assert.ErrorContains(t, err, "expired")
}

func TestVerify_MissingHeaders(t *testing.T) {
	v := NewVerifier("topsecret")
	ts := fmt.Sprintf("%d", time.Now().Unix())

	assert.ErrorContains(t, v.Verify([]byte(`[]`), "", ts), "missing signature")
	assert.ErrorContains(t, v.Verify([]byte(`[]`), "deadbeef", ""), "missing timestamp")
	assert.ErrorContains(t, v.Verify([]byte(`[]`), "deadbeef", "not-a-number"), "invalid timestamp")
}

func TestVerify_DisabledWithoutSecret(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify([]byte(`anything`), "", ""))
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")

	// Buckets are per IP
	assert.True(t, l.Allow("10.0.0.2"))

	l.Reset()
	assert.True(t, l.Allow("10.0.0.1"))
}
