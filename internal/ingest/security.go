package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Webhook signatures older than this are rejected as replays
const maxSignatureAge = 5 * time.Minute

// Verifier checks webhook HMAC signatures. With no secret configured
// verification is disabled and every request passes.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a signature verifier
func NewVerifier(secret string) *Verifier {
	v := &Verifier{}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// Enabled reports whether a secret is configured
func (v *Verifier) Enabled() bool { return v.secret != nil }

// Verify checks the signature header against HMAC-SHA256 of
// "<timestamp>.<body>" and rejects stale timestamps
func (v *Verifier) Verify(body []byte, signature, timestamp string) error {
	if !v.Enabled() {
		return nil
	}
	if signature == "" {
		return fmt.Errorf("missing signature header")
	}
	if timestamp == "" {
		return fmt.Errorf("missing timestamp header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp format")
	}

	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxSignatureAge {
		return fmt.Errorf("timestamp expired (%s old)", age.Truncate(time.Second))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// IPRateLimiter keeps a token bucket per caller IP
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewIPRateLimiter creates a per-IP rate limiter
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the caller may proceed
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Reset drops all tracked buckets. Called periodically to bound
// memory on churning caller IPs.
func (l *IPRateLimiter) Reset() {
	l.mu.Lock()
	l.limiters = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}
