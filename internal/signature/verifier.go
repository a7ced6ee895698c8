// Package signature authenticates inbound Slack requests.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxSkew is how far a request timestamp may drift from the local clock
	MaxSkew = 300 * time.Second

	version = "v0"

	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
)

// Verifier checks v0 request signatures against a shared signing secret
type Verifier struct {
	secret []byte
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Verifier
type Option func(*Verifier)

// WithClock overrides the clock used for the replay window
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier. An empty secret disables verification.
func NewVerifier(secret string, logger *zap.Logger, opts ...Option) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.secret) == 0 {
		logger.Warn("Slack signing secret is not set, request verification is DISABLED")
	}
	return v
}

// Enabled reports whether a signing secret is configured
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify reports whether sig is a fresh, valid signature of body
func (v *Verifier) Verify(body []byte, timestamp, sig string) bool {
	if !v.Enabled() {
		v.logger.Warn("Accepting unsigned request, signing secret is not set")
		return true
	}

	if timestamp == "" || sig == "" {
		v.logger.Warn("Rejecting request without signature headers")
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		v.logger.Warn("Rejecting request with malformed timestamp", zap.String("timestamp", timestamp))
		return false
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSkew {
		v.logger.Warn("Rejecting stale request", zap.Duration("skew", skew))
		return false
	}

	expected := Sign(v.secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		v.logger.Warn("Rejecting request with invalid signature")
		return false
	}
	return true
}

// Sign computes the v0 signature header value for a request
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(version + ":" + timestamp + ":"))
	mac.Write(body)
	return version + "=" + hex.EncodeToString(mac.Sum(nil))
}
