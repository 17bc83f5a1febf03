// Package idempotency derives deterministic, time-windowed fingerprints
// from transaction attributes. Retries of the same logical request within
// one window collapse to the same key; after the window rolls over the
// same payload is treated as a new transaction (bounded-amnesia
// deduplication, not global).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultWindow is the dedup window applied when none is configured.
const DefaultWindow = 300 * time.Second

type Fingerprinter struct {
	window time.Duration
}

func NewFingerprinter(window time.Duration) *Fingerprinter {
	if window <= 0 {
		window = DefaultWindow
	}
	// Key floors unix seconds, so anything below a second would divide
	// by zero.
	if window < time.Second {
		window = time.Second
	}
	return &Fingerprinter{window: window}
}

// Key computes the fingerprint for the given business fields at time now.
// The window boundary is the unix timestamp floored to the window size,
// so all calls within the same window hash identically.
func (f *Fingerprinter) Key(merchantID, orderReference, amount, currency, txnType, countryCode string, now time.Time) string {
	windowSecs := int64(f.window / time.Second)
	boundary := now.Unix() / windowSecs * windowSecs

	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		merchantID, orderReference, amount, currency, txnType, countryCode, boundary)

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Window reports the configured dedup window.
func (f *Fingerprinter) Window() time.Duration {
	return f.window
}
