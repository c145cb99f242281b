package reliability

import (
	"sync"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ReconnectPolicy computes the wait before the next upstream reconnect
// attempt. The upstream relay uses a fixed interval: the link carries a
// single always-on session, so there is nothing to gain from spreading
// retries out, and a short constant delay keeps recovery prompt.
type ReconnectPolicy struct {
	mu       sync.Mutex
	interval time.Duration
	attempts int
}

func NewReconnectPolicy(interval time.Duration) *ReconnectPolicy {
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	return &ReconnectPolicy{interval: interval}
}

// NextDelay records an attempt and returns the delay before it.
func (p *ReconnectPolicy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	return p.interval
}

// Reset clears the attempt counter after a successful connect.
func (p *ReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
}

// Attempts reports reconnect attempts since the last successful connect.
func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
