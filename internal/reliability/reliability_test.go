package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}

func TestReconnectPolicyFixedInterval(t *testing.T) {
	p := NewReconnectPolicy(2 * time.Second)

	for i := 1; i <= 3; i++ {
		if d := p.NextDelay(); d != 2*time.Second {
			t.Fatalf("NextDelay() attempt %d = %v, want 2s", i, d)
		}
	}
	if p.Attempts() != 3 {
		t.Fatalf("Attempts() = %d, want 3", p.Attempts())
	}

	p.Reset()
	if p.Attempts() != 0 {
		t.Fatalf("Attempts() after Reset = %d, want 0", p.Attempts())
	}
}

func TestReconnectPolicyDefaultInterval(t *testing.T) {
	p := NewReconnectPolicy(0)
	if d := p.NextDelay(); d != 2500*time.Millisecond {
		t.Fatalf("NextDelay() = %v, want 2.5s default", d)
	}
}
