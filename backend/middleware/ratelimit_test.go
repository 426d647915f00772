package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   time.Minute,
		limit:    3,
	}

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	if rl.Allow("10.0.0.1") {
		t.Error("request over limit allowed, want denied")
	}

	// A different client has its own budget
	if !rl.Allow("10.0.0.2") {
		t.Error("separate client denied, want allowed")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   time.Minute,
		limit:    1,
	}

	// Seed a request that already fell out of the window
	rl.requests["10.0.0.1"] = []time.Time{time.Now().Add(-2 * time.Minute)}

	if !rl.Allow("10.0.0.1") {
		t.Error("request denied after window expired, want allowed")
	}
}
