package ipc

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("attempt %d: expected allow", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("4th attempt should be rejected")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("a") {
		t.Fatal("first attempt for key a should be allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("first attempt for key b should be allowed, independent of a")
	}
	if rl.Allow("a") {
		t.Fatal("second attempt for key a should be rejected")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("k") {
		t.Fatal("first attempt should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("second attempt within window should be rejected")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("k") {
		t.Fatal("attempt after window expiry should be allowed")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("k")
	if rl.Allow("k") {
		t.Fatal("second attempt should be rejected before reset")
	}
	rl.Reset()
	if !rl.Allow("k") {
		t.Fatal("attempt after Reset should be allowed")
	}
}
