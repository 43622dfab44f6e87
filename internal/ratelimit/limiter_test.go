package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	l := New(15*time.Second, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Error("request 4 allowed, want rejected")
	}
}

func TestWindowReset(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	l := New(15*time.Second, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("1.2.3.4") {
		t.Fatal("first request rejected")
	}
	if l.Allow("1.2.3.4") {
		t.Error("second request in window allowed, want rejected")
	}

	now = now.Add(16 * time.Second)
	if !l.Allow("1.2.3.4") {
		t.Error("request after window elapsed rejected, want allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(15*time.Second, 1)

	if !l.Allow("1.1.1.1") {
		t.Fatal("first key rejected")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("second key rejected, want independent buckets")
	}
}
