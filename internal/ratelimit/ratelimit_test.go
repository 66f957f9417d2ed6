package ratelimit

import (
	"testing"
	"time"
)

func TestAllowFirstCallAdmitted(t *testing.T) {
	l := New(time.Minute)
	ok, wait := l.Allow("k")
	if !ok {
		t.Fatal("expected the first call for a key to be admitted")
	}
	if wait != 0 {
		t.Fatalf("expected zero wait on admission, got %v", wait)
	}
}

func TestAllowRejectsWithinInterval(t *testing.T) {
	l := New(time.Minute)
	l.Allow("k")
	ok, wait := l.Allow("k")
	if ok {
		t.Fatal("expected the second call within the interval to be rejected")
	}
	if wait <= 0 {
		t.Fatalf("expected a positive wait duration, got %v", wait)
	}
}

func TestAllowAdmitsAfterIntervalElapses(t *testing.T) {
	l := New(10 * time.Millisecond)
	l.Allow("k")
	time.Sleep(20 * time.Millisecond)
	ok, _ := l.Allow("k")
	if !ok {
		t.Fatal("expected a call after the interval has elapsed to be admitted")
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(time.Minute)
	l.Allow("a")
	ok, _ := l.Allow("b")
	if !ok {
		t.Fatal("expected a different key to be independently admitted")
	}
}

func TestResetClearsBuckets(t *testing.T) {
	l := New(time.Minute)
	l.Allow("k")
	l.Reset()
	ok, _ := l.Allow("k")
	if !ok {
		t.Fatal("expected Reset to clear tracked buckets, re-admitting the key")
	}
}

func TestKeyCombinesParts(t *testing.T) {
	if got := Key("a", "b"); got != "a:b" {
		t.Fatalf("expected 'a:b', got %q", got)
	}
}

func TestNewClampsNonPositiveInterval(t *testing.T) {
	l := New(0)
	if l.interval != 30*time.Second {
		t.Fatalf("expected default interval of 30s, got %v", l.interval)
	}
}
