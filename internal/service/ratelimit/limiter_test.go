package ratelimit

import (
	"testing"
	"time"
)

func TestAllowDrainsBucket(t *testing.T) {
	l := New()
	for i := 0; i < 3; i++ {
		if !l.Allow("u1", 3, 0) {
			t.Fatalf("call %d should be within capacity", i)
		}
	}
	if l.Allow("u1", 3, 0) {
		t.Fatal("bucket should be empty")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Allow("a", 1, 0) {
		t.Fatal("first call for a")
	}
	if l.Allow("a", 1, 0) {
		t.Fatal("a is drained")
	}
	if !l.Allow("b", 1, 0) {
		t.Fatal("b must not share a's bucket")
	}
}

func TestRefill(t *testing.T) {
	l := New()
	if !l.Allow("u1", 1, 100) {
		t.Fatal("first call")
	}
	if l.Allow("u1", 1, 100) {
		t.Fatal("drained")
	}
	time.Sleep(30 * time.Millisecond)
	if !l.Allow("u1", 1, 100) {
		t.Fatal("bucket should have refilled")
	}
}

func TestPrune(t *testing.T) {
	l := New()
	l.Allow("stale", 1, 0)
	time.Sleep(5 * time.Millisecond)
	l.Prune(time.Millisecond)

	l.mu.Lock()
	_, ok := l.m["stale"]
	l.mu.Unlock()
	if ok {
		t.Fatal("idle bucket should be pruned")
	}
}
