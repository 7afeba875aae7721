package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("a", 1, time.Minute)

	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}

	// no intervening write: same result
	v2, ok2 := c.Get("a")
	if !ok2 || v2 != v {
		t.Fatalf("second Get(a) = (%d, %v), want identical", v2, ok2)
	}
}

func TestExpiry(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if n := c.Len(); n != 0 {
		t.Fatalf("Len = %d after lazy eviction, want 0", n)
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache[string]()
	c.Set("k", "v", 0)
	time.Sleep(15 * time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Fatal("zero-ttl entry should not expire")
	}
}

func TestOverwrite(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)

	if v, _ := c.Get("k"); v != 2 {
		t.Fatalf("Get(k) = %d, want 2", v)
	}
	if n := c.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewTTLCache[int]()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted entry still present")
	}

	c.Clear()
	if n := c.Len(); n != 0 {
		t.Fatalf("Len = %d after Clear, want 0", n)
	}
}
