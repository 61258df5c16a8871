package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)
	c.Set(ctx, "b", 2, 0)

	if v, ok := c.Get(ctx, "a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if v, ok := c.Get(ctx, "b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v", v, ok)
	}
	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, string](0)
	defer c.Close()
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", "v", time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss at expiry")
	}

	c.evictExpired()
	if c.Len() != 0 {
		t.Errorf("Len = %d after eviction", c.Len())
	}
}

func TestCache_DeleteClearClose(t *testing.T) {
	c := New[int, int](10 * time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, 1, 1, 0)
	c.Set(ctx, 2, 2, 0)
	c.Delete(ctx, 1)
	if _, ok := c.Get(ctx, 1); ok {
		t.Error("expected deleted key to miss")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear", c.Len())
	}

	c.Close()
	c.Close()
}
