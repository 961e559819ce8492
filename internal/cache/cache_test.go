package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](0)
	defer c.Close()

	c.Set(ctx, "a", 1, 0)
	if v, ok := c.Get(ctx, "a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Error("Get(b) should miss")
	}
	if got := c.HitRate(); got != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", got)
	}
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := New[string, string](0)
	defer c.Close()

	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "token0", "0xabc", time.Minute)
	if _, ok := c.Get(ctx, "token0"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(ctx, "token0"); ok {
		t.Error("expected miss after expiry")
	}

	c.purge()
	if c.Len() != 0 {
		t.Errorf("Len after purge = %d", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := New[int, int](time.Hour)
	defer c.Close()

	c.Set(ctx, 1, 1, 0)
	c.Delete(ctx, 1)
	if _, ok := c.Get(ctx, 1); ok {
		t.Error("deleted key still present")
	}
}
