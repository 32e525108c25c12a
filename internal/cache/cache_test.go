package cache

import "testing"

func TestGetSet(t *testing.T) {
	c := NewBounded[string](4)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit")
	}
	c.Set("a", "1")
	v, ok := c.Get("a")
	if !ok || v != "1" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	// overwriting does not evict
	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" {
		t.Errorf("overwrite = %q", v)
	}

	stats := c.Stats()
	if stats.Items != 1 || stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEvictionKeepsBound(t *testing.T) {
	c := NewBounded[int](3)
	for i, k := range []string{"a", "b", "c", "d", "e"} {
		c.Set(k, i)
	}
	stats := c.Stats()
	if stats.Items > 3 {
		t.Errorf("items = %d, want <= 3", stats.Items)
	}
	if stats.Evictions != 2 {
		t.Errorf("evictions = %d, want 2", stats.Evictions)
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewBounded[int](4)
	c.Set("a", 1)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry survived delete")
	}

	c.Set("b", 2)
	c.Clear()
	stats := c.Stats()
	if stats.Items != 0 || stats.Hits != 0 {
		t.Errorf("stats after clear = %+v", stats)
	}
}

func TestZeroCapacityFallsBackToOne(t *testing.T) {
	c := NewBounded[int](0)
	c.Set("a", 1)
	c.Set("b", 2)
	if stats := c.Stats(); stats.Items != 1 {
		t.Errorf("items = %d, want 1", stats.Items)
	}
}
