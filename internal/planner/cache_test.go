package planner

import "testing"

func TestCacheGetPutRoundtrip(t *testing.T) {
	c := NewCache(10)
	key := CacheKey{Collection: "users", FilterDigest: "a", OptionsDigest: "b"}
	c.Put(key, CacheEntry{Plan: Plan{Kind: CollectionScan}})

	entry, ok := c.Get(key)
	if !ok || entry.Plan.Kind != CollectionScan {
		t.Fatalf("expected a cache hit, got %+v, %v", entry, ok)
	}
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c := NewCache(10)
	_, ok := c.Get(CacheKey{Collection: "users"})
	if ok {
		t.Error("expected a cache miss on an empty cache")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	k1 := CacheKey{Collection: "users", FilterDigest: "1"}
	k2 := CacheKey{Collection: "users", FilterDigest: "2"}
	k3 := CacheKey{Collection: "users", FilterDigest: "3"}

	c.Put(k1, CacheEntry{})
	c.Put(k2, CacheEntry{})
	c.Get(k1) // touch k1 so k2 becomes the least recently used entry
	c.Put(k3, CacheEntry{})

	if _, ok := c.Get(k2); ok {
		t.Error("k2 should have been evicted as the least recently used entry")
	}
	if _, ok := c.Get(k1); !ok {
		t.Error("k1 was touched more recently and should survive")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("k3 was just inserted and should survive")
	}
}

func TestCacheInvalidateCollectionEvictsOnlyThatCollection(t *testing.T) {
	c := NewCache(10)
	usersKey := CacheKey{Collection: "users", FilterDigest: "a"}
	ordersKey := CacheKey{Collection: "orders", FilterDigest: "b"}

	c.Put(usersKey, CacheEntry{})
	c.Put(ordersKey, CacheEntry{})
	c.InvalidateCollection("users")

	if _, ok := c.Get(usersKey); ok {
		t.Error("users entry should have been invalidated")
	}
	if _, ok := c.Get(ordersKey); !ok {
		t.Error("orders entry should be unaffected by a users invalidation")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCachePutUpdatesExistingKeyInPlace(t *testing.T) {
	c := NewCache(10)
	key := CacheKey{Collection: "users", FilterDigest: "a"}
	c.Put(key, CacheEntry{Plan: Plan{Kind: CollectionScan}})
	c.Put(key, CacheEntry{Plan: Plan{Kind: IndexPointLookup}})

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after re-inserting the same key", c.Len())
	}
	entry, ok := c.Get(key)
	if !ok || entry.Plan.Kind != IndexPointLookup {
		t.Errorf("expected the updated entry, got %+v", entry)
	}
}
