package archon

import "testing"

func TestCacheBasicOperations(t *testing.T) {
	const capacity = 10
	cache := FactoryNewCache[EntityId](capacity)

	ids := []EntityId{NewEntityId(1, 1), NewEntityId(2, 1), NewEntityId(3, 1)}
	names := []string{"alice", "bob", "carol"}
	indices := make([]int, len(ids))

	for i, name := range names {
		index, err := cache.Register(name, ids[i])
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		indices[i] = index
		if index == 0 {
			t.Errorf("index 0 is reserved, got it for %s", name)
		}
	}

	for i, name := range names {
		index, found := cache.GetIndex(name)
		if !found {
			t.Fatalf("name %s not found", name)
		}
		if index != indices[i] {
			t.Errorf("index for %s = %d, want %d", name, index, indices[i])
		}
		if got := *cache.GetItem(index); got != ids[i] {
			t.Errorf("item at %d = %v, want %v", index, got, ids[i])
		}
		if got := *cache.GetItem32(uint32(index)); got != ids[i] {
			t.Errorf("item32 at %d = %v, want %v", index, got, ids[i])
		}
	}

	if _, found := cache.GetIndex("nobody"); found {
		t.Errorf("found unregistered name")
	}
}

func TestCacheReRegisterSameKey(t *testing.T) {
	cache := FactoryNewCache[EntityId](4)
	first := NewEntityId(1, 1)
	second := NewEntityId(2, 1)

	idx1, err := cache.Register("alice", first)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	idx2, err := cache.Register("alice", second)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if idx1 != idx2 {
		t.Errorf("re-registering the same name changed its index: %d -> %d", idx1, idx2)
	}
	if got := *cache.GetItem(idx2); got != second {
		t.Errorf("item after re-register = %v, want %v", got, second)
	}
}

func TestCacheCapacity(t *testing.T) {
	const capacity = 5
	cache := FactoryNewCache[int](capacity)

	for i := 1; i <= capacity; i++ {
		key := string(rune('a' + i))
		if _, err := cache.Register(key, i); err != nil {
			t.Fatalf("register %s: %v", key, err)
		}
	}

	if _, err := cache.Register("overflow", 100); err == nil {
		t.Errorf("expected capacity error, got none")
	}
}

func TestCacheClear(t *testing.T) {
	cache := FactoryNewCache[string](10).(*SimpleCache[string])

	names := []string{"alice", "bob", "carol"}
	for _, n := range names {
		if _, err := cache.Register(n, n); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	cache.Clear()

	for _, n := range names {
		if _, found := cache.GetIndex(n); found {
			t.Errorf("name %s still present after Clear", n)
		}
	}

	for _, n := range names {
		if _, err := cache.Register(n, n); err != nil {
			t.Errorf("register %s after clear: %v", n, err)
		}
	}
}
