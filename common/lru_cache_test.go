package common

import (
	"strings"
	"testing"
)

func TestLruExceedCapacity(t *testing.T) {
	c := NewLruCache[int, int](3)

	c.Set(1, 11)
	c.Set(2, 22)

	evictedKey, evictedValue, evicted := c.Set(3, 33)
	if evictedKey != 0 || evictedValue != 0 || evicted {
		t.Errorf("No items should have been evicted yet")
	}
	if !c.Full() {
		t.Errorf("cache should be full")
	}

	_, exists := c.Get(1) // one refreshed - first in the list now
	if !exists {
		t.Errorf("Item should exist")
	}

	evictedKey, evictedValue, evicted = c.Set(5, 44)
	if evictedKey != 2 || evictedValue != 22 || !evicted {
		t.Errorf("Incorrectly evicted items: %d/%d", evictedKey, evictedValue)
	}
	if _, exists = c.Get(2); exists {
		t.Errorf("Item should be evicted")
	}
	if got := c.Len(); got != 3 {
		t.Errorf("unexpected size %d", got)
	}
}

func TestLRUOrder(t *testing.T) {
	c := NewLruCache[int, int](3)

	c.Set(1, 11)
	c.Set(2, 22)
	c.Set(3, 33)

	_, _ = c.Get(1) // one refreshed - first in the list now
	if c.head.key != 1 {
		t.Errorf("Item should be head")
	}
	if c.tail.key != 2 {
		t.Errorf("Item should be tail")
	}

	c.Set(2, 222) // two refreshed - first in the list now
	if c.head.key != 2 {
		t.Errorf("Item should be head")
	}
	if c.tail.key != 3 {
		t.Errorf("Item should be tail")
	}

	// insert exceeding and check order
	c.Set(4, 44)
	if c.head.key != 4 || c.head.next.key != 2 || c.head.next.next.key != 1 {
		t.Errorf("wrong order")
	}
	if c.tail.key != 1 || c.tail.prev.key != 2 || c.tail.prev.prev.key != 4 {
		t.Errorf("wrong order")
	}
}

func TestLruPeekDoesNotChangeOrder(t *testing.T) {
	c := NewLruCache[int, int](2)
	c.Set(1, 11)
	c.Set(2, 22)
	if val, exists := c.Peek(1); !exists || val != 11 {
		t.Errorf("unexpected value %d, exists %t", val, exists)
	}
	if key, val, exists := c.Oldest(); !exists || key != 1 || val != 11 {
		t.Errorf("unexpected oldest entry %d/%d", key, val)
	}
	if _, exists := c.Peek(3); exists {
		t.Errorf("missing key should not be found")
	}
}

func TestLruRemove(t *testing.T) {
	c := NewLruCache[int, int](3)
	c.Set(1, 11)
	c.Set(2, 22)
	c.Set(3, 33)

	for _, key := range []int{2, 3, 1} {
		val, exists := c.Remove(key)
		if !exists || val != key*11 {
			t.Errorf("unexpected removal result %d, exists %t", val, exists)
		}
		if _, exists := c.Get(key); exists {
			t.Errorf("removed key %d still present", key)
		}
	}
	if _, exists := c.Remove(1); exists {
		t.Errorf("key should be removed once")
	}
	if _, _, exists := c.Oldest(); exists || c.head != nil || c.tail != nil {
		t.Errorf("empty cache should have no entries")
	}

	// the queue stays usable
	c.Set(4, 44)
	c.Set(5, 55)
	if c.head.key != 5 || c.tail.key != 4 {
		t.Errorf("wrong order")
	}
}

func TestLruIterateVisitsMostRecentFirst(t *testing.T) {
	c := NewLruCache[int, int](3)
	c.Set(1, 11)
	c.Set(2, 22)
	c.Set(3, 33)

	var keys []int
	c.Iterate(func(key int, val *int) bool {
		keys = append(keys, key)
		*val += 1
		return true
	})
	if len(keys) != 3 || keys[0] != 3 || keys[1] != 2 || keys[2] != 1 {
		t.Errorf("unexpected order %v", keys)
	}
	if val, _ := c.Peek(2); val != 23 {
		t.Errorf("value not updated, got %d", val)
	}

	count := 0
	c.Iterate(func(int, *int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("iteration should stop, visited %d", count)
	}
}

func TestLruClear(t *testing.T) {
	c := NewLruCache[int, int](2)
	c.Set(1, 11)
	c.Set(2, 22)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("cache should be empty")
	}
	if _, _, evicted := c.Set(3, 33); evicted {
		t.Errorf("nothing should be evicted after clearing")
	}
}

func TestLruCapacityIsAtLeastOne(t *testing.T) {
	c := NewLruCache[int, int](0)
	if got := c.Capacity(); got != 1 {
		t.Errorf("unexpected capacity %d", got)
	}
	c.Set(1, 11)
	if key, _, evicted := c.Set(2, 22); !evicted || key != 1 {
		t.Errorf("single entry should be evicted")
	}
}

func TestLruMemoryFootprint(t *testing.T) {
	c := NewLruCache[int, []byte](4)
	c.Set(1, make([]byte, 100))
	c.Set(2, make([]byte, 200))
	mf := c.GetDynamicMemoryFootprint(func(v []byte) uintptr {
		return uintptr(cap(v))
	})
	if mf.Total() < 300 {
		t.Errorf("footprint should cover the values, got %d", mf.Total())
	}
	if e := (entry[int, int]{key: 1, val: 2}); !strings.Contains(e.String(), "1 -> 2") {
		t.Errorf("unexpected entry description %s", e)
	}
}
