// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"fmt"
	"unsafe"
)

// LruCache maps keys to values and keeps track of the order in which the
// keys have been used. Once the capacity is reached, adding a new key evicts
// the least recently used one. Clients needing to act on evicted values
// before they are dropped may inspect the Oldest entry and Remove it first.
type LruCache[K comparable, V any] struct {
	cache    map[K]*entry[K, V]
	capacity int
	head     *entry[K, V]
	tail     *entry[K, V]
}

// NewLruCache returns a new instance; the capacity is at least one.
func NewLruCache[K comparable, V any](capacity int) *LruCache[K, V] {
	capacity = max(capacity, 1)
	return &LruCache[K, V]{
		cache:    make(map[K]*entry[K, V], capacity),
		capacity: capacity,
	}
}

func (c *LruCache[K, V]) Len() int {
	return len(c.cache)
}

func (c *LruCache[K, V]) Capacity() int {
	return c.capacity
}

// Full reports whether adding a new key would evict an entry.
func (c *LruCache[K, V]) Full() bool {
	return len(c.cache) >= c.capacity
}

// Get returns the value of the given key and marks the key used.
func (c *LruCache[K, V]) Get(key K) (V, bool) {
	var val V
	item, exists := c.cache[key]
	if exists {
		val = item.val
		c.touch(item)
	}
	return val, exists
}

// Peek returns the value of the given key without marking the key used.
func (c *LruCache[K, V]) Peek(key K) (V, bool) {
	var val V
	item, exists := c.cache[key]
	if exists {
		val = item.val
	}
	return val, exists
}

// Set associates the key with the given value and marks the key used. If
// the key is new and the cache is full, the least recently used entry is
// evicted and returned.
func (c *LruCache[K, V]) Set(key K, val V) (evictedKey K, evictedValue V, evicted bool) {
	if item, exists := c.cache[key]; exists {
		item.val = val
		c.touch(item)
		return
	}

	var item *entry[K, V]
	if len(c.cache) >= c.capacity {
		item = c.dropLast() // reuse evicted object for the new entry
		evictedKey, evictedValue, evicted = item.key, item.val, true
	} else {
		item = new(entry[K, V])
	}
	item.key = key
	item.val = val
	c.cache[key] = item
	c.pushFront(item)
	return
}

// Oldest returns the least recently used entry.
func (c *LruCache[K, V]) Oldest() (key K, val V, exists bool) {
	if c.tail == nil {
		return
	}
	return c.tail.key, c.tail.val, true
}

// Remove deletes the key and returns its value.
func (c *LruCache[K, V]) Remove(key K) (original V, exists bool) {
	item, exists := c.cache[key]
	if !exists {
		return
	}
	delete(c.cache, key)
	c.unlink(item)
	return item.val, true
}

// Iterate calls the callback for all entries from the most to the least
// recently used one, stopping when the callback returns false. The value
// may be modified through the passed pointer; the order is not changed.
func (c *LruCache[K, V]) Iterate(callback func(K, *V) bool) {
	for item := c.head; item != nil; item = item.next {
		if !callback(item.key, &item.val) {
			return
		}
	}
}

func (c *LruCache[K, V]) Clear() {
	if len(c.cache) > 0 {
		c.cache = make(map[K]*entry[K, V], c.capacity)
	}
	c.head = nil
	c.tail = nil
}

// touch moves the entry to the front of the queue.
func (c *LruCache[K, V]) touch(item *entry[K, V]) {
	if item == c.head {
		return
	}
	c.unlink(item)
	c.pushFront(item)
}

func (c *LruCache[K, V]) pushFront(item *entry[K, V]) {
	item.prev = nil
	item.next = c.head
	if c.head != nil {
		c.head.prev = item
	}
	c.head = item
	if c.tail == nil {
		c.tail = item
	}
}

func (c *LruCache[K, V]) unlink(item *entry[K, V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
	item.prev = nil
	item.next = nil
}

// dropLast removes the last element from the queue and returns it.
func (c *LruCache[K, V]) dropLast() *entry[K, V] {
	dropped := c.tail
	delete(c.cache, dropped.key)
	c.unlink(dropped)
	return dropped
}

// GetDynamicMemoryFootprint provides the size of the cache in memory in bytes
// for values referencing memory of their own, e.g. pages.
func (c *LruCache[K, V]) GetDynamicMemoryFootprint(valueSizeProvider func(V) uintptr) *MemoryFootprint {
	selfSize := unsafe.Sizeof(*c)
	entryPointerSize := unsafe.Sizeof(&entry[K, V]{})
	size := uintptr(c.capacity) * entryPointerSize
	for _, value := range c.cache {
		size += unsafe.Sizeof(entry[K, V]{})
		size += valueSizeProvider(value.val)
	}
	return NewMemoryFootprint(selfSize + size)
}

// entry is a cache item wrapping a key, a value and references to the
// previous and next elements of the queue.
type entry[K comparable, V any] struct {
	key  K
	val  V
	prev *entry[K, V]
	next *entry[K, V]
}

func (e entry[K, V]) String() string {
	return fmt.Sprintf("Entry: %v -> %v", e.key, e.val)
}
