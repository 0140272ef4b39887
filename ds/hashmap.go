package ds

import (
	"cmp"
	"math/bits"
)

// LoadFactor is the expected number of keys per bucket at full capacity.
const LoadFactor = 2

// ChainingHashMap is a fixed-size array of lazy lists. Buckets share one node
// pool, and a key's bucket is picked by hashing it.
type ChainingHashMap[K cmp.Ordered, V any] struct {
	buckets []*LinkedList[K, V]
	mask    uint64
	hasher  func(K) uint64
}

// NewHashMap returns a map with enough buckets for capacity keys.
func NewHashMap[K cmp.Ordered, V any](capacity int) *ChainingHashMap[K, V] {
	n := max(capacity/LoadFactor, 1)
	//nolint:gosec // G115: n >= 1
	n = 1 << bits.Len(uint(n-1))

	pool := newListPool[K, V]()
	m := &ChainingHashMap[K, V]{
		buckets: make([]*LinkedList[K, V], n),
		//nolint:gosec // G115: n is a positive power of two
		mask:   uint64(n - 1),
		hasher: hasherFor[K](),
	}
	for i := range m.buckets {
		m.buckets[i] = newList(pool)
	}
	return m
}

func (m *ChainingHashMap[K, V]) bucket(key K) *LinkedList[K, V] {
	return m.buckets[m.hasher(key)&m.mask]
}

func (m *ChainingHashMap[K, V]) Get(c *Cursor, key K) (V, bool) {
	return m.bucket(key).Get(c, key)
}

func (m *ChainingHashMap[K, V]) Insert(c *Cursor, key K, value V) (V, bool) {
	return m.bucket(key).Insert(c, key, value)
}

func (m *ChainingHashMap[K, V]) Remove(c *Cursor, key K) (V, bool) {
	return m.bucket(key).Remove(c, key)
}

// Buckets returns the bucket count.
func (m *ChainingHashMap[K, V]) Buckets() int { return len(m.buckets) }

func (m *ChainingHashMap[K, V]) Len() int {
	n := 0
	for _, b := range m.buckets {
		n += b.Len()
	}
	return n
}
