package ds

import (
	"cmp"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

// Sentinel positions for list nodes.
const (
	finite int8 = iota
	headSentinel
	tailSentinel
)

// listNode is a node of the lazy list. next and marked are read without the
// lock; they are only written with it held.
//
//nolint:govet // fieldalignment: hot fields first
type listNode[K cmp.Ordered, V any] struct {
	next     atomic.Pointer[listNode[K, V]]
	value    atomic.Pointer[V]
	marked   atomic.Bool
	sentinel int8
	key      K
	mu       sync.Mutex
}

// before reports whether the node sorts strictly before key.
func (n *listNode[K, V]) before(key K) bool {
	return n.sentinel == headSentinel || (n.sentinel == finite && n.key < key)
}

func (n *listNode[K, V]) is(key K) bool {
	return n.sentinel == finite && n.key == key
}

// LinkedList is a sorted linked list with lazy synchronization: traversals take
// no locks, writers lock the two nodes they touch and validate them, and a
// removed node is marked before it is unlinked.
type LinkedList[K cmp.Ordered, V any] struct {
	head *listNode[K, V]
	pool *reclaim.Pool[listNode[K, V]]
}

// NewList returns an empty list.
func NewList[K cmp.Ordered, V any]() *LinkedList[K, V] {
	return newList(newListPool[K, V]())
}

func newListPool[K cmp.Ordered, V any]() *reclaim.Pool[listNode[K, V]] {
	return reclaim.NewPool(func() *listNode[K, V] { return new(listNode[K, V]) })
}

func newList[K cmp.Ordered, V any](pool *reclaim.Pool[listNode[K, V]]) *LinkedList[K, V] {
	tail := &listNode[K, V]{sentinel: tailSentinel}
	head := &listNode[K, V]{sentinel: headSentinel}
	head.next.Store(tail)
	return &LinkedList[K, V]{head: head, pool: pool}
}

func (l *LinkedList[K, V]) newNode(key K, value V, next *listNode[K, V]) *listNode[K, V] {
	n := l.pool.Get()
	n.key = key
	n.sentinel = finite
	n.marked.Store(false)
	n.value.Store(&value)
	n.next.Store(next)
	return n
}

// find returns the adjacent pair pred < key <= curr, both shielded.
func (l *LinkedList[K, V]) find(c *Cursor, key K) (pred, curr *listNode[K, V]) {
	for {
		if pred, curr, ok := l.tryFind(c, key); ok {
			return pred, curr
		}
	}
}

func (l *LinkedList[K, V]) tryFind(c *Cursor, key K) (pred, curr *listNode[K, V], ok bool) {
	slot := 0
	pred = l.head
	curr = pred.next.Load()
	for {
		if !c.protect(slot, unsafe.Pointer(curr)) {
			return nil, nil, false
		}
		if !curr.before(key) {
			return pred, curr, true
		}
		pred = curr
		curr = curr.next.Load()
		slot ^= 1
	}
}

// validate must be called with pred and curr locked.
func validate[K cmp.Ordered, V any](pred, curr *listNode[K, V]) bool {
	return !pred.marked.Load() && !curr.marked.Load() && pred.next.Load() == curr
}

func (l *LinkedList[K, V]) Get(c *Cursor, key K) (V, bool) {
	_, curr := l.find(c, key)
	if curr.is(key) && !curr.marked.Load() {
		return *curr.value.Load(), true
	}
	var zero V
	return zero, false
}

func (l *LinkedList[K, V]) Insert(c *Cursor, key K, value V) (V, bool) {
	for {
		pred, curr := l.find(c, key)
		pred.mu.Lock()
		curr.mu.Lock()
		if !validate(pred, curr) {
			curr.mu.Unlock()
			pred.mu.Unlock()
			continue
		}

		if curr.is(key) {
			old := curr.value.Swap(&value)
			curr.mu.Unlock()
			pred.mu.Unlock()
			return *old, true
		}

		pred.next.Store(l.newNode(key, value, curr))
		curr.mu.Unlock()
		pred.mu.Unlock()
		var zero V
		return zero, false
	}
}

func (l *LinkedList[K, V]) Remove(c *Cursor, key K) (V, bool) {
	for {
		pred, curr := l.find(c, key)
		pred.mu.Lock()
		curr.mu.Lock()
		if !validate(pred, curr) {
			curr.mu.Unlock()
			pred.mu.Unlock()
			continue
		}

		if !curr.is(key) {
			curr.mu.Unlock()
			pred.mu.Unlock()
			var zero V
			return zero, false
		}

		curr.marked.Store(true)
		pred.next.Store(curr.next.Load())
		old := *curr.value.Load()
		curr.mu.Unlock()
		pred.mu.Unlock()

		c.h.Retire(unsafe.Pointer(curr), func() { l.pool.Put(curr) })
		return old, true
	}
}

// Len counts the unmarked entries.
func (l *LinkedList[K, V]) Len() int {
	n := 0
	for curr := l.head.next.Load(); curr.sentinel != tailSentinel; curr = curr.next.Load() {
		if !curr.marked.Load() {
			n++
		}
	}
	return n
}

// Keys returns the entries' keys in order.
func (l *LinkedList[K, V]) Keys() []K {
	var out []K
	for curr := l.head.next.Load(); curr.sentinel != tailSentinel; curr = curr.next.Load() {
		if !curr.marked.Load() {
			out = append(out, curr.key)
		}
	}
	return out
}
