package ds

import (
	"cmp"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

// Infinite keys of the tree's sentinels; inf1 < inf2 and both exceed any key.
const (
	inf0 int8 = iota
	inf1
	inf2
)

//nolint:govet // fieldalignment: hot fields first
type treeNode[K cmp.Ordered, V any] struct {
	left   atomic.Pointer[treeNode[K, V]]
	right  atomic.Pointer[treeNode[K, V]]
	value  atomic.Pointer[V]
	marked atomic.Bool
	leaf   bool
	inf    int8
	key    K
	mu     sync.Mutex
}

// goesLeft reports whether key routes to the node's left subtree.
func (n *treeNode[K, V]) goesLeft(key K) bool {
	return n.inf != inf0 || key < n.key
}

func (n *treeNode[K, V]) is(key K) bool {
	return n.inf == inf0 && n.key == key
}

func (n *treeNode[K, V]) child(left bool) *atomic.Pointer[treeNode[K, V]] {
	if left {
		return &n.left
	}
	return &n.right
}

// ExternalBST is a leaf-oriented binary search tree: keys and values live in
// leaves and internal nodes only route. Searches take no locks. Insert locks
// the leaf's parent; Remove locks grandparent and parent, splices the sibling
// into the grandparent, and marks both removed nodes.
type ExternalBST[K cmp.Ordered, V any] struct {
	root *treeNode[K, V]
	pool *reclaim.Pool[treeNode[K, V]]
}

// NewNMTree returns an empty tree.
func NewNMTree[K cmp.Ordered, V any]() *ExternalBST[K, V] {
	root := &treeNode[K, V]{inf: inf2}
	root.left.Store(&treeNode[K, V]{inf: inf1, leaf: true})
	root.right.Store(&treeNode[K, V]{inf: inf2, leaf: true})
	return &ExternalBST[K, V]{
		root: root,
		pool: reclaim.NewPool(func() *treeNode[K, V] { return new(treeNode[K, V]) }),
	}
}

func (t *ExternalBST[K, V]) node(key K, inf int8, leaf bool, left, right *treeNode[K, V]) *treeNode[K, V] {
	n := t.pool.Get()
	n.key = key
	n.inf = inf
	n.leaf = leaf
	n.marked.Store(false)
	n.value.Store(nil)
	n.left.Store(left)
	n.right.Store(right)
	return n
}

// seekRecord is the tail of a search path.
type seekRecord[K cmp.Ordered, V any] struct {
	gp, p, l      *treeNode[K, V]
	gpLeft, pLeft bool
}

// seek descends to the leaf for key. gp, p and l are shielded.
func (t *ExternalBST[K, V]) seek(c *Cursor, key K) seekRecord[K, V] {
	for {
		if s, ok := t.trySeek(c, key); ok {
			return s
		}
	}
}

func (t *ExternalBST[K, V]) trySeek(c *Cursor, key K) (seekRecord[K, V], bool) {
	s := seekRecord[K, V]{p: t.root, pLeft: true}
	s.l = s.p.left.Load()
	slot := 0
	for {
		if !c.protect(slot, unsafe.Pointer(s.l)) {
			return s, false
		}
		if s.l.leaf {
			return s, true
		}
		s.gp, s.gpLeft = s.p, s.pLeft
		s.p = s.l
		s.pLeft = s.p.goesLeft(key)
		s.l = s.p.child(s.pLeft).Load()
		slot = (slot + 1) % numShields
	}
}

func (t *ExternalBST[K, V]) Get(c *Cursor, key K) (V, bool) {
	s := t.seek(c, key)
	if s.l.is(key) {
		if v := s.l.value.Load(); v != nil {
			return *v, true
		}
	}
	var zero V
	return zero, false
}

func (t *ExternalBST[K, V]) Insert(c *Cursor, key K, value V) (V, bool) {
	for {
		s := t.seek(c, key)

		// Leaves are only unlinked under their parent's lock.
		s.p.mu.Lock()
		if s.p.marked.Load() || s.p.child(s.pLeft).Load() != s.l {
			s.p.mu.Unlock()
			continue
		}
		if s.l.is(key) {
			old := s.l.value.Swap(&value)
			s.p.mu.Unlock()
			return *old, true
		}

		leaf := t.node(key, inf0, true, nil, nil)
		leaf.value.Store(&value)
		var internal *treeNode[K, V]
		if s.l.goesLeft(key) {
			internal = t.node(s.l.key, s.l.inf, false, leaf, s.l)
		} else {
			internal = t.node(key, inf0, false, s.l, leaf)
		}
		s.p.child(s.pLeft).Store(internal)
		s.p.mu.Unlock()

		var zero V
		return zero, false
	}
}

func (t *ExternalBST[K, V]) Remove(c *Cursor, key K) (V, bool) {
	for {
		s := t.seek(c, key)
		if !s.l.is(key) {
			var zero V
			return zero, false
		}

		s.gp.mu.Lock()
		s.p.mu.Lock()
		if s.gp.marked.Load() || s.p.marked.Load() ||
			s.gp.child(s.gpLeft).Load() != s.p || s.p.child(s.pLeft).Load() != s.l {
			s.p.mu.Unlock()
			s.gp.mu.Unlock()
			continue
		}

		sibling := s.p.child(!s.pLeft).Load()
		s.p.marked.Store(true)
		s.l.marked.Store(true)
		s.gp.child(s.gpLeft).Store(sibling)
		old := s.l.value.Load()
		s.p.mu.Unlock()
		s.gp.mu.Unlock()

		p, l := s.p, s.l
		c.h.Retire(unsafe.Pointer(p), func() { t.pool.Put(p) })
		c.h.Retire(unsafe.Pointer(l), func() { t.pool.Put(l) })
		return *old, true
	}
}

// Len counts the finite leaves.
func (t *ExternalBST[K, V]) Len() int {
	n := 0
	t.walk(func(*treeNode[K, V]) { n++ })
	return n
}

// Keys returns the keys in order.
func (t *ExternalBST[K, V]) Keys() []K {
	var out []K
	t.walk(func(l *treeNode[K, V]) { out = append(out, l.key) })
	return out
}

func (t *ExternalBST[K, V]) walk(fn func(*treeNode[K, V])) {
	var visit func(n *treeNode[K, V])
	visit = func(n *treeNode[K, V]) {
		if n.leaf {
			if n.inf == inf0 {
				fn(n)
			}
			return
		}
		visit(n.left.Load())
		visit(n.right.Load())
	}
	visit(t.root)
}
