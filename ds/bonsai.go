package ds

import (
	"cmp"
	"sync/atomic"
	"unsafe"
)

// Weight-balance parameters: a subtree may be at most delta times heavier than
// its sibling; ratio picks single or double rotation.
const (
	delta = 3
	ratio = 2
)

// bonsaiNode is immutable once published. token records the update attempt
// that built it.
type bonsaiNode[K cmp.Ordered, V any] struct {
	left, right *bonsaiNode[K, V]
	size        int
	token       uint64
	key         K
	value       V
}

func size[K cmp.Ordered, V any](n *bonsaiNode[K, V]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func weight[K cmp.Ordered, V any](n *bonsaiNode[K, V]) int {
	return size(n) + 1
}

// Bonsai is a persistent weight-balanced tree behind a single root pointer.
// Writers copy the search path, rebalance the copy and publish it with one CAS;
// the path nodes they replaced are retired once the CAS succeeds. Readers
// never block. Retired nodes are released to the garbage collector when their
// scheme allows it rather than recycled, since they are shared by snapshots.
type Bonsai[K cmp.Ordered, V any] struct {
	root   atomic.Pointer[bonsaiNode[K, V]]
	tokens atomic.Uint64
}

// NewBonsaiTree returns an empty tree.
func NewBonsaiTree[K cmp.Ordered, V any]() *Bonsai[K, V] {
	return &Bonsai[K, V]{}
}

func (t *Bonsai[K, V]) Get(c *Cursor, key K) (V, bool) {
	for {
		if v, found, ok := t.tryGet(c, key); ok {
			return v, found
		}
	}
}

func (t *Bonsai[K, V]) tryGet(c *Cursor, key K) (v V, found, ok bool) {
	slot := 0
	for n := t.root.Load(); n != nil; slot = (slot + 1) % numShields {
		if !c.protect(slot, unsafe.Pointer(n)) {
			return v, false, false
		}
		switch {
		case key < n.key:
			n = n.left
		case n.key < key:
			n = n.right
		default:
			return n.value, true, true
		}
	}
	return v, false, true
}

func (t *Bonsai[K, V]) Insert(c *Cursor, key K, value V) (V, bool) {
	op := &bonsaiOp[K, V]{c: c}
	for {
		op.reset(t.tokens.Add(1))
		root := t.root.Load()
		next, old, found := op.insert(root, key, value)
		if op.aborted {
			continue
		}
		if t.root.CompareAndSwap(root, next) {
			op.retire()
			return old, found
		}
	}
}

func (t *Bonsai[K, V]) Remove(c *Cursor, key K) (V, bool) {
	op := &bonsaiOp[K, V]{c: c}
	for {
		op.reset(t.tokens.Add(1))
		root := t.root.Load()
		next, old, found := op.remove(root, key)
		if op.aborted {
			continue
		}
		if !found {
			return old, false
		}
		if t.root.CompareAndSwap(root, next) {
			op.retire()
			return old, true
		}
	}
}

func (t *Bonsai[K, V]) Len() int { return size(t.root.Load()) }

// Keys returns the keys in order.
func (t *Bonsai[K, V]) Keys() []K {
	var out []K
	var visit func(n *bonsaiNode[K, V])
	visit = func(n *bonsaiNode[K, V]) {
		if n == nil {
			return
		}
		visit(n.left)
		out = append(out, n.key)
		visit(n.right)
	}
	visit(t.root.Load())
	return out
}

// balanced reports whether every subtree satisfies the weight invariant and
// carries the right size.
func (t *Bonsai[K, V]) balanced() bool {
	var check func(n *bonsaiNode[K, V]) bool
	check = func(n *bonsaiNode[K, V]) bool {
		if n == nil {
			return true
		}
		wl, wr := weight(n.left), weight(n.right)
		return n.size == size(n.left)+size(n.right)+1 &&
			delta*wl >= wr && delta*wr >= wl &&
			check(n.left) && check(n.right)
	}
	return check(t.root.Load())
}

// bonsaiOp is one update attempt. Published nodes it copies are collected in
// consumed and retired only if the attempt's CAS wins.
type bonsaiOp[K cmp.Ordered, V any] struct {
	c        *Cursor
	consumed []*bonsaiNode[K, V]
	token    uint64
	slot     int
	aborted  bool
}

func (o *bonsaiOp[K, V]) reset(token uint64) {
	clear(o.consumed)
	o.consumed = o.consumed[:0]
	o.token = token
	o.slot = 0
	o.aborted = false
}

func (o *bonsaiOp[K, V]) retire() {
	for _, n := range o.consumed {
		o.c.h.Retire(unsafe.Pointer(n), nil)
	}
}

// visit shields n; it marks the attempt aborted if the handle was ejected.
func (o *bonsaiOp[K, V]) visit(n *bonsaiNode[K, V]) bool {
	if !o.c.protect(o.slot, unsafe.Pointer(n)) {
		o.aborted = true
		return false
	}
	o.slot = (o.slot + 1) % numShields
	return true
}

// consume records that n is replaced by this attempt. Nodes built by the
// attempt itself were never published and need no retirement.
func (o *bonsaiOp[K, V]) consume(n *bonsaiNode[K, V]) {
	if n.token != o.token {
		o.consumed = append(o.consumed, n)
	}
}

func (o *bonsaiOp[K, V]) mk(l *bonsaiNode[K, V], key K, value V, r *bonsaiNode[K, V]) *bonsaiNode[K, V] {
	return &bonsaiNode[K, V]{
		left:  l,
		right: r,
		size:  size(l) + size(r) + 1,
		token: o.token,
		key:   key,
		value: value,
	}
}

func (o *bonsaiOp[K, V]) insert(n *bonsaiNode[K, V], key K, value V) (*bonsaiNode[K, V], V, bool) {
	var zero V
	if n == nil {
		return o.mk(nil, key, value, nil), zero, false
	}
	if !o.visit(n) {
		return nil, zero, false
	}
	switch {
	case key < n.key:
		l, old, found := o.insert(n.left, key, value)
		if o.aborted {
			return nil, zero, false
		}
		o.consume(n)
		return o.balance(l, n.key, n.value, n.right), old, found
	case n.key < key:
		r, old, found := o.insert(n.right, key, value)
		if o.aborted {
			return nil, zero, false
		}
		o.consume(n)
		return o.balance(n.left, n.key, n.value, r), old, found
	default:
		o.consume(n)
		return o.mk(n.left, key, value, n.right), n.value, true
	}
}

func (o *bonsaiOp[K, V]) remove(n *bonsaiNode[K, V], key K) (*bonsaiNode[K, V], V, bool) {
	var zero V
	if n == nil {
		return nil, zero, false
	}
	if !o.visit(n) {
		return nil, zero, false
	}
	switch {
	case key < n.key:
		l, old, found := o.remove(n.left, key)
		if o.aborted || !found {
			return n, zero, false
		}
		o.consume(n)
		return o.balance(l, n.key, n.value, n.right), old, true
	case n.key < key:
		r, old, found := o.remove(n.right, key)
		if o.aborted || !found {
			return n, zero, false
		}
		o.consume(n)
		return o.balance(n.left, n.key, n.value, r), old, true
	}

	o.consume(n)
	switch {
	case n.left == nil:
		return n.right, n.value, true
	case n.right == nil:
		return n.left, n.value, true
	}
	r, k, v := o.removeMin(n.right)
	return o.balance(n.left, k, v, r), n.value, true
}

func (o *bonsaiOp[K, V]) removeMin(n *bonsaiNode[K, V]) (*bonsaiNode[K, V], K, V) {
	o.consume(n)
	if n.left == nil {
		return n.right, n.key, n.value
	}
	l, k, v := o.removeMin(n.left)
	return o.balance(l, n.key, n.value, n.right), k, v
}

// balance builds a node from l and r, rotating once if one side outweighs the
// other by more than delta.
func (o *bonsaiOp[K, V]) balance(l *bonsaiNode[K, V], key K, value V, r *bonsaiNode[K, V]) *bonsaiNode[K, V] {
	wl, wr := weight(l), weight(r)
	switch {
	case delta*wl < wr:
		if weight(r.left) < ratio*weight(r.right) {
			o.consume(r)
			return o.mk(o.mk(l, key, value, r.left), r.key, r.value, r.right)
		}
		rl := r.left
		o.consume(r)
		o.consume(rl)
		return o.mk(o.mk(l, key, value, rl.left), rl.key, rl.value, o.mk(rl.right, r.key, r.value, r.right))
	case delta*wr < wl:
		if weight(l.right) < ratio*weight(l.left) {
			o.consume(l)
			return o.mk(l.left, l.key, l.value, o.mk(l.right, key, value, r))
		}
		lr := l.right
		o.consume(l)
		o.consume(lr)
		return o.mk(o.mk(l.left, l.key, l.value, lr.left), lr.key, lr.value, o.mk(lr.right, key, value, r))
	}
	return o.mk(l, key, value, r)
}
