// Package ds provides the concurrent maps the benchmark measures.
//
// The native maps (List, HashMap, NMTree, BonsaiTree) run every operation
// through a Cursor bound to a reclaim.Handle: removed nodes are retired to the
// handle's scheme and, under PEBR, every dereferenced node is shielded first.
// The baseline maps wrap third-party concurrent maps and caches; they manage
// their own memory and ignore the cursor.
package ds

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

// Map is the contract the benchmark harness consumes.
// Insert overwrites an existing key and returns the previous value.
type Map[K cmp.Ordered, V any] interface {
	Get(c *Cursor, key K) (V, bool)
	Insert(c *Cursor, key K, value V) (V, bool)
	Remove(c *Cursor, key K) (V, bool)
}

// Sizer is implemented by maps that can count their entries.
// Len is only accurate while no operation is in flight.
type Sizer interface {
	Len() int
}

const numShields = 3

// Cursor is a goroutine's traversal handle for a map. It owns the shields a
// PEBR traversal publishes; Clear drops them between critical sections.
type Cursor struct {
	h        reclaim.Handle
	shields  [numShields]reclaim.Shield
	validate bool
}

// NewCursor binds a cursor to h. The cursor belongs to h's goroutine.
func NewCursor(h reclaim.Handle) *Cursor {
	c := &Cursor{h: h, validate: h.Kind() == reclaim.PEBR}
	for i := range c.shields {
		c.shields[i] = h.Shield()
	}
	return c
}

// Handle returns the reclamation handle the cursor is bound to.
func (c *Cursor) Handle() reclaim.Handle { return c.h }

// Clear drops all shielded pointers. A nil cursor has none.
func (c *Cursor) Clear() {
	if c == nil || !c.validate {
		return
	}
	for _, s := range c.shields {
		s.Clear()
	}
}

// protect shields p in slot i. On false the handle was ejected: the cursor
// has already repinned and the caller must restart from the root.
func (c *Cursor) protect(i int, p unsafe.Pointer) bool {
	if !c.validate {
		return true
	}
	if c.shields[i].Protect(p) {
		return true
	}
	c.h.Repin()
	return false
}

// Kind identifies a map implementation.
type Kind uint8

const (
	List Kind = iota
	HashMap
	NMTree
	BonsaiTree
	Otter
	Ristretto
	LRU
	Freecache
	TinyLFU
	XSync
	SkipMap
)

var kindNames = [...]string{
	List:       "List",
	HashMap:    "HashMap",
	NMTree:     "NMTree",
	BonsaiTree: "BonsaiTree",
	Otter:      "Otter",
	Ristretto:  "Ristretto",
	LRU:        "LRU",
	Freecache:  "Freecache",
	TinyLFU:    "TinyLFU",
	XSync:      "XSync",
	SkipMap:    "SkipMap",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Tree reports whether the map is an ordered tree. Trees are prefilled in
// random order so insertion order does not bias their shape.
func (k Kind) Tree() bool {
	return k == NMTree || k == BonsaiTree || k == SkipMap
}

// Native reports whether the map routes memory through a reclamation scheme.
func (k Kind) Native() bool { return k <= BonsaiTree }

// Kinds lists every map kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ErrUnknownKind is returned for map names that match no implementation.
var ErrUnknownKind = errors.New("unknown data structure")

// ParseKind parses a map name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New builds an empty string-keyed map of the given kind. capacity is the
// expected number of distinct keys; hash maps size their buckets from it and
// baseline caches are sized so nothing is evicted.
func New(kind Kind, capacity int) (Map[string, string], error) {
	capacity = max(capacity, 1)
	switch kind {
	case List:
		return NewList[string, string](), nil
	case HashMap:
		return NewHashMap[string, string](capacity), nil
	case NMTree:
		return NewNMTree[string, string](), nil
	case BonsaiTree:
		return NewBonsaiTree[string, string](), nil
	case Otter, Ristretto, LRU, Freecache, TinyLFU, XSync, SkipMap:
		return newBaseline(kind, capacity)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}
