package ds

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

var nativeKinds = []Kind{List, HashMap, NMTree, BonsaiTree}

func newMap(t *testing.T, kind Kind) Map[string, string] {
	t.Helper()
	m, err := New(kind, 1000)
	if err != nil {
		t.Fatalf("New(%v): %v", kind, err)
	}
	return m
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v; want %v, nil", k.String(), got, err, k)
		}
	}
	if got, err := ParseKind("bonsaitree"); err != nil || got != BonsaiTree {
		t.Errorf("ParseKind(bonsaitree) = %v, %v; want BonsaiTree, nil", got, err)
	}
	if _, err := ParseKind("btree"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(btree) error = %v; want ErrUnknownKind", err)
	}
}

func TestKind_Tree(t *testing.T) {
	want := map[Kind]bool{NMTree: true, BonsaiTree: true, SkipMap: true}
	for _, k := range Kinds() {
		if k.Tree() != want[k] {
			t.Errorf("%v.Tree() = %v; want %v", k, k.Tree(), want[k])
		}
	}
}

func TestMap_BasicOperations(t *testing.T) {
	// Ristretto applies writes asynchronously and is covered separately.
	kinds := slices.DeleteFunc(Kinds(), func(k Kind) bool { return k == Ristretto })
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			m := newMap(t, kind)
			c := NewCursor(reclaim.Unprotected())

			if v, ok := m.Get(c, "1"); ok {
				t.Errorf("Get(1) on empty map = %q, true; want _, false", v)
			}
			if _, ok := m.Insert(c, "1", "one"); ok {
				t.Error("Insert(1) on empty map reported a previous value")
			}
			if v, ok := m.Get(c, "1"); !ok || v != "one" {
				t.Errorf("Get(1) = %q, %v; want one, true", v, ok)
			}
			if old, ok := m.Insert(c, "1", "uno"); !ok || old != "one" {
				t.Errorf("Insert(1) overwrite = %q, %v; want one, true", old, ok)
			}
			if v, ok := m.Get(c, "1"); !ok || v != "uno" {
				t.Errorf("Get(1) after overwrite = %q, %v; want uno, true", v, ok)
			}
			if old, ok := m.Remove(c, "1"); !ok || old != "uno" {
				t.Errorf("Remove(1) = %q, %v; want uno, true", old, ok)
			}
			if _, ok := m.Remove(c, "1"); ok {
				t.Error("second Remove(1) reported success")
			}
			if v, ok := m.Get(c, "1"); ok {
				t.Errorf("Get(1) after remove = %q, true; want _, false", v)
			}
		})
	}
}

func TestMap_Ristretto(t *testing.T) {
	m := newMap(t, Ristretto)
	c := NewCursor(reclaim.Unprotected())
	m.Insert(c, "1", "one")
	m.(*ristrettoMap).c.Wait()
	if v, ok := m.Get(c, "1"); !ok || v != "one" {
		t.Errorf("Get(1) = %q, %v; want one, true", v, ok)
	}
	m.Remove(c, "1")
	m.(*ristrettoMap).c.Wait()
	if _, ok := m.Get(c, "1"); ok {
		t.Error("Get(1) after remove succeeded")
	}
}

// TestMap_MatchesModel replays a random operation sequence against each native
// map and a plain Go map.
func TestMap_MatchesModel(t *testing.T) {
	for _, kind := range nativeKinds {
		for _, scheme := range reclaim.Kinds() {
			t.Run(kind.String()+"/"+scheme.String(), func(t *testing.T) {
				col, err := reclaim.New(scheme)
				if err != nil {
					t.Fatalf("reclaim.New: %v", err)
				}
				h := col.Register()
				defer h.Unregister()
				c := NewCursor(h)

				m := newMap(t, kind)
				model := make(map[string]string)
				rng := rand.New(rand.NewPCG(1, 2))
				for i := range 20000 {
					key := strconv.Itoa(rng.IntN(200))
					val := strconv.Itoa(i)
					h.Pin()
					switch rng.IntN(3) {
					case 0:
						got, ok := m.Get(c, key)
						want, wantOK := model[key]
						if ok != wantOK || got != want {
							t.Fatalf("op %d: Get(%s) = %q, %v; want %q, %v", i, key, got, ok, want, wantOK)
						}
					case 1:
						got, ok := m.Insert(c, key, val)
						want, wantOK := model[key]
						if ok != wantOK || got != want {
							t.Fatalf("op %d: Insert(%s) = %q, %v; want %q, %v", i, key, got, ok, want, wantOK)
						}
						model[key] = val
					case 2:
						got, ok := m.Remove(c, key)
						want, wantOK := model[key]
						if ok != wantOK || got != want {
							t.Fatalf("op %d: Remove(%s) = %q, %v; want %q, %v", i, key, got, ok, want, wantOK)
						}
						delete(model, key)
					}
					c.Clear()
					h.Unpin()
				}

				if got := m.(Sizer).Len(); got != len(model) {
					t.Errorf("Len = %d; want %d", got, len(model))
				}
			})
		}
	}
}

func TestMap_KeysSorted(t *testing.T) {
	c := NewCursor(reclaim.Unprotected())
	keys := []int{5, 3, 9, 1, 7, 3, 2}
	want := []int{1, 2, 3, 5, 7, 9}

	list := NewList[int, int]()
	tree := NewNMTree[int, int]()
	bonsai := NewBonsaiTree[int, int]()
	for _, k := range keys {
		list.Insert(c, k, k)
		tree.Insert(c, k, k)
		bonsai.Insert(c, k, k)
	}
	for name, got := range map[string][]int{
		"list":   list.Keys(),
		"nmtree": tree.Keys(),
		"bonsai": bonsai.Keys(),
	} {
		if !slices.Equal(got, want) {
			t.Errorf("%s keys = %v; want %v", name, got, want)
		}
	}
}

func TestBonsai_StaysBalanced(t *testing.T) {
	c := NewCursor(reclaim.Unprotected())
	tree := NewBonsaiTree[int, int]()

	// Sorted insertion is the worst case for an unbalanced tree.
	for i := range 1000 {
		tree.Insert(c, i, i)
	}
	if !tree.balanced() {
		t.Fatal("tree unbalanced after sorted inserts")
	}
	for i := 0; i < 1000; i += 3 {
		tree.Remove(c, i)
	}
	if !tree.balanced() {
		t.Fatal("tree unbalanced after removals")
	}
	if got, want := tree.Len(), 1000-334; got != want {
		t.Errorf("Len = %d; want %d", got, want)
	}
}

func TestBonsai_RetiresReplacedPath(t *testing.T) {
	col, _ := reclaim.New(reclaim.NR)
	h := col.Register()
	c := NewCursor(h)
	tree := NewBonsaiTree[int, int]()

	tree.Insert(c, 1, 1)
	if got := col.Stats().Retired; got != 0 {
		t.Errorf("Retired after first insert = %d; want 0", got)
	}
	tree.Insert(c, 2, 2)
	if got := col.Stats().Retired; got != 1 {
		t.Errorf("Retired after second insert = %d; want 1 (old root)", got)
	}
	tree.Remove(c, 3)
	if got := col.Stats().Retired; got != 1 {
		t.Errorf("Retired after missed remove = %d; want 1", got)
	}
	h.Unregister()
}

func TestHashMap_Buckets(t *testing.T) {
	tests := []struct {
		capacity, want int
	}{
		{1, 1},
		{2, 1},
		{100, 64},
		{100000, 65536},
	}
	for _, tt := range tests {
		if got := NewHashMap[string, int](tt.capacity).Buckets(); got != tt.want {
			t.Errorf("NewHashMap(%d).Buckets() = %d; want %d", tt.capacity, got, tt.want)
		}
	}
}

func TestList_RemovedNodesReturnToPool(t *testing.T) {
	col, _ := reclaim.New(reclaim.EBR, reclaim.BagSize(1), reclaim.CollectEvery(1))
	h := col.Register()
	defer h.Unregister()
	c := NewCursor(h)
	list := NewList[int, int]()

	for i := range 100 {
		h.Pin()
		list.Insert(c, i, i)
		list.Remove(c, i)
		h.Unpin()
	}
	if s := col.Stats(); s.Retired != 100 || s.Reclaimed == 0 {
		t.Errorf("Stats = %+v; want 100 retired and some reclaimed", s)
	}
}

// TestMap_Concurrent runs writers on disjoint key ranges and checks that every
// writer's final state is visible afterwards.
func TestMap_Concurrent(t *testing.T) {
	const (
		workers = 8
		perKey  = 64
		rounds  = 2000
	)
	for _, kind := range nativeKinds {
		for _, scheme := range reclaim.Kinds() {
			t.Run(kind.String()+"/"+scheme.String(), func(t *testing.T) {
				col, _ := reclaim.New(scheme, reclaim.EjectAfter(2))
				m := newMap(t, kind)

				var wg sync.WaitGroup
				for w := range workers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						h := col.Register()
						defer h.Unregister()
						c := NewCursor(h)
						rng := rand.New(rand.NewPCG(uint64(w), 7))
						for i := range rounds {
							key := fmt.Sprintf("%d-%d", w, rng.IntN(perKey))
							h.Pin()
							switch i % 3 {
							case 0:
								m.Insert(c, key, key)
							case 1:
								m.Remove(c, key)
							default:
								if v, ok := m.Get(c, key); ok && v != key {
									t.Errorf("Get(%s) = %q; want %q", key, v, key)
								}
							}
							c.Clear()
							h.Unpin()
						}
						// Leave every key of this worker present.
						h.Pin()
						for k := range perKey {
							key := fmt.Sprintf("%d-%d", w, k)
							m.Insert(c, key, key)
						}
						c.Clear()
						h.Unpin()
					}()
				}
				wg.Wait()

				c := NewCursor(reclaim.Unprotected())
				for w := range workers {
					for k := range perKey {
						key := fmt.Sprintf("%d-%d", w, k)
						if v, ok := m.Get(c, key); !ok || v != key {
							t.Errorf("Get(%s) = %q, %v; want %q, true", key, v, ok, key)
						}
					}
				}
				if got := m.(Sizer).Len(); got != workers*perKey {
					t.Errorf("Len = %d; want %d", got, workers*perKey)
				}
			})
		}
	}
}

// Every insert that reports a fresh key and every remove that reports a hit
// must be reflected in the final contents, even when all goroutines fight over
// one key.
func TestMap_ContendedKeyAccounting(t *testing.T) {
	const (
		workers = 8
		rounds  = 5000
		key     = "k"
	)
	for _, kind := range nativeKinds {
		for _, scheme := range reclaim.Kinds() {
			t.Run(kind.String()+"/"+scheme.String(), func(t *testing.T) {
				col, _ := reclaim.New(scheme, reclaim.EjectAfter(2))
				m := newMap(t, kind)

				var added, removed atomic.Int64
				var wg sync.WaitGroup
				for w := range workers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						h := col.Register()
						defer h.Unregister()
						c := NewCursor(h)
						for i := range rounds {
							h.Pin()
							if (i+w)%2 == 0 {
								if _, ok := m.Insert(c, key, key); !ok {
									added.Add(1)
								}
							} else if _, ok := m.Remove(c, key); ok {
								removed.Add(1)
							}
							c.Clear()
							h.Unpin()
						}
					}()
				}
				wg.Wait()

				want := int(added.Load() - removed.Load())
				if got := m.(Sizer).Len(); got != want {
					t.Errorf("Len = %d; want %d (%d fresh inserts, %d removes)", got, want, added.Load(), removed.Load())
				}
			})
		}
	}
}

func BenchmarkMap_Get(b *testing.B) {
	for _, kind := range Kinds() {
		b.Run(kind.String(), func(b *testing.B) {
			m, _ := New(kind, 10000)
			c := NewCursor(reclaim.Unprotected())
			for i := range 10000 {
				k := strconv.Itoa(i)
				m.Insert(c, k, k)
			}
			b.ResetTimer()
			for i := range b.N {
				m.Get(c, strconv.Itoa(i%10000))
			}
		})
	}
}
