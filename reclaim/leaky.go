package reclaim

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// leaky is the NR collector: retired nodes are kept reachable for the life of
// the collector so their memory is never recovered.
type leaky struct {
	mu      sync.Mutex
	leaked  [][]unsafe.Pointer
	retired atomic.Uint64
}

func newLeaky() *leaky { return &leaky{} }

func (*leaky) Kind() Kind { return NR }

func (c *leaky) Register() Handle { return &leakyHandle{c: c} }

func (c *leaky) Stats() Stats {
	return Stats{Retired: c.retired.Load()}
}

type leakyHandle struct {
	c      *leaky
	nodes  []unsafe.Pointer
	pinned bool
}

func (*leakyHandle) Kind() Kind { return NR }

func (h *leakyHandle) Pin()         { h.pinned = true }
func (h *leakyHandle) Unpin()       { h.pinned = false }
func (h *leakyHandle) Repin()       { h.pinned = true }
func (h *leakyHandle) Pinned() bool { return h.pinned }

func (*leakyHandle) Shield() Shield { return noShield{} }

// Retire keeps p reachable; free is never called.
func (h *leakyHandle) Retire(p unsafe.Pointer, _ func()) {
	h.nodes = append(h.nodes, p)
	h.c.retired.Add(1)
}

func (h *leakyHandle) Unregister() {
	if len(h.nodes) == 0 {
		return
	}
	h.c.mu.Lock()
	h.c.leaked = append(h.c.leaked, h.nodes)
	h.c.mu.Unlock()
	h.nodes = nil
}

// unprotected frees retired nodes immediately. It is only safe while no other
// goroutine can reach the map, e.g. during prefill.
type unprotected struct{}

// Unprotected returns a Handle that performs no protection at all.
func Unprotected() Handle { return unprotected{} }

func (unprotected) Kind() Kind     { return NR }
func (unprotected) Pin()           {}
func (unprotected) Unpin()         {}
func (unprotected) Repin()         {}
func (unprotected) Pinned() bool   { return false }
func (unprotected) Shield() Shield { return noShield{} }
func (unprotected) Unregister()    {}

func (unprotected) Retire(_ unsafe.Pointer, free func()) {
	if free != nil {
		free()
	}
}
