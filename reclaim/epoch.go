package reclaim

import (
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"
)

// A participant's state word holds epoch<<1 | pinned.
const unpinned = 0

// retired is a node waiting for its grace period.
type retired struct {
	p    unsafe.Pointer
	free func()
}

// sealedBag is a batch of retired nodes stamped with the global epoch at the
// time it was handed to the collector.
type sealedBag struct {
	epoch uint64
	items []retired
}

// epochCollector implements EBR, and PEBR when pebr is set.
//
// A sealed bag stamped with epoch e is safe once the global epoch reaches e+2:
// advancing requires every pinned participant to be pinned at the current
// epoch, so two advances past e mean nobody still pinned can hold a reference
// taken before the nodes were unlinked.
//
//nolint:govet // fieldalignment: semantic grouping preferred
type epochCollector struct {
	kind  Kind
	pebr  bool
	cfg   *config
	epoch atomic.Uint64

	mu           sync.Mutex
	participants []*participant
	garbage      []sealedBag

	retired   atomic.Uint64
	reclaimed atomic.Uint64
	ejections atomic.Uint64
}

func newEpochCollector(kind Kind, cfg *config) *epochCollector {
	return &epochCollector{
		kind: kind,
		pebr: kind == PEBR,
		cfg:  cfg,
	}
}

func (c *epochCollector) Kind() Kind { return c.kind }

func (c *epochCollector) Register() Handle {
	p := &participant{c: c, bag: make([]retired, 0, c.cfg.bagSize)}
	c.mu.Lock()
	c.participants = append(c.participants, p)
	c.mu.Unlock()
	return p
}

func (c *epochCollector) Stats() Stats {
	return Stats{
		Epoch:     c.epoch.Load(),
		Retired:   c.retired.Load(),
		Reclaimed: c.reclaimed.Load(),
		Ejections: c.ejections.Load(),
	}
}

// tryAdvanceLocked bumps the global epoch if every pinned participant is
// pinned at it. Under PEBR a participant that keeps blocking is ejected instead.
func (c *epochCollector) tryAdvanceLocked() bool {
	g := c.epoch.Load()
	for _, p := range c.participants {
		s := p.state.Load()
		if s&1 == 0 || s>>1 == g {
			p.blocked = 0
			continue
		}
		if c.pebr && c.ejectLocked(p, s) {
			continue
		}
		return false
	}
	c.epoch.Store(g + 1)
	return true
}

// ejectLocked counts a blocked attempt against p and ejects it once the
// threshold is reached. It reports whether p no longer blocks the advance.
func (c *epochCollector) ejectLocked(p *participant, s uint64) bool {
	if p.blockedState != s {
		p.blockedState = s
		p.blocked = 0
	}
	p.blocked++
	if p.blocked < c.cfg.ejectAfter {
		return false
	}
	// The owner may be repinning right now; leave it alone if so.
	if !p.state.CompareAndSwap(s, unpinned) {
		return false
	}
	p.ejected.Store(true)
	p.blocked = 0
	c.ejections.Add(1)
	return true
}

// shieldedLocked collects every pointer currently published in a shield.
func (c *epochCollector) shieldedLocked() map[uintptr]struct{} {
	var out map[uintptr]struct{}
	for _, p := range c.participants {
		for _, s := range p.shields {
			v := s.p.Load()
			if v == 0 {
				continue
			}
			if out == nil {
				out = make(map[uintptr]struct{})
			}
			out[v] = struct{}{}
		}
	}
	return out
}

// collectLocked advances the epoch if possible and frees every bag whose
// grace period has passed. Under PEBR shielded nodes stay queued.
func (c *epochCollector) collectLocked() {
	c.tryAdvanceLocked()
	g := c.epoch.Load()

	// Bags are queued in epoch order, so the expired ones form a prefix.
	n := 0
	for n < len(c.garbage) && c.garbage[n].epoch+2 <= g {
		n++
	}
	if n == 0 {
		return
	}

	var shielded map[uintptr]struct{}
	if c.pebr {
		shielded = c.shieldedLocked()
	}

	var rest []retired
	for _, b := range c.garbage[:n] {
		for _, r := range b.items {
			if _, ok := shielded[uintptr(r.p)]; ok {
				rest = append(rest, r)
				continue
			}
			if r.free != nil {
				r.free()
			}
			c.reclaimed.Add(1)
		}
	}
	last := c.garbage[n-1].epoch
	clear(c.garbage[:n])
	c.garbage = c.garbage[n:]
	if len(rest) > 0 {
		c.garbage = slices.Insert(c.garbage, 0, sealedBag{epoch: last, items: rest})
	}
}

// participant is the Handle of the epoch collectors.
//
//nolint:govet // fieldalignment: owner fields first, collector fields last
type participant struct {
	c       *epochCollector
	state   atomic.Uint64
	ejected atomic.Bool
	bag     []retired
	pins    int

	// Guarded by c.mu.
	shields      []*shield
	blockedState uint64
	blocked      int
}

func (p *participant) Kind() Kind { return p.c.kind }

func (p *participant) Pinned() bool {
	return p.state.Load()&1 == 1 && !p.ejected.Load()
}

func (p *participant) Pin() {
	if p.Pinned() {
		return
	}
	p.pin()
}

func (p *participant) Unpin() {
	p.state.Store(unpinned)
}

func (p *participant) Repin() {
	p.pin()
}

func (p *participant) pin() {
	p.ejected.Store(false)
	p.state.Store(p.c.epoch.Load()<<1 | 1)

	p.pins++
	if p.pins%p.c.cfg.collectEvery != 0 {
		return
	}
	// Opportunistic: skip when another participant is already collecting.
	if p.c.mu.TryLock() {
		p.c.collectLocked()
		p.c.mu.Unlock()
	}
}

func (p *participant) Shield() Shield {
	if !p.c.pebr {
		return noShield{}
	}
	s := &shield{owner: p}
	p.c.mu.Lock()
	p.shields = append(p.shields, s)
	p.c.mu.Unlock()
	return s
}

func (p *participant) Retire(ptr unsafe.Pointer, free func()) {
	p.bag = append(p.bag, retired{p: ptr, free: free})
	p.c.retired.Add(1)
	if len(p.bag) < p.c.cfg.bagSize {
		return
	}
	p.c.mu.Lock()
	p.sealLocked()
	p.c.collectLocked()
	p.c.mu.Unlock()
}

// sealLocked moves the local bag into the collector's queue.
func (p *participant) sealLocked() {
	if len(p.bag) == 0 {
		return
	}
	p.c.garbage = append(p.c.garbage, sealedBag{epoch: p.c.epoch.Load(), items: p.bag})
	p.bag = make([]retired, 0, p.c.cfg.bagSize)
}

func (p *participant) Unregister() {
	p.state.Store(unpinned)
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	p.sealLocked()
	if i := slices.Index(c.participants, p); i >= 0 {
		c.participants = slices.Delete(c.participants, i, i+1)
	}
	p.shields = nil
	c.collectLocked()
}

// shield is a PEBR hazard slot.
type shield struct {
	owner *participant
	p     atomic.Uintptr
}

// Protect publishes ptr before checking for ejection, so a collector that
// ejected the owner afterwards still sees the pointer when it scans shields.
func (s *shield) Protect(ptr unsafe.Pointer) bool {
	s.p.Store(uintptr(ptr))
	return !s.owner.ejected.Load()
}

func (s *shield) Clear() { s.p.Store(0) }
