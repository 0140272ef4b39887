// Package reclaim provides the memory-reclamation schemes the benchmark drives:
// no reclamation (NR), epoch-based reclamation (EBR) and pointer-based
// epoch-based reclamation (PEBR).
//
// Go is garbage collected, so "freeing" a node means handing it back to the
// map's node pool or dropping the last reference to it. What the schemes
// control is when that is allowed to happen: NR never allows it, EBR allows it
// once every pinned participant has moved past the retiring epoch, and PEBR
// additionally lets a lagging participant be ejected, after which only the
// pointers it shields stay protected.
package reclaim

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"
)

// Kind identifies a reclamation scheme.
type Kind uint8

const (
	NR Kind = iota
	EBR
	PEBR
)

var kindNames = [...]string{NR: "NR", EBR: "EBR", PEBR: "PEBR"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Kinds lists every scheme in declaration order.
func Kinds() []Kind { return []Kind{NR, EBR, PEBR} }

// ErrUnknownKind is returned by ParseKind for names that match no scheme.
var ErrUnknownKind = errors.New("unknown reclamation scheme")

// ParseKind parses a scheme name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of nr, ebr, pebr)", ErrUnknownKind, s)
}

// Collector owns the global reclamation state shared by all participants.
type Collector interface {
	Kind() Kind
	// Register creates a participant owned by the calling goroutine.
	Register() Handle
	Stats() Stats
}

// Handle is a goroutine-owned registration with a renewable pin.
// A Handle must not be shared between goroutines.
type Handle interface {
	Kind() Kind

	// Pin declares that the owner is about to read shared nodes.
	// Pinning an already pinned handle is a no-op.
	Pin()
	// Unpin ends the protected scope. Unpinning an unpinned handle is a no-op.
	Unpin()
	// Repin moves the pin to the current epoch and clears any ejection.
	Repin()
	Pinned() bool

	// Shield allocates a hazard slot bound to this handle.
	Shield() Shield

	// Retire hands a node that is no longer reachable to the scheme. free runs
	// once no participant can still observe p; it may be nil.
	Retire(p unsafe.Pointer, free func())

	// Unregister releases the participant. Its retired nodes are handed to the
	// collector; the handle must not be used afterwards.
	Unregister()
}

// Shield protects a single pointer against reclamation.
type Shield interface {
	// Protect publishes p. It reports false when the owning handle has been
	// ejected; the caller must Repin and restart its traversal.
	Protect(p unsafe.Pointer) bool
	Clear()
}

// Stats is a snapshot of a collector's counters.
type Stats struct {
	Epoch     uint64
	Retired   uint64
	Reclaimed uint64
	Ejections uint64
}

// Pending returns the number of retired nodes not yet reclaimed.
func (s Stats) Pending() uint64 { return s.Retired - s.Reclaimed }

// config holds collector tuning.
type config struct {
	bagSize      int
	collectEvery int
	ejectAfter   int
}

func defaultConfig() *config {
	return &config{
		bagSize:      64,
		collectEvery: 128,
		ejectAfter:   8,
	}
}

// Option configures a Collector.
type Option func(*config)

// BagSize sets how many nodes a participant buffers before sealing them into
// the collector's garbage queue. Default is 64.
func BagSize(n int) Option {
	return func(c *config) {
		c.bagSize = max(n, 1)
	}
}

// CollectEvery sets how many pins a participant performs between collection
// attempts. Default is 128.
func CollectEvery(n int) Option {
	return func(c *config) {
		c.collectEvery = max(n, 1)
	}
}

// EjectAfter sets how many consecutive blocked advance attempts a PEBR
// participant may cause before it is ejected. Default is 8.
func EjectAfter(n int) Option {
	return func(c *config) {
		c.ejectAfter = max(n, 1)
	}
}

// New creates a collector for kind.
func New(kind Kind, opts ...Option) (Collector, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	switch kind {
	case NR:
		return newLeaky(), nil
	case EBR, PEBR:
		return newEpochCollector(kind, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

// noShield is the Shield used by schemes without pointer protection.
type noShield struct{}

func (noShield) Protect(unsafe.Pointer) bool { return true }
func (noShield) Clear()                      {}
