package bench

import (
	"fmt"

	"github.com/codeGROOVE-dev/reclaimbench/ds"
	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

// Role tells a driver which goroutine a session belongs to.
type Role uint8

const (
	Worker Role = iota
	Auxiliary
)

func (r Role) String() string {
	if r == Auxiliary {
		return "aux"
	}
	return "worker"
}

// Driver is a reclamation scheme's per-goroutine protocol.
type Driver interface {
	Kind() reclaim.Kind
	// Register creates a session for the calling goroutine.
	Register(r Role) Session
	Stats() reclaim.Stats
}

// Session is one goroutine's registration. It must not cross goroutines.
type Session interface {
	// Cursor is nil for Auxiliary sessions, which never touch the map.
	Cursor() *ds.Cursor
	// Acquire opens a critical section.
	Acquire()
	// Renew ends the current critical section and opens the next.
	Renew()
	// Release closes the critical section.
	Release()
	// Close unregisters. Nodes the session retired stay queued.
	Close()
}

// NewDriver returns the driver for scheme k.
func NewDriver(k reclaim.Kind, opts ...reclaim.Option) (Driver, error) {
	col, err := reclaim.New(k, opts...)
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	return &driver{col: col}, nil
}

type driver struct {
	col reclaim.Collector
}

func (d *driver) Kind() reclaim.Kind { return d.col.Kind() }

func (d *driver) Stats() reclaim.Stats { return d.col.Stats() }

func (d *driver) Register(r Role) Session {
	h := d.col.Register()
	var c *ds.Cursor
	if r == Worker {
		c = ds.NewCursor(h)
	}
	switch d.col.Kind() {
	case reclaim.EBR:
		return &ebrSession{h: h, c: c}
	case reclaim.PEBR:
		return &pebrSession{h: h, c: c}
	default:
		return &nrSession{h: h, c: c}
	}
}

// nrSession never pins: retired nodes are kept forever, so there is nothing
// to protect.
type nrSession struct {
	h reclaim.Handle
	c *ds.Cursor
}

func (s *nrSession) Cursor() *ds.Cursor { return s.c }
func (*nrSession) Acquire()             {}
func (*nrSession) Renew()               {}
func (*nrSession) Release()             {}
func (s *nrSession) Close()             { s.h.Unregister() }

// ebrSession renews by dropping the pin and taking a new one.
type ebrSession struct {
	h reclaim.Handle
	c *ds.Cursor
}

func (s *ebrSession) Cursor() *ds.Cursor { return s.c }
func (s *ebrSession) Acquire()           { s.h.Pin() }

func (s *ebrSession) Renew() {
	s.h.Unpin()
	s.h.Pin()
}

func (s *ebrSession) Release() { s.h.Unpin() }
func (s *ebrSession) Close()   { s.h.Unregister() }

// pebrSession renews by clearing the cursor's shields and repinning in place.
type pebrSession struct {
	h reclaim.Handle
	c *ds.Cursor
}

func (s *pebrSession) Cursor() *ds.Cursor { return s.c }
func (s *pebrSession) Acquire()           { s.h.Pin() }

func (s *pebrSession) Renew() {
	s.c.Clear()
	s.h.Repin()
}

func (s *pebrSession) Release() {
	s.c.Clear()
	s.h.Unpin()
}

func (s *pebrSession) Close() { s.h.Unregister() }
