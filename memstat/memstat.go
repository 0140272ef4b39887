// Package memstat reads allocator statistics and accumulates memory samples.
package memstat

import (
	"errors"
	"fmt"
	"runtime/metrics"
)

// Sampler is the allocator statistics API the benchmark polls. Advance
// refreshes the statistics; Allocated returns the bytes currently allocated as
// of the last Advance.
type Sampler interface {
	Advance() error
	Allocated() (uint64, error)
}

// HeapObjects is the runtime metric Runtime reads: bytes occupied by live and
// not-yet-swept heap objects.
const HeapObjects = "/memory/classes/heap/objects:bytes"

// ErrUnsupported is returned when the runtime does not export the metric.
var ErrUnsupported = errors.New("metric not supported by this runtime")

// Runtime samples the Go heap through runtime/metrics.
type Runtime struct {
	samples []metrics.Sample
}

// NewRuntime returns a sampler over HeapObjects.
func NewRuntime() *Runtime {
	return &Runtime{samples: []metrics.Sample{{Name: HeapObjects}}}
}

func (r *Runtime) Advance() error {
	metrics.Read(r.samples)
	if r.samples[0].Value.Kind() == metrics.KindBad {
		return fmt.Errorf("%s: %w", HeapObjects, ErrUnsupported)
	}
	return nil
}

func (r *Runtime) Allocated() (uint64, error) {
	v := r.samples[0].Value
	switch v.Kind() {
	case metrics.KindUint64:
		return v.Uint64(), nil
	case metrics.KindBad:
		return 0, fmt.Errorf("%s: %w", HeapObjects, ErrUnsupported)
	default:
		return 0, fmt.Errorf("%s: unexpected kind %v", HeapObjects, v.Kind())
	}
}

// Sample accumulates allocator readings. The zero value is empty.
type Sample struct {
	count uint64
	sum   uint64
	max   uint64
}

func (s *Sample) Add(bytes uint64) {
	s.count++
	s.sum += bytes
	s.max = max(s.max, bytes)
}

func (s Sample) Count() uint64 { return s.count }

// Peak is the largest reading, or 0 with no readings.
func (s Sample) Peak() uint64 { return s.max }

// Avg is the integer mean of the readings, or 0 with no readings.
func (s Sample) Avg() uint64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / s.count
}
