// Package bench runs one benchmark: it prefills a map, drives worker
// goroutines through a reclamation scheme's pin protocol, optionally runs an
// auxiliary goroutine that samples memory and holds a stale pin, and reports
// throughput and memory.
package bench

import (
	"errors"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/reclaimbench/ds"
	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
	"github.com/codeGROOVE-dev/reclaimbench/workload"
)

// Non-cooperation levels of the auxiliary goroutine.
const (
	// Cooperative: the auxiliary goroutine holds no pin.
	Cooperative = 0
	// SlowReader: it holds a pin and repins every NonCoopRepin.
	SlowReader = 1
	// StalledReader: it holds one pin for the whole run.
	StalledReader = 2
)

const (
	// NonCoopRepin is how often a SlowReader renews its pin.
	NonCoopRepin = 10 * time.Millisecond
	// DefaultAuxPeriod is the auxiliary goroutine's wake period.
	DefaultAuxPeriod = time.Millisecond
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is one run's parameters. It is read-only once Run starts.
//
//nolint:govet // fieldalignment: grouped like the CSV columns
type Config struct {
	DS      ds.Kind
	MM      reclaim.Kind
	Threads int
	// NonCoop is Cooperative, SlowReader or StalledReader.
	NonCoop int
	// SamplingPeriod between memory readings; 0 disables sampling.
	SamplingPeriod time.Duration
	GetRate        int
	OpsPerCS       int

	Range     int
	Prefill   int
	Duration  time.Duration
	AuxPeriod time.Duration
}

// DefaultConfig returns the CLI defaults. Threads must still be set.
func DefaultConfig() Config {
	return Config{
		DS:        ds.HashMap,
		MM:        reclaim.EBR,
		OpsPerCS:  1,
		Range:     100000,
		Prefill:   50000,
		Duration:  10 * time.Second,
		AuxPeriod: DefaultAuxPeriod,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	switch {
	case c.Threads < 1:
		return fmt.Errorf("%w: threads = %d; need at least 1", ErrInvalidConfig, c.Threads)
	case c.NonCoop < Cooperative || c.NonCoop > StalledReader:
		return fmt.Errorf("%w: non-cooperation level %d; want 0, 1 or 2", ErrInvalidConfig, c.NonCoop)
	case c.GetRate < 0 || c.GetRate > workload.MaxGetRate:
		return fmt.Errorf("%w: get rate %d; want 0, 1 or 2", ErrInvalidConfig, c.GetRate)
	case c.OpsPerCS != 1 && c.OpsPerCS != 4:
		return fmt.Errorf("%w: ops per critical section %d; want 1 or 4", ErrInvalidConfig, c.OpsPerCS)
	case c.Range < 1:
		return fmt.Errorf("%w: key range %d; need at least 1", ErrInvalidConfig, c.Range)
	case c.Prefill < 0:
		return fmt.Errorf("%w: prefill %d is negative", ErrInvalidConfig, c.Prefill)
	case c.Duration < time.Second:
		return fmt.Errorf("%w: duration %v; need at least 1s", ErrInvalidConfig, c.Duration)
	case c.SamplingPeriod < 0:
		return fmt.Errorf("%w: sampling period %v is negative", ErrInvalidConfig, c.SamplingPeriod)
	case c.AuxPeriod <= 0:
		return fmt.Errorf("%w: aux period %v; must be positive", ErrInvalidConfig, c.AuxPeriod)
	case int(c.DS) >= len(ds.Kinds()):
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ds.ErrUnknownKind)
	case int(c.MM) >= len(reclaim.Kinds()):
		return fmt.Errorf("%w: %w", ErrInvalidConfig, reclaim.ErrUnknownKind)
	}
	return nil
}

// Sampling reports whether memory is sampled.
func (c Config) Sampling() bool { return c.SamplingPeriod > 0 }

// holdsPin reports whether the auxiliary goroutine keeps a pin open. NR has
// no pin to hold.
func (c Config) holdsPin() bool {
	return c.NonCoop > Cooperative && c.MM != reclaim.NR
}

// Aux reports whether the run spawns an auxiliary goroutine.
func (c Config) Aux() bool { return c.Sampling() || c.holdsPin() }

// RepinPeriod is how often the auxiliary goroutine renews its held pin, or 0
// if it never does.
func (c Config) RepinPeriod() time.Duration {
	if c.NonCoop == SlowReader {
		return NonCoopRepin
	}
	return 0
}

// Seconds is the run duration in whole seconds.
func (c Config) Seconds() uint64 {
	return uint64(c.Duration / time.Second) //nolint:gosec // G115: Validate rejects < 1s
}
