package bench

import (
	"fmt"
	"runtime"
	"time"

	"github.com/codeGROOVE-dev/reclaimbench/memstat"
)

type auxResult struct {
	err error
	mem memstat.Sample
}

// auxTask samples memory every SamplingPeriod and, when non-cooperative,
// holds a pin that it renews every RepinPeriod or never. It wakes every
// AuxPeriod and stops on its own clock.
type auxTask struct {
	cfg     Config
	drv     Driver
	sampler memstat.Sampler
	trace   *memstat.TraceWriter
}

func (a *auxTask) run(b *barrier) auxResult {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s := a.drv.Register(Auxiliary)
	defer s.Close()

	hold := a.cfg.holdsPin()
	repin := a.cfg.RepinPeriod()

	b.Wait()
	start := time.Now()

	s.Acquire()
	if !hold {
		s.Release()
	}

	var res auxResult
	var nextSample, nextRepin time.Duration
	nextRepin = repin
	for {
		elapsed := time.Since(start)
		if elapsed >= a.cfg.Duration {
			break
		}
		if a.cfg.Sampling() && elapsed >= nextSample {
			if err := a.sample(&res.mem, elapsed); err != nil {
				res.err = err
				break
			}
			nextSample = elapsed + a.cfg.SamplingPeriod
		}
		if hold && repin > 0 && elapsed >= nextRepin {
			s.Renew()
			nextRepin = elapsed + repin
		}
		time.Sleep(a.cfg.AuxPeriod)
	}

	if hold {
		s.Release()
	}
	return res
}

func (a *auxTask) sample(into *memstat.Sample, elapsed time.Duration) error {
	if err := a.sampler.Advance(); err != nil {
		return fmt.Errorf("advance allocator stats: %w", err)
	}
	n, err := a.sampler.Allocated()
	if err != nil {
		return fmt.Errorf("read allocated bytes: %w", err)
	}
	into.Add(n)
	if a.trace != nil {
		return a.trace.Record(elapsed, n)
	}
	return nil
}
