package bench

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/reclaimbench/ds"
	"github.com/codeGROOVE-dev/reclaimbench/memstat"
	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
	"github.com/codeGROOVE-dev/reclaimbench/workload"
)

// Result is one run's outcome.
type Result struct {
	Config Config
	// Throughput is total operations per whole second of Duration.
	Throughput uint64
	// PeakMem and AvgMem are 0 when sampling is disabled.
	PeakMem uint64
	AvgMem  uint64

	Ops       []uint64
	Samples   uint64
	Prefilled int
	Reclaim   reclaim.Stats
}

// barrier releases every party at once when the last one arrives.
type barrier struct {
	release chan struct{}
	wg      sync.WaitGroup
}

func newBarrier(n int) *barrier {
	b := &barrier{release: make(chan struct{})}
	b.wg.Add(n)
	go func() {
		b.wg.Wait()
		close(b.release)
	}()
	return b
}

func (b *barrier) Wait() {
	b.wg.Done()
	<-b.release
}

// Run prefills a fresh map, runs cfg.Threads workers plus the auxiliary
// goroutine if cfg.Aux(), and aggregates the result. A sampler error discards
// the run.
func Run(cfg Config, opts ...Option) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.sampler == nil && cfg.Sampling() {
		o.sampler = memstat.NewRuntime()
	}
	log := o.logger.With("ds", cfg.DS, "mm", cfg.MM, "threads", cfg.Threads)

	m, err := o.newMap(cfg.DS, cfg.Range)
	if err != nil {
		return Result{}, fmt.Errorf("create map: %w", err)
	}
	drv, err := o.newDriver(cfg.MM, o.reclaim...)
	if err != nil {
		return Result{}, fmt.Errorf("create driver: %w", err)
	}

	strategy := workload.StrategyFor(cfg.DS.Tree())
	c := ds.NewCursor(reclaim.Unprotected())
	prefilled := workload.Prefill(rand.New(rand.NewPCG(o.seed, 0)), cfg.Range, cfg.Prefill, strategy,
		func(key, value string) { m.Insert(c, key, value) })
	log.Info("prefilled", "keys", prefilled, "strategy", strategy)

	parties := cfg.Threads
	if cfg.Aux() {
		parties++
	}
	b := newBarrier(parties)
	dist := workload.ForGetRate(cfg.GetRate)

	opsCh := make(chan uint64, cfg.Threads)
	for i := range cfg.Threads {
		gen := workload.NewSeeded(o.seed, uint64(i)+1, cfg.Range, dist) //nolint:gosec // G115: i >= 0
		go func() {
			opsCh <- work(cfg, m, drv, gen, b)
		}()
	}

	memCh := make(chan auxResult, 1)
	if cfg.Aux() {
		a := &auxTask{cfg: cfg, drv: drv, sampler: o.sampler, trace: o.trace}
		go func() {
			memCh <- a.run(b)
		}()
	} else {
		memCh <- auxResult{}
	}
	log.Info("running", "duration", cfg.Duration, "aux", cfg.Aux(), "non_coop", cfg.NonCoop,
		"get_rate", cfg.GetRate, "ops_per_cs", cfg.OpsPerCS)

	res := Result{Config: cfg, Prefilled: prefilled, Ops: make([]uint64, 0, cfg.Threads)}
	var total uint64
	for range cfg.Threads {
		n := <-opsCh
		res.Ops = append(res.Ops, n)
		total += n
	}
	aux := <-memCh
	if aux.err != nil {
		return Result{}, fmt.Errorf("aux: %w", aux.err)
	}

	res.Throughput = total / cfg.Seconds()
	res.PeakMem = aux.mem.Peak()
	res.AvgMem = aux.mem.Avg()
	res.Samples = aux.mem.Count()
	res.Reclaim = drv.Stats()
	log.Info("done", "throughput", res.Throughput, "peak_mem", res.PeakMem, "avg_mem", res.AvgMem,
		"samples", res.Samples, "retired", res.Reclaim.Retired, "reclaimed", res.Reclaim.Reclaimed,
		"ejections", res.Reclaim.Ejections)
	return res, nil
}

// work runs one worker: OpsPerCS operations per critical section, renewing
// between sections, until its own clock passes Duration. It returns the
// number of operations performed.
func work(cfg Config, m ds.Map[string, string], drv Driver, gen *workload.Generator, b *barrier) uint64 {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s := drv.Register(Worker)
	defer s.Close()
	c := s.Cursor()

	b.Wait()
	start := time.Now()

	var ops uint64
	s.Acquire()
	for time.Since(start) < cfg.Duration {
		for range cfg.OpsPerCS {
			key, op := gen.Next()
			switch op {
			case workload.Get:
				m.Get(c, key)
			case workload.Insert:
				m.Insert(c, key, key)
			case workload.Remove:
				m.Remove(c, key)
			}
		}
		ops += uint64(cfg.OpsPerCS) //nolint:gosec // G115: 1 or 4
		s.Renew()
	}
	s.Release()
	return ops
}
