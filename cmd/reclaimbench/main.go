// Command reclaimbench measures throughput and memory of a concurrent map
// under one memory reclamation scheme and appends the result to a CSV file.
//
// Usage:
//
//	reclaimbench -d hashmap -m ebr -t 8                 # 8 workers, 10s, no sampling
//	reclaimbench -d nmtree -m pebr -t 8 -nn -s 1        # stalled reader, sample every 1ms
//	reclaimbench -d list -m nr -t 4 -gg -c 4 -o out.csv # 90% reads, 4 ops per pin
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/reclaimbench/bench"
	"github.com/codeGROOVE-dev/reclaimbench/ds"
	"github.com/codeGROOVE-dev/reclaimbench/memstat"
	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

type flags struct {
	ds       string
	mm       string
	output   string
	trace    string
	threads  int
	nonCoop  int
	getRate  int
	keyRange int
	prefill  int
	interval int
	sampling int
	opsPerCS int
	seed     uint64
	verbose  bool
}

func main() {
	var f flags
	if err := newRootCmd(&f).Execute(); err != nil {
		fatal("%v", err)
	}
}

func newRootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reclaimbench",
		Short:         "Benchmark concurrent maps under memory reclamation schemes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.ds, "ds", "d", "", "data structure: list, hashmap, nmtree, bonsaitree, otter, ristretto, lru, freecache, tinylfu, xsync, skipmap")
	fl.StringVarP(&f.mm, "mm", "m", "", "reclamation scheme: nr, ebr, pebr")
	fl.IntVarP(&f.threads, "threads", "t", 0, "number of worker goroutines")
	fl.CountVarP(&f.nonCoop, "non-coop", "n", "non-cooperation level; repeat for level 2 (-nn)")
	fl.CountVarP(&f.getRate, "get-rate", "g", "get rate level: none 0%, -g ~50%, -gg ~90%")
	fl.IntVarP(&f.keyRange, "range", "r", 100000, "key range")
	fl.IntVarP(&f.prefill, "prefill", "p", 50000, "keys inserted before the run")
	fl.IntVarP(&f.interval, "interval", "i", 10, "run duration in seconds")
	fl.IntVarP(&f.sampling, "sampling-period", "s", 0, "memory sampling period in ms; 0 disables sampling")
	fl.IntVarP(&f.opsPerCS, "ops-per-cs", "c", 1, "operations per critical section: 1 or 4")
	fl.StringVarP(&f.output, "output", "o", "", "results CSV (default <DS>_results.csv, e.g. HashMap_results.csv)")
	fl.StringVar(&f.trace, "trace", "", "write every memory sample to this compressed CSV (.lz4 for LZ4, zstd otherwise)")
	fl.Uint64Var(&f.seed, "seed", 0, "workload seed (default random)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	for _, name := range []string{"ds", "mm", "threads"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

// config converts flags to a validated bench.Config.
func (f *flags) config() (bench.Config, error) {
	cfg := bench.DefaultConfig()
	var err error
	if cfg.DS, err = ds.ParseKind(f.ds); err != nil {
		return cfg, err
	}
	if cfg.MM, err = reclaim.ParseKind(f.mm); err != nil {
		return cfg, err
	}
	cfg.Threads = f.threads
	cfg.NonCoop = min(f.nonCoop, bench.StalledReader)
	cfg.GetRate = min(f.getRate, 2)
	cfg.Range = f.keyRange
	cfg.Prefill = f.prefill
	cfg.Duration = time.Duration(f.interval) * time.Second
	cfg.SamplingPeriod = time.Duration(f.sampling) * time.Millisecond
	cfg.OpsPerCS = f.opsPerCS
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, f *flags) error {
	cfg, err := f.config()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	opts := []bench.Option{bench.WithLogger(logger)}
	if cmd.Flags().Changed("seed") {
		opts = append(opts, bench.WithSeed(f.seed))
	}

	output := f.output
	if output == "" {
		output = bench.DefaultOutput(cfg.DS)
	}
	results, err := bench.OpenCSV(output)
	if err != nil {
		return err
	}
	defer results.Close() //nolint:errcheck // rows are flushed by Append

	if f.trace != "" {
		tf, err := os.Create(f.trace)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer tf.Close() //nolint:errcheck // closed after the encoder flushes
		tw, err := memstat.NewTraceWriter(tf, memstat.CodecFor(f.trace))
		if err != nil {
			return err
		}
		defer func() {
			if err := tw.Close(); err != nil {
				logger.Error("trace", "error", err)
			}
		}()
		opts = append(opts, bench.WithTrace(tw))
	}

	// Start every run from a settled heap.
	//nolint:revive // explicit GC required for accurate memory benchmarking
	runtime.GC()
	debug.FreeOSMemory()

	res, err := bench.Run(cfg, opts...)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	fmt.Printf("%v %v threads=%d non_coop=%d get_rate=%d ops_per_cs=%d: %d ops/s, peak %d B, avg %d B\n",
		cfg.DS, cfg.MM, cfg.Threads, cfg.NonCoop, cfg.GetRate, cfg.OpsPerCS,
		res.Throughput, res.PeakMem, res.AvgMem)
	return results.Append(res)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
