package bench

import (
	"log/slog"
	"math/rand/v2"

	"github.com/codeGROOVE-dev/reclaimbench/ds"
	"github.com/codeGROOVE-dev/reclaimbench/memstat"
	"github.com/codeGROOVE-dev/reclaimbench/reclaim"
)

type options struct {
	sampler   memstat.Sampler
	logger    *slog.Logger
	trace     *memstat.TraceWriter
	reclaim   []reclaim.Option
	newDriver func(reclaim.Kind, ...reclaim.Option) (Driver, error)
	newMap    func(ds.Kind, int) (ds.Map[string, string], error)
	seed      uint64
}

func defaultOptions() *options {
	return &options{
		logger:    slog.Default(),
		newDriver: NewDriver,
		newMap:    ds.New,
		seed:      rand.Uint64(), //nolint:gosec // G404: workload randomness
	}
}

// Option configures Run.
type Option func(*options)

// WithSampler replaces the runtime heap sampler.
func WithSampler(s memstat.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithLogger sets the logger for run progress. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSeed fixes the seed of the prefill and every worker's generator.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithTrace records every memory reading to t. The caller closes t.
func WithTrace(t *memstat.TraceWriter) Option {
	return func(o *options) {
		o.trace = t
	}
}

// WithReclaimOptions tunes the collector, e.g. reclaim.EjectAfter.
func WithReclaimOptions(opts ...reclaim.Option) Option {
	return func(o *options) {
		o.reclaim = append(o.reclaim, opts...)
	}
}

func withDriver(f func(reclaim.Kind, ...reclaim.Option) (Driver, error)) Option {
	return func(o *options) {
		o.newDriver = f
	}
}

func withMap(f func(ds.Kind, int) (ds.Map[string, string], error)) Option {
	return func(o *options) {
		o.newMap = f
	}
}
