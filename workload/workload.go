// Package workload generates the benchmark's key and operation stream and
// prefills maps before measurement.
package workload

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
)

// Op is a map operation.
type Op uint8

const (
	Get Op = iota
	Insert
	Remove
)

func (o Op) String() string {
	switch o {
	case Get:
		return "get"
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// MaxGetRate is the highest get-rate level.
const MaxGetRate = 2

// getRateWeights are the {Get, Insert, Remove} weights per get-rate level:
// 0%, ~50% and ~90% reads.
var getRateWeights = [MaxGetRate + 1][3]uint32{
	{0, 1, 1},
	{2, 1, 1},
	{18, 1, 1},
}

// GetRateWeights returns the preset weights for level, capped at MaxGetRate.
func GetRateWeights(level int) [3]uint32 {
	return getRateWeights[min(max(level, 0), MaxGetRate)]
}

// ErrNoWeight is returned for a distribution whose weights are all zero.
var ErrNoWeight = errors.New("operation weights sum to zero")

// OpDist is a weighted categorical distribution over operations.
// A category with weight zero is never sampled.
type OpDist struct {
	cum [3]uint32
}

// NewOpDist builds a distribution from {Get, Insert, Remove} weights.
func NewOpDist(weights [3]uint32) (OpDist, error) {
	var d OpDist
	var sum uint32
	for i, w := range weights {
		sum += w
		d.cum[i] = sum
	}
	if sum == 0 {
		return OpDist{}, ErrNoWeight
	}
	return d, nil
}

// ForGetRate is NewOpDist(GetRateWeights(level)).
func ForGetRate(level int) OpDist {
	d, _ := NewOpDist(GetRateWeights(level)) //nolint:errcheck // presets are non-zero
	return d
}

// Weights returns the distribution's {Get, Insert, Remove} weights.
func (d OpDist) Weights() [3]uint32 {
	return [3]uint32{d.cum[0], d.cum[1] - d.cum[0], d.cum[2] - d.cum[1]}
}

// Sample draws one operation.
func (d OpDist) Sample(r *rand.Rand) Op {
	x := r.Uint32N(d.cum[2])
	switch {
	case x < d.cum[0]:
		return Get
	case x < d.cum[1]:
		return Insert
	default:
		return Remove
	}
}

// Key renders an integer key in the form every map stores.
func Key(k int) string { return strconv.Itoa(k) }

// Generator is an endless stream of (key, op) pairs. It is not safe for
// concurrent use; each worker owns one.
type Generator struct {
	rng      *rand.Rand
	ops      OpDist
	keyRange int
}

// NewGenerator draws keys uniformly from [0, keyRange) and ops from ops.
func NewGenerator(rng *rand.Rand, keyRange int, ops OpDist) *Generator {
	return &Generator{rng: rng, ops: ops, keyRange: max(keyRange, 1)}
}

// NewSeeded is NewGenerator over a PCG source seeded with (seed, stream).
func NewSeeded(seed, stream uint64, keyRange int, ops OpDist) *Generator {
	return NewGenerator(rand.New(rand.NewPCG(seed, stream)), keyRange, ops)
}

// Next advances the stream.
func (g *Generator) Next() (string, Op) {
	k := g.rng.IntN(g.keyRange)
	return Key(k), g.ops.Sample(g.rng)
}
