package workload

import (
	"cmp"
	"math/rand/v2"
	"slices"
)

// Strategy is the order in which prefill keys are inserted.
type Strategy uint8

const (
	// Random inserts independently sampled keys in sampling order.
	Random Strategy = iota
	// Decreasing sorts the sampled keys descending before inserting them.
	Decreasing
)

func (s Strategy) String() string {
	if s == Decreasing {
		return "decreasing"
	}
	return "random"
}

// StrategyFor picks Random for trees, whose shape depends on insertion order,
// and Decreasing for lists and hash maps.
func StrategyFor(tree bool) Strategy {
	if tree {
		return Random
	}
	return Decreasing
}

// Prefill samples count keys from [0, keyRange) and inserts each with its own
// key as value. Duplicates overwrite. It returns the number of attempted
// inserts, which is always count.
func Prefill(rng *rand.Rand, keyRange, count int, s Strategy, insert func(key, value string)) int {
	if count <= 0 {
		return 0
	}
	keyRange = max(keyRange, 1)
	keys := make([]int, count)
	for i := range keys {
		keys[i] = rng.IntN(keyRange)
	}
	if s == Decreasing {
		slices.SortFunc(keys, func(a, b int) int { return cmp.Compare(b, a) })
	}
	for _, k := range keys {
		key := Key(k)
		insert(key, key)
	}
	return len(keys)
}
