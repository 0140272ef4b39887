package reclaim

import "sync"

// Pool is a typed node pool. Maps allocate nodes from it and pass Put-backed
// free functions to Handle.Retire, so a node only returns to circulation once
// its scheme says no reader can still see it.
type Pool[T any] struct {
	p *sync.Pool
}

// NewPool creates a pool that allocates with ctor when empty.
func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T) //nolint:forcetypeassert // New always returns *T
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}
