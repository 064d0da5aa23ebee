package sim

import "sync"

// StatePool recycles fixed-size scratch vectors across goroutines.
type StatePool struct {
	pool sync.Pool
	size int
}

func NewStatePool(size int) *StatePool {
	p := &StatePool{size: size}
	p.pool.New = func() any { return make(State, size) }
	return p
}

func (p *StatePool) Size() int { return p.size }

// Get returns a zeroed vector of the pool's size.
func (p *StatePool) Get() State {
	return p.pool.Get().(State)
}

// Put zeroes s and returns it to the pool. Vectors of another size are dropped.
func (p *StatePool) Put(s State) {
	if len(s) != p.size {
		return
	}
	clear(s)
	p.pool.Put(s)
}

func (p *StatePool) GetAndCopy(src State) State {
	dst := p.Get()
	copy(dst, src)
	return dst
}
