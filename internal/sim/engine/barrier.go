package engine

import "sync"

// barrier is a reusable generation-counted rendezvous for the worker pool. The last goroutine
// to arrive in a generation is not blocked: it owns the stitcher role until it calls
// releaseWaitingThreads, which starts the next generation.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation uint64
}

func newBarrier(parties int) *barrier {
	b := &barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// arrive blocks until the generation is released, or returns true immediately for the final
// arrival.
func (b *barrier) arrive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting++
	if b.waiting == b.parties {
		return true
	}
	gen := b.generation
	for gen == b.generation {
		b.cond.Wait()
	}
	return false
}

func (b *barrier) releaseWaitingThreads() {
	b.mu.Lock()
	b.waiting = 0
	b.generation++
	b.cond.Broadcast()
	b.mu.Unlock()
}
