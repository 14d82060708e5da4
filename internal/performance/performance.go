// Package performance fans independent pricing evaluations (surface cells,
// scenario cells) out over a fixed set of goroutines.
package performance

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// job is one index of a ParallelFor batch.
type job struct {
	fn    func(int)
	index int
	done  *sync.WaitGroup
}

// Pool runs indexed jobs on a fixed number of workers. The queue is bounded;
// a job that does not fit runs on the goroutine that offered it.
type Pool struct {
	size    int
	queue   chan job
	workers sync.WaitGroup

	mu      sync.RWMutex
	running bool

	queued atomic.Uint64
	inline atomic.Uint64
}

// NewPool creates a stopped pool. size <= 0 means runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		size:  size,
		queue: make(chan job, size*64),
	}
}

// Start launches the workers. Calling it on a running pool is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for i := 0; i < p.size; i++ {
		p.workers.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.workers.Done()
	for j := range p.queue {
		j.run()
	}
}

func (j job) run() {
	defer j.done.Done()
	j.fn(j.index)
}

// Stop drains the queue and waits for the workers to exit. A stopped pool
// cannot be restarted; ParallelFor on it runs every job inline.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()
	p.workers.Wait()
}

// offer enqueues j if the pool is running and the queue has room.
func (p *Pool) offer(j job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return false
	}
	select {
	case p.queue <- j:
		p.queued.Add(1)
		return true
	default:
		return false
	}
}

// ParallelFor calls fn(i) for every i in [0, n) and returns once all calls
// have finished. fn must be safe for concurrent use and must not call
// ParallelFor on the same pool.
func (p *Pool) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	var done sync.WaitGroup
	done.Add(n)
	for i := 0; i < n; i++ {
		j := job{fn: fn, index: i, done: &done}
		if !p.offer(j) {
			p.inline.Add(1)
			j.run()
		}
	}
	done.Wait()
}

// Stats reports the pool's size and how its jobs were executed.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	return PoolStats{
		Workers: p.size,
		Running: running,
		Queued:  p.queued.Load(),
		Inline:  p.inline.Load(),
	}
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Workers int    `json:"workers"`
	Running bool   `json:"running"`
	Queued  uint64 `json:"queued"`
	Inline  uint64 `json:"inline"`
}

var (
	shared      *Pool
	sharedOnce  sync.Once
	sharedWidth atomic.Int64
)

// SetDefaultWorkers sizes the shared pool. It has no effect once the shared
// pool has been used.
func SetDefaultWorkers(n int) {
	sharedWidth.Store(int64(n))
}

// Default returns the process-wide pool, starting it on first use.
func Default() *Pool {
	sharedOnce.Do(func() {
		shared = NewPool(int(sharedWidth.Load()))
		shared.Start()
	})
	return shared
}

// ParallelFor runs fn over [0, n) on the shared pool.
func ParallelFor(n int, fn func(i int)) {
	Default().ParallelFor(n, fn)
}
