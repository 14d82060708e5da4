package performance

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ParallelForVisitsEveryIndex(t *testing.T) {
	pool := NewPool(4)
	pool.Start()
	defer pool.Stop()

	const n = 1000
	seen := make([]int32, n)
	pool.ParallelFor(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})

	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
	stats := pool.Stats()
	if stats.Queued+stats.Inline != n {
		t.Errorf("queued %d + inline %d != %d", stats.Queued, stats.Inline, n)
	}
}

func TestPool_NotStartedRunsInline(t *testing.T) {
	pool := NewPool(2)

	var count int64
	pool.ParallelFor(50, func(i int) {
		atomic.AddInt64(&count, 1)
	})
	if count != 50 {
		t.Errorf("expected 50 calls, got %d", count)
	}
	if got := pool.Stats().Inline; got != 50 {
		t.Errorf("expected 50 inline jobs, got %d", got)
	}
}

func TestParallelFor_Zero(t *testing.T) {
	called := false
	ParallelFor(0, func(int) { called = true })
	if called {
		t.Error("fn must not be called for n=0")
	}
}

func TestPool_StartStopIdempotent(t *testing.T) {
	pool := NewPool(0)
	pool.Start()
	pool.Start()

	stats := pool.Stats()
	if !stats.Running {
		t.Fatal("pool should be running")
	}
	if stats.Workers <= 0 {
		t.Errorf("expected default worker count, got %d", stats.Workers)
	}

	pool.Stop()
	pool.Stop()
	if pool.Stats().Running {
		t.Error("pool should be stopped")
	}

	before := pool.Stats().Inline
	pool.ParallelFor(3, func(int) {})
	if got := pool.Stats().Inline - before; got != 3 {
		t.Errorf("stopped pool should run jobs inline, got %d", got)
	}
}

func TestDefaultPool_Shared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default should return the same pool")
	}

	var mu sync.Mutex
	sum := 0
	ParallelFor(100, func(i int) {
		mu.Lock()
		sum += i
		mu.Unlock()
	})
	if sum != 4950 {
		t.Errorf("expected 4950, got %d", sum)
	}
}

func BenchmarkPool(b *testing.B) {
	pool := NewPool(4)
	pool.Start()
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.ParallelFor(16, func(int) {
			time.Sleep(time.Microsecond)
		})
	}
}
