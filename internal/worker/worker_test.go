package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartDrainsJobsWithBoundedConcurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan int)
	var (
		running atomic.Int32
		peak    atomic.Int32
		mu      sync.Mutex
		seen    []int
	)
	g := Start(StartOptions[int]{
		Ctx:     ctx,
		Workers: 2,
		Jobs:    jobs,
		Handle: func(_ context.Context, j int) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			mu.Lock()
			seen = append(seen, j)
			mu.Unlock()
		},
	})

	for i := 0; i < 8; i++ {
		if err := Enqueue(ctx, ctx, jobs, i); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	close(jobs)
	g.Wait()

	if len(seen) != 8 {
		t.Fatalf("handled %d jobs, want 8", len(seen))
	}
	if got := peak.Load(); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestEnqueueStopsWhenWorkersContextEnds(t *testing.T) {
	workersCtx, cancel := context.WithCancel(context.Background())
	cancel()
	jobs := make(chan int)
	err := Enqueue(context.Background(), workersCtx, jobs, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Enqueue() error = %v, want context.Canceled", err)
	}
}

func TestTryEnqueueReportsFullChannel(t *testing.T) {
	jobs := make(chan int, 1)
	if !TryEnqueue(jobs, 1) {
		t.Fatalf("TryEnqueue() = false on empty channel")
	}
	if TryEnqueue(jobs, 2) {
		t.Fatalf("TryEnqueue() = true on full channel")
	}
}

func TestStartRetiresIdleWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan int, 1)
	var (
		idleCalls atomic.Int32
		handled   atomic.Int32
	)
	g := Start(StartOptions[int]{
		Ctx:         ctx,
		Jobs:        jobs,
		Handle:      func(context.Context, int) { handled.Add(1) },
		IdleTimeout: 10 * time.Millisecond,
		OnIdle: func() bool {
			return idleCalls.Add(1) >= 2
		},
	})
	jobs <- 1

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("idle worker did not stop")
	}
	if handled.Load() != 1 {
		t.Fatalf("handled = %d, want 1", handled.Load())
	}
	if idleCalls.Load() != 2 {
		t.Fatalf("OnIdle calls = %d, want 2", idleCalls.Load())
	}
}
