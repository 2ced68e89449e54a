package worker

import (
	"context"
	"sync"
	"time"
)

type StartOptions[J any] struct {
	Ctx context.Context
	// Workers is the number of goroutines draining Jobs. Values below one start a single goroutine.
	Workers int
	Jobs    <-chan J
	Handle  func(context.Context, J)
	// IdleTimeout, with OnIdle, lets a goroutine retire after a quiet period.
	// OnIdle runs once per quiet period; returning true stops the goroutine.
	IdleTimeout time.Duration
	OnIdle      func() bool
}

// Group tracks the goroutines started by Start.
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) Wait() {
	if g == nil {
		return
	}
	g.wg.Wait()
}

func Start[J any](opts StartOptions[J]) *Group {
	n := opts.Workers
	if n < 1 {
		n = 1
	}
	g := &Group{}
	for i := 0; i < n; i++ {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			run(opts)
		}()
	}
	return g
}

func run[J any](opts StartOptions[J]) {
	var (
		timer *time.Timer
		idle  <-chan time.Time
	)
	if opts.IdleTimeout > 0 && opts.OnIdle != nil {
		timer = time.NewTimer(opts.IdleTimeout)
		defer timer.Stop()
		idle = timer.C
	}
	for {
		select {
		case <-opts.Ctx.Done():
			return
		case <-idle:
			if opts.OnIdle() {
				return
			}
			timer.Reset(opts.IdleTimeout)
		case job, ok := <-opts.Jobs:
			if !ok {
				return
			}
			opts.Handle(opts.Ctx, job)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(opts.IdleTimeout)
			}
		}
	}
}

// Enqueue blocks until the job is accepted or either context ends.
func Enqueue[J any](ctx, workersCtx context.Context, jobs chan<- J, job J) error {
	if ctx == nil {
		ctx = workersCtx
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-workersCtx.Done():
		return workersCtx.Err()
	case jobs <- job:
		return nil
	}
}

// TryEnqueue hands job over without blocking. It reports false when the
// channel is full.
func TryEnqueue[J any](jobs chan<- J, job J) bool {
	select {
	case jobs <- job:
		return true
	default:
		return false
	}
}
