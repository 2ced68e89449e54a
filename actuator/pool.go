package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
	"github.com/quailyquaily/chipdesk/internal/worker"
	"github.com/shopspring/decimal"
)

type PoolOptions struct {
	// Workers is the number of concurrent console calls. A browser-backed
	// console holds one session, so the default is 1.
	Workers   int
	QueueSize int
	Timeout   time.Duration
	Logger    *slog.Logger
}

type call struct {
	op   string
	fn   func(ctx context.Context) error
	done chan error
}

// Pool serializes console calls onto a bounded set of workers with a per-call
// timeout, so a slow console never blocks chat handling.
type Pool struct {
	next    Actuator
	ctx     context.Context
	jobs    chan call
	timeout time.Duration
	logger  *slog.Logger
	group   *worker.Group
}

func NewPool(ctx context.Context, next Actuator, opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	p := &Pool{
		next:    next,
		ctx:     ctx,
		jobs:    make(chan call, opts.QueueSize),
		timeout: opts.Timeout,
		logger:  logutil.OrDiscard(opts.Logger),
	}
	p.group = worker.Start(worker.StartOptions[call]{
		Ctx:     ctx,
		Workers: opts.Workers,
		Jobs:    p.jobs,
		Handle:  p.handle,
	})
	return p
}

// Wait blocks until the pool's context ends and in-flight calls return.
func (p *Pool) Wait() { p.group.Wait() }

func (p *Pool) handle(ctx context.Context, c call) {
	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := c.fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %s: %v", ErrTimeout, c.op, err)
	}
	cancel()

	metrics.ActuatorLatency.WithLabelValues(c.op).Observe(time.Since(started).Seconds())
	metrics.ActuatorCalls.WithLabelValues(c.op, outcome(err)).Inc()
	if err != nil {
		p.logger.Warn("actuator_call_failed", "op", c.op, "elapsed", time.Since(started).String(), "error", err.Error())
	} else {
		p.logger.Debug("actuator_call_ok", "op", c.op, "elapsed", time.Since(started).String())
	}
	c.done <- err
}

func (p *Pool) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c := call{op: op, fn: fn, done: make(chan error, 1)}
	if err := worker.Enqueue(ctx, p.ctx, p.jobs, c); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, p.ctx.Err())
	}
}

func (p *Pool) Authenticate(ctx context.Context) error {
	return p.do(ctx, "authenticate", p.next.Authenticate)
}

func (p *Pool) CreateAccount(ctx context.Context, name string) (Credentials, error) {
	var creds Credentials
	err := p.do(ctx, "create_account", func(ctx context.Context) error {
		var err error
		creds, err = p.next.CreateAccount(ctx, name)
		return err
	})
	return creds, err
}

func (p *Pool) Credit(ctx context.Context, name string, amount decimal.Decimal) error {
	return p.do(ctx, "credit", func(ctx context.Context) error {
		return p.next.Credit(ctx, name, amount)
	})
}

func (p *Pool) Debit(ctx context.Context, name string, amount decimal.Decimal) error {
	return p.do(ctx, "debit", func(ctx context.Context) error {
		return p.next.Debit(ctx, name, amount)
	})
}

func (p *Pool) ChangePassword(ctx context.Context, name, newPassword string) error {
	return p.do(ctx, "change_password", func(ctx context.Context) error {
		return p.next.ChangePassword(ctx, name, newPassword)
	})
}

func (p *Pool) Unlock(ctx context.Context, name string) error {
	return p.do(ctx, "unlock", func(ctx context.Context) error {
		return p.next.Unlock(ctx, name)
	})
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}
