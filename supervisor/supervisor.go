// Package supervisor keeps exactly one mailbox watcher running per active
// account. Its alias map is the only record of live workers.
package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/internal/heartbeatutil"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
)

const (
	DefaultGrace      = 10 * time.Second
	DefaultRetryStart = 30 * time.Second
)

type Lister interface {
	Active(ctx context.Context) ([]accounts.Account, error)
}

type Worker interface {
	Run(ctx context.Context)
}

// HealthReporter is implemented by workers that expose loop health.
type HealthReporter interface {
	Health() heartbeatutil.Snapshot
}

type Factory func(acct accounts.Account) Worker

type Options struct {
	// Grace bounds how long Reconcile waits for replaced workers to exit.
	Grace time.Duration
	// RetryInterval is slept between failed attempts in RetryStart.
	RetryInterval time.Duration
	// Sleep replaces the wait in RetryStart; tests pass a no-op.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

type handle struct {
	acct       accounts.Account
	worker     Worker
	cancel     context.CancelFunc
	done       chan struct{}
	generation uint64
	startedAt  time.Time
}

type Status struct {
	Alias      string                  `json:"alias"`
	Mail       string                  `json:"mail"`
	Generation uint64                  `json:"generation"`
	StartedAt  time.Time               `json:"started_at"`
	Health     *heartbeatutil.Snapshot `json:"health,omitempty"`
}

type Supervisor struct {
	lister  Lister
	factory Factory
	grace   time.Duration
	retry   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger

	reconcileMu sync.Mutex

	mu         sync.Mutex
	parent     context.Context
	workers    map[string]*handle
	generation uint64
}

func New(lister Lister, factory Factory, opts Options) *Supervisor {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryStart
	}
	if opts.Sleep == nil {
		opts.Sleep = retryutil.Sleep
	}
	return &Supervisor{
		lister:  lister,
		factory: factory,
		grace:   opts.Grace,
		retry:   opts.RetryInterval,
		sleep:   opts.Sleep,
		logger:  logutil.OrDiscard(opts.Logger),
		parent:  context.Background(),
		workers: map[string]*handle{},
	}
}

// Start binds worker lifetimes to ctx and runs the first reconciliation.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	s.parent = ctx
	s.mu.Unlock()
	return s.Reconcile(ctx)
}

// RetryStart keeps calling Start, sleeping the retry interval before each
// attempt, until one succeeds or another reconciliation already did. It returns
// the context error if ctx ends first.
func (s *Supervisor) RetryStart(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := s.sleep(ctx, s.retry); err != nil {
			return err
		}
		if s.reconciled() {
			return nil
		}
		err := s.Start(ctx)
		if err == nil {
			s.logger.Info("supervisor_start_recovered", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("supervisor_start_retry", "attempt", attempt, "retry_in", s.retry.String(), "error", err.Error())
	}
}

func (s *Supervisor) reconciled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation > 0
}

// Reconcile replaces the running workers with one fresh worker per active
// account. If the account list cannot be read, current workers are kept.
// Calls are serialized.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	active, err := s.lister.Active(ctx)
	if err != nil {
		s.logger.Warn("supervisor_list_failed", "error", err.Error())
		return err
	}

	s.mu.Lock()
	old := s.workers
	s.workers = map[string]*handle{}
	s.mu.Unlock()

	s.stopAll(old)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	parent := s.parent
	for _, acct := range active {
		if _, dup := s.workers[acct.Alias]; dup {
			continue
		}
		s.workers[acct.Alias] = s.startLocked(parent, acct)
	}
	metrics.ActiveWatchers.Set(float64(len(s.workers)))
	s.logger.Info("supervisor_reconciled", "generation", s.generation, "workers", len(s.workers), "replaced", len(old))
	return nil
}

func (s *Supervisor) startLocked(parent context.Context, acct accounts.Account) *handle {
	ctx, cancel := context.WithCancel(parent)
	h := &handle{
		acct:       acct,
		worker:     s.factory(acct),
		cancel:     cancel,
		done:       make(chan struct{}),
		generation: s.generation,
		startedAt:  time.Now().UTC(),
	}
	go func() {
		defer close(h.done)
		h.worker.Run(ctx)
	}()
	return h
}

func (s *Supervisor) stopAll(workers map[string]*handle) {
	if len(workers) == 0 {
		return
	}
	for _, h := range workers {
		h.cancel()
	}
	deadline := time.NewTimer(s.grace)
	defer deadline.Stop()
	expired := false
	for alias, h := range workers {
		if !expired {
			select {
			case <-h.done:
				continue
			case <-deadline.C:
				expired = true
			}
		}
		select {
		case <-h.done:
		default:
			s.logger.Warn("supervisor_worker_still_running", "alias", alias, "generation", h.generation)
		}
	}
}

// Stop cancels every worker and waits up to the grace period.
func (s *Supervisor) Stop() {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()
	s.mu.Lock()
	old := s.workers
	s.workers = map[string]*handle{}
	s.mu.Unlock()
	s.stopAll(old)
	metrics.ActiveWatchers.Set(0)
}

// Workers lists live workers sorted by alias.
func (s *Supervisor) Workers() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.workers))
	for alias, h := range s.workers {
		st := Status{
			Alias:      alias,
			Mail:       h.acct.MailAddress,
			Generation: h.generation,
			StartedAt:  h.startedAt,
		}
		if hr, ok := h.worker.(HealthReporter); ok {
			snap := hr.Health()
			st.Health = &snap
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}
