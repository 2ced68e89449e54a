// Package ledger persists credited transactions exactly once per source
// message, and stores conversation sessions. Every store call goes through a
// bounded retry policy; exhaustion surfaces as ErrUnavailable.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/chipdesk/db"
	"github.com/quailyquaily/chipdesk/db/models"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultRetention     = 10 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

var (
	// ErrUnavailable means the store could not be reached within the retry budget.
	// Callers treat it as transient.
	ErrUnavailable   = errors.New("ledger unavailable")
	ErrMissingSource = errors.New("transaction has no source message id")
)

type Transaction struct {
	Amount          decimal.Decimal
	SourceMessageID string
	AccountAlias    string
	RecordedAt      time.Time
}

type Options struct {
	Retry  retryutil.Policy
	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultRetry is five attempts two seconds apart, then a thirty second
// cooldown when the store is unreachable.
func DefaultRetry() retryutil.Policy {
	return retryutil.Policy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Cooldown: 30 * time.Second,
	}
}

type Ledger struct {
	db     *gorm.DB
	retry  retryutil.Policy
	logger *slog.Logger
	now    func() time.Time
}

func New(gdb *gorm.DB, opts Options) *Ledger {
	if opts.Retry.Attempts <= 0 {
		sleep := opts.Retry.Sleep
		opts.Retry = DefaultRetry()
		opts.Retry.Sleep = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		db:     gdb,
		retry:  opts.Retry,
		logger: logutil.OrDiscard(opts.Logger),
		now:    opts.Now,
	}
}

// InsertIfAbsent records tx unless a transaction with the same source message
// id exists. It reports true only when this call created the row.
func (l *Ledger) InsertIfAbsent(ctx context.Context, tx Transaction) (bool, error) {
	source := strings.TrimSpace(tx.SourceMessageID)
	if source == "" {
		return false, ErrMissingSource
	}
	recordedAt := tx.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = l.now()
	}
	row := models.Transaction{
		Amount:          tx.Amount.Round(2),
		SourceMessageID: source,
		AccountAlias:    tx.AccountAlias,
		RecordedAt:      recordedAt.UTC(),
	}

	var inserted bool
	err := l.do(ctx, "insert_transaction", func(ctx context.Context) error {
		row.ID = uuid.NewString()
		res := l.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_message_id"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			if db.IsUniqueViolation(res.Error) {
				inserted = false
				return nil
			}
			return res.Error
		}
		inserted = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		metrics.LedgerInserts.WithLabelValues("error").Inc()
		return false, err
	}
	if inserted {
		metrics.LedgerInserts.WithLabelValues("recorded").Inc()
	} else {
		metrics.LedgerInserts.WithLabelValues("duplicate").Inc()
	}
	return inserted, nil
}

// CountTransactions returns the number of retained transactions.
func (l *Ledger) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := l.do(ctx, "count_transactions", func(ctx context.Context) error {
		return l.db.WithContext(ctx).Model(&models.Transaction{}).Count(&n).Error
	})
	return n, err
}

// SweepExpired deletes transactions recorded more than retention ago.
func (l *Ledger) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := l.now().UTC().Add(-retention)
	var deleted int64
	err := l.do(ctx, "sweep_transactions", func(ctx context.Context) error {
		res := l.db.WithContext(ctx).Where("recorded_at < ?", cutoff).Delete(&models.Transaction{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err == nil && deleted > 0 {
		metrics.LedgerSwept.Add(float64(deleted))
	}
	return deleted, err
}

// RunSweeper sweeps once immediately and then on every interval until ctx ends.
func (l *Ledger) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	sweep := func() {
		n, err := l.SweepExpired(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("ledger_sweep_error", "error", err.Error())
			}
			return
		}
		if n > 0 {
			l.logger.Info("ledger_sweep_done", "deleted", n, "retention", retention.String())
		}
	}
	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// Ping checks connectivity without retrying.
func (l *Ledger) Ping(ctx context.Context) error {
	return db.Ping(ctx, l.db)
}

func (l *Ledger) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := l.retry.Do(ctx, fn)
	if err == nil {
		return nil
	}
	if !errors.Is(err, retryutil.ErrExhausted) {
		return err
	}
	metrics.LedgerUnavailable.WithLabelValues(op).Inc()
	if pingErr := db.Ping(ctx, l.db); pingErr != nil {
		l.logger.Warn("ledger_unreachable", "op", op, "cooldown", l.retry.Cooldown.String(), "error", pingErr.Error())
		_ = l.retry.Cool(ctx)
	} else {
		l.logger.Warn("ledger_op_failed", "op", op, "error", err.Error())
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
