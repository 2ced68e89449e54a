// Package mailwatch polls one account's mailbox for credited-amount notices
// and records each notice in the ledger exactly once.
package mailwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/internal/heartbeatutil"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/quailyquaily/chipdesk/ledger"
	"github.com/quailyquaily/chipdesk/notify"
	"github.com/shopspring/decimal"
)

const (
	DefaultPollInterval = 15 * time.Second
	DefaultBatch        = 20
)

// ErrConnect wraps a connection failure that outlasted the connect policy.
var ErrConnect = errors.New("mailbox connect failed")

type Recorder interface {
	InsertIfAbsent(ctx context.Context, tx ledger.Transaction) (bool, error)
}

type Alerter interface {
	Enqueue(text string) notify.Entry
}

// Publisher is told about every newly recorded transaction.
type Publisher interface {
	TransactionRecorded(ctx context.Context, tx ledger.Transaction) error
}

type Config struct {
	PollInterval time.Duration
	Batch        int
	// Connect bounds reconnect attempts; its Cooldown is slept after exhaustion.
	Connect retryutil.Policy
	// Sleep replaces the wait between cycles; tests pass a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConnectPolicy is five attempts four seconds apart, then a one
// minute cooldown.
func DefaultConnectPolicy() retryutil.Policy {
	return retryutil.Policy{
		Attempts: 5,
		Delay:    4 * time.Second,
		Cooldown: 60 * time.Second,
	}
}

type Watcher struct {
	acct      accounts.Account
	dial      Dialer
	recorder  Recorder
	alerts    Alerter
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
	health    *heartbeatutil.State

	mb Mailbox
}

type Options struct {
	Dial      Dialer
	Recorder  Recorder
	Alerts    Alerter
	Publisher Publisher
	Config    Config
	Logger    *slog.Logger
}

func New(acct accounts.Account, opts Options) *Watcher {
	cfg := opts.Config
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.Connect.Attempts <= 0 {
		sleep := cfg.Connect.Sleep
		cfg.Connect = DefaultConnectPolicy()
		cfg.Connect.Sleep = sleep
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retryutil.Sleep
	}
	logger := logutil.OrDiscard(opts.Logger).With("account", acct.Alias)
	return &Watcher{
		acct:      acct,
		dial:      opts.Dial,
		recorder:  opts.Recorder,
		alerts:    opts.Alerts,
		publisher: opts.Publisher,
		cfg:       cfg,
		logger:    logger,
		health:    &heartbeatutil.State{Name: "mail_watch " + acct.Alias},
	}
}

func (w *Watcher) Alias() string { return w.acct.Alias }

func (w *Watcher) Health() heartbeatutil.Snapshot { return w.health.Snapshot() }

// Run polls until ctx ends. Cycle errors never stop the loop.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("mail_watch_start", "mail", w.acct.MailAddress)
	defer func() {
		w.closeSession()
		w.logger.Info("mail_watch_stop")
	}()
	for {
		w.health.Start(time.Now())
		err := w.Cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := w.cfg.PollInterval
		if err != nil {
			if alert, msg := w.health.EndFailure(err); alert {
				w.logger.Warn("mail_watch_degraded", "message", msg)
			}
			outcome := "error"
			if errors.Is(err, ErrConnect) {
				outcome = "connect_error"
				wait = w.cfg.Connect.Cooldown
			} else if errors.Is(err, ledger.ErrUnavailable) {
				outcome = "ledger_unavailable"
			}
			metrics.MailPolls.WithLabelValues(w.acct.Alias, outcome).Inc()
			w.logger.Warn("mail_watch_cycle_error", "outcome", outcome, "retry_in", wait.String(), "error", err.Error())
		} else {
			w.health.EndSuccess(time.Now())
			metrics.MailPolls.WithLabelValues(w.acct.Alias, "ok").Inc()
		}
		if err := w.cfg.Sleep(ctx, wait); err != nil {
			return
		}
	}
}

// Cycle runs one poll: connect or reuse the session, then process up to Batch
// of the most recent unseen messages in arrival order.
func (w *Watcher) Cycle(ctx context.Context) error {
	mb, err := w.session(ctx)
	if err != nil {
		return err
	}
	uids, err := mb.Unseen(ctx)
	if err != nil {
		w.closeSession()
		return fmt.Errorf("list unseen: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > w.cfg.Batch {
		uids = uids[len(uids)-w.cfg.Batch:]
	}
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := mb.Fetch(ctx, uid)
		if err != nil {
			w.closeSession()
			return fmt.Errorf("fetch uid %d: %w", uid, err)
		}
		if err := w.process(ctx, mb, msg); err != nil {
			if !errors.Is(err, ledger.ErrUnavailable) {
				w.closeSession()
			}
			return err
		}
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, mb Mailbox, msg Message) error {
	if msg.Seen {
		w.count("already_seen")
		return nil
	}
	if msg.MessageID == "" {
		w.count("no_message_id")
		w.logger.Debug("mail_skip_no_message_id", "uid", msg.UID)
		return w.markSeen(ctx, mb, msg.UID)
	}
	if msg.Malformed {
		w.count("malformed")
		w.logger.Warn("mail_skip_malformed", "uid", msg.UID, "message_id", msg.MessageID)
		return w.markSeen(ctx, mb, msg.UID)
	}
	amount, ok := ExtractAmount(msg.Text)
	if !ok {
		w.count("no_amount")
		return w.markSeen(ctx, mb, msg.UID)
	}

	tx := ledger.Transaction{
		Amount:          amount,
		SourceMessageID: msg.MessageID,
		AccountAlias:    w.acct.Alias,
		RecordedAt:      time.Now().UTC(),
	}
	inserted, err := w.recorder.InsertIfAbsent(ctx, tx)
	if err != nil {
		w.count("ledger_error")
		return fmt.Errorf("record %s: %w", msg.MessageID, err)
	}
	if inserted {
		w.count("recorded")
		w.logger.Info("mail_transaction_recorded", "message_id", msg.MessageID, "amount", amount.StringFixed(2))
		w.announce(ctx, tx, amount)
	} else {
		w.count("duplicate")
		w.logger.Debug("mail_transaction_duplicate", "message_id", msg.MessageID)
	}
	return w.markSeen(ctx, mb, msg.UID)
}

func (w *Watcher) announce(ctx context.Context, tx ledger.Transaction, amount decimal.Decimal) {
	if w.alerts != nil {
		w.alerts.Enqueue(notify.IncomeAlert(w.acct.Alias, amount))
	}
	if w.publisher != nil {
		if err := w.publisher.TransactionRecorded(ctx, tx); err != nil {
			w.logger.Warn("ledger_event_publish_failed", "message_id", tx.SourceMessageID, "error", err.Error())
		}
	}
}

func (w *Watcher) markSeen(ctx context.Context, mb Mailbox, uid uint32) error {
	if err := mb.MarkSeen(ctx, uid); err != nil {
		return fmt.Errorf("mark seen uid %d: %w", uid, err)
	}
	return nil
}

func (w *Watcher) count(result string) {
	metrics.MailMessages.WithLabelValues(w.acct.Alias, result).Inc()
}

func (w *Watcher) session(ctx context.Context) (Mailbox, error) {
	if w.mb != nil {
		if err := w.mb.Ping(ctx); err == nil {
			return w.mb, nil
		}
		w.logger.Debug("mail_session_stale")
		w.closeSession()
	}
	if w.dial == nil {
		return nil, fmt.Errorf("%w: no dialer", ErrConnect)
	}
	var mb Mailbox
	err := w.cfg.Connect.Do(ctx, func(ctx context.Context) error {
		m, err := w.dial(ctx, w.acct)
		if err != nil {
			w.logger.Debug("mail_connect_attempt_failed", "error", err.Error())
			return err
		}
		mb = m
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	w.mb = mb
	return mb, nil
}

func (w *Watcher) closeSession() {
	if w.mb == nil {
		return
	}
	if err := w.mb.Close(); err != nil {
		w.logger.Debug("mail_session_close_error", "error", err.Error())
	}
	w.mb = nil
}
