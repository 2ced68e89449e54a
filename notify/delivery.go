package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
)

const DefaultInterval = 2 * time.Second

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type DeliveryOptions struct {
	ChatID   int64
	Interval time.Duration
	Logger   *slog.Logger
}

type Delivery struct {
	queue    *Queue
	sender   Sender
	chatID   int64
	interval time.Duration
	logger   *slog.Logger
}

func NewDelivery(q *Queue, sender Sender, opts DeliveryOptions) *Delivery {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Delivery{
		queue:    q,
		sender:   sender,
		chatID:   opts.ChatID,
		interval: opts.Interval,
		logger:   logutil.OrDiscard(opts.Logger),
	}
}

// Run is the single consumer. It drains on every interval tick and whenever
// the queue signals a new entry, until ctx ends.
func (d *Delivery) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := d.queue.Len(); n > 0 {
				d.logger.Info("notify_stop_pending", "pending", n)
			}
			return
		case <-ticker.C:
		case <-d.queue.Wake():
		}
		d.Flush(ctx)
	}
}

// Flush sends everything currently queued, once each.
func (d *Delivery) Flush(ctx context.Context) int {
	sent := 0
	for _, e := range d.queue.Drain() {
		if d.sender == nil || d.chatID == 0 {
			metrics.Notifications.WithLabelValues("dropped").Inc()
			d.logger.Warn("notify_no_destination", "id", e.ID, "text", e.Text)
			continue
		}
		if err := d.sender.SendText(ctx, d.chatID, e.Text); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			d.logger.Warn("notify_send_failed", "id", e.ID, "chat_id", d.chatID, "error", err.Error())
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		sent++
	}
	return sent
}
