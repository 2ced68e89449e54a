package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
	fail  func(text string) error
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, chatID)
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestIncomeAlert(t *testing.T) {
	got := IncomeAlert("main", decimal.NewFromInt(7000))
	if got != "Income detected on main: $7,000.00" {
		t.Fatalf("IncomeAlert() = %q", got)
	}
}

func TestFlushDeliversInOrderAndDropsFailures(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{fail: func(text string) error {
		if text == "b" {
			return errors.New("telegram http 500")
		}
		return nil
	}}
	d := NewDelivery(q, sender, DeliveryOptions{ChatID: -100})
	for _, s := range []string{"a", "b", "c"} {
		q.Enqueue(s)
	}
	if n := d.Flush(context.Background()); n != 2 {
		t.Fatalf("Flush() sent = %d, want 2", n)
	}
	got := sender.texts()
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("sent = %v, want [a c]", got)
	}
	if q.Len() != 0 {
		t.Fatalf("queue length = %d, failed entries must not be retried", q.Len())
	}
	if d.Flush(context.Background()) != 0 {
		t.Fatalf("second Flush() should send nothing")
	}
}

func TestRunWakesOnEnqueue(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{}
	d := NewDelivery(q, sender, DeliveryOptions{ChatID: 1, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	q.Enqueue("Income detected on main: $10.00")
	deadline := time.After(2 * time.Second)
	for len(sender.texts()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("Run() did not deliver after enqueue")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
