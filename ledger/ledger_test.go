package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quailyquaily/chipdesk/db"
	"github.com/quailyquaily/chipdesk/db/models"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "ledger.sqlite")
	gdb, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func testRetry() retryutil.Policy {
	return retryutil.Policy{
		Attempts: 2,
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}
}

func TestInsertIfAbsentRecordsOncePerSourceMessage(t *testing.T) {
	l := New(openTestDB(t), Options{Retry: testRetry()})
	ctx := context.Background()
	tx := Transaction{
		Amount:          decimal.RequireFromString("7000"),
		SourceMessageID: "<m1@bank.example>",
		AccountAlias:    "main",
	}

	inserted, err := l.InsertIfAbsent(ctx, tx)
	if err != nil {
		t.Fatalf("InsertIfAbsent() error = %v", err)
	}
	if !inserted {
		t.Fatalf("InsertIfAbsent() first call = false, want true")
	}
	inserted, err = l.InsertIfAbsent(ctx, tx)
	if err != nil {
		t.Fatalf("InsertIfAbsent() second error = %v", err)
	}
	if inserted {
		t.Fatalf("InsertIfAbsent() second call = true, want false")
	}

	n, err := l.CountTransactions(ctx)
	if err != nil {
		t.Fatalf("CountTransactions() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("CountTransactions() = %d, want 1", n)
	}
}

func TestInsertIfAbsentRejectsMissingSource(t *testing.T) {
	l := New(openTestDB(t), Options{Retry: testRetry()})
	_, err := l.InsertIfAbsent(context.Background(), Transaction{Amount: decimal.NewFromInt(1), SourceMessageID: "  "})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("InsertIfAbsent() error = %v, want ErrMissingSource", err)
	}
}

func TestSweepExpiredHonorsRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := New(openTestDB(t), Options{Retry: testRetry(), Now: func() time.Time { return now }})
	ctx := context.Background()

	for _, tc := range []struct {
		id  string
		age time.Duration
	}{
		{id: "<old@bank>", age: 11 * time.Minute},
		{id: "<fresh@bank>", age: 9 * time.Minute},
	} {
		if _, err := l.InsertIfAbsent(ctx, Transaction{
			Amount:          decimal.NewFromInt(100),
			SourceMessageID: tc.id,
			AccountAlias:    "main",
			RecordedAt:      now.Add(-tc.age),
		}); err != nil {
			t.Fatalf("InsertIfAbsent(%s) error = %v", tc.id, err)
		}
	}

	deleted, err := l.SweepExpired(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("SweepExpired() deleted = %d, want 1", deleted)
	}
	var left []models.Transaction
	if err := l.db.Find(&left).Error; err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(left) != 1 || left[0].SourceMessageID != "<fresh@bank>" {
		t.Fatalf("remaining = %+v, want only the fresh transaction", left)
	}
}

func TestLedgerUnavailableWhenStoreClosed(t *testing.T) {
	gdb := openTestDB(t)
	cooled := 0
	l := New(gdb, Options{Retry: retryutil.Policy{
		Attempts: 3,
		Delay:    2 * time.Second,
		Cooldown: 30 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			if d == 30*time.Second {
				cooled++
			}
			return nil
		},
	}})
	if err := db.Close(gdb); err != nil {
		t.Fatalf("db.Close() error = %v", err)
	}

	_, err := l.InsertIfAbsent(context.Background(), Transaction{
		Amount:          decimal.NewFromInt(5),
		SourceMessageID: "<x@bank>",
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("InsertIfAbsent() error = %v, want ErrUnavailable", err)
	}
	if cooled != 1 {
		t.Fatalf("cooldown applied %d times, want 1", cooled)
	}
}
