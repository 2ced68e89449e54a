package actuator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var (
	_ Actuator = (*Memory)(nil)
	_ Actuator = (*Pool)(nil)
	_ Actuator = (*Console)(nil)
)

func TestMemoryContract(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	creds, err := m.CreateAccount(ctx, "juanperez1234")
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if creds.Password != DefaultTemporaryPassword {
		t.Fatalf("CreateAccount() password = %q", creds.Password)
	}
	if _, err := m.CreateAccount(ctx, "juanperez1234"); !errors.Is(err, ErrValidation) {
		t.Fatalf("CreateAccount() duplicate error = %v, want ErrValidation", err)
	}

	if err := m.Credit(ctx, "juanperez1234", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if err := m.Credit(ctx, "juanperez1234", decimal.Zero); !errors.Is(err, ErrValidation) {
		t.Fatalf("Credit(0) error = %v, want ErrValidation", err)
	}
	if err := m.Debit(ctx, "juanperez1234", decimal.NewFromInt(600)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Debit(600) error = %v, want ErrInsufficientFunds", err)
	}
	if err := m.Debit(ctx, "juanperez1234", decimal.RequireFromString("120.50")); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if bal, _ := m.Balance("juanperez1234"); bal.StringFixed(2) != "379.50" {
		t.Fatalf("Balance() = %s, want 379.50", bal.StringFixed(2))
	}
	if err := m.Credit(ctx, "ghost", decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Credit(ghost) error = %v, want ErrNotFound", err)
	}

	if err := m.Lock("juanperez1234"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := m.Unlock(ctx, "juanperez1234"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := m.ChangePassword(ctx, "juanperez1234", "nueva"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if pw, locked, _ := m.User("juanperez1234"); pw != "nueva" || locked {
		t.Fatalf("User() = %q, locked %v", pw, locked)
	}
}

type slowActuator struct {
	*Memory
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
}

func (s *slowActuator) Unlock(ctx context.Context, name string) error {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	if n > s.peak.Load() {
		s.peak.Store(n)
	}
	select {
	case <-time.After(s.delay):
		return s.Memory.Unlock(ctx, name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPoolTimesOutSlowCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := &slowActuator{Memory: NewMemory(), delay: time.Second}
	p := NewPool(ctx, slow, PoolOptions{Timeout: 20 * time.Millisecond})

	if _, err := p.CreateAccount(context.Background(), "ana1111"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	err := p.Unlock(context.Background(), "ana1111")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Unlock() error = %v, want ErrTimeout", err)
	}
}

func TestPoolSerializesWithSingleWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slow := &slowActuator{Memory: NewMemory(), delay: 5 * time.Millisecond}
	p := NewPool(ctx, slow, PoolOptions{Workers: 1, Timeout: time.Second})
	if _, err := p.CreateAccount(ctx, "ana1111"); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() { errs <- p.Unlock(context.Background(), "ana1111") }()
	}
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
	}
	if got := slow.peak.Load(); got != 1 {
		t.Fatalf("peak concurrency = %d, want 1", got)
	}
}

func TestPoolUnavailableAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(ctx, NewMemory(), PoolOptions{QueueSize: 1})
	cancel()
	p.Wait()
	err := p.Authenticate(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Authenticate() after shutdown error = %v, want ErrUnavailable", err)
	}
}

func TestConsoleConfigValidate(t *testing.T) {
	if err := (ConsoleConfig{}).Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty config")
	}
	ok := ConsoleConfig{BaseURL: "https://console.example", Username: "admin", Password: "pw"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestEnteredAmountRejectsNonPositiveReadBack(t *testing.T) {
	cases := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{text: "250,00", want: "250.00"},
		{text: "$ 1.000,50", want: "1000.50"},
		{text: "0,00", wantErr: true},
		{text: "0", wantErr: true},
		{text: "", wantErr: true},
		{text: "abc", wantErr: true},
	}
	for _, tc := range cases {
		got, err := enteredAmount(tc.text)
		if tc.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("enteredAmount(%q) error = %v, want ErrValidation", tc.text, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("enteredAmount(%q) error = %v", tc.text, err)
		}
		if got.StringFixed(2) != tc.want {
			t.Fatalf("enteredAmount(%q) = %s, want %s", tc.text, got.StringFixed(2), tc.want)
		}
	}
}
