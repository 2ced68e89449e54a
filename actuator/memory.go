package actuator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type memoryUser struct {
	password string
	balance  decimal.Decimal
	locked   bool
}

// Memory is an in-process console used for local runs and tests.
type Memory struct {
	TemporaryPassword string

	mu            sync.Mutex
	authenticated bool
	users         map[string]*memoryUser
}

func NewMemory() *Memory {
	return &Memory{
		TemporaryPassword: DefaultTemporaryPassword,
		users:             map[string]*memoryUser{},
	}
}

func (m *Memory) Authenticate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.authenticated = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, name string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Credentials{}, fmt.Errorf("%w: empty username", ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[name]; exists {
		return Credentials{}, fmt.Errorf("%w: username %s taken", ErrValidation, name)
	}
	m.users[name] = &memoryUser{password: m.TemporaryPassword}
	return Credentials{Username: name, Password: m.TemporaryPassword}, nil
}

func (m *Memory) Credit(ctx context.Context, name string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return m.withUser(name, func(u *memoryUser) error {
		u.balance = u.balance.Add(amount.Round(2))
		return nil
	})
}

func (m *Memory) Debit(ctx context.Context, name string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return m.withUser(name, func(u *memoryUser) error {
		if amount.GreaterThan(u.balance) {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, u.balance.StringFixed(2), amount.StringFixed(2))
		}
		u.balance = u.balance.Sub(amount.Round(2))
		return nil
	})
}

func (m *Memory) ChangePassword(ctx context.Context, name, newPassword string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: empty password", ErrValidation)
	}
	return m.withUser(name, func(u *memoryUser) error {
		u.password = newPassword
		return nil
	})
}

func (m *Memory) Unlock(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.withUser(name, func(u *memoryUser) error {
		u.locked = false
		return nil
	})
}

// Lock marks a user locked, as the console does after failed logins.
func (m *Memory) Lock(name string) error {
	return m.withUser(name, func(u *memoryUser) error {
		u.locked = true
		return nil
	})
}

// Balance returns a user's balance and whether the user exists.
func (m *Memory) Balance(name string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[name]
	if !ok {
		return decimal.Zero, false
	}
	return u.balance, true
}

// User reports password and lock state for name.
func (m *Memory) User(name string) (password string, locked bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[name]
	if !ok {
		return "", false, false
	}
	return u.password, u.locked, true
}

func (m *Memory) withUser(name string, fn func(u *memoryUser) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.TrimSpace(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fn(u)
}
