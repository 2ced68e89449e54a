// Package actuator drives the external chip console: account creation,
// balance mutation and password maintenance for end users.
package actuator

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("console user not found")
	ErrTimeout           = errors.New("console operation timed out")
	ErrValidation        = errors.New("console rejected the request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("console unavailable")
)

// DefaultTemporaryPassword is issued to new users and on password resets.
const DefaultTemporaryPassword = "abc123"

type Credentials struct {
	Username string
	Password string
}

type Actuator interface {
	Authenticate(ctx context.Context) error
	CreateAccount(ctx context.Context, name string) (Credentials, error)
	Credit(ctx context.Context, name string, amount decimal.Decimal) error
	Debit(ctx context.Context, name string, amount decimal.Decimal) error
	ChangePassword(ctx context.Context, name, newPassword string) error
	Unlock(ctx context.Context, name string) error
}
