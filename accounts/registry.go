// Package accounts manages the monetary accounts whose mailboxes are watched
// and rotates deposits across the active ones.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quailyquaily/chipdesk/db"
	"github.com/quailyquaily/chipdesk/db/models"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"gorm.io/gorm"
)

var (
	ErrDuplicateAlias   = errors.New("account alias already exists")
	ErrInvalid          = errors.New("invalid account")
	ErrNoActiveAccounts = errors.New("no active accounts")
)

type Account struct {
	ID            uint
	Alias         string `validate:"required,max=64"`
	BankAlias     string `validate:"required,max=128"`
	AccountNumber string `validate:"required,numeric,max=64"`
	MailAddress   string `validate:"required,email"`
	MailSecret    string `validate:"required"`
	OwnerName     string `validate:"required,max=255"`
	Active        bool
	CreatedAt     time.Time
}

// Counter supplies the running transaction count that drives rotation.
type Counter interface {
	CountTransactions(ctx context.Context) (int64, error)
}

type Options struct {
	Retry  retryutil.Policy
	Logger *slog.Logger
}

type Registry struct {
	db       *gorm.DB
	counter  Counter
	retry    retryutil.Policy
	logger   *slog.Logger
	validate *validator.Validate

	mu       sync.Mutex
	onChange []func()
}

func NewRegistry(gdb *gorm.DB, counter Counter, opts Options) *Registry {
	if opts.Retry.Attempts <= 0 {
		opts.Retry.Attempts = 1
	}
	return &Registry{
		db:       gdb,
		counter:  counter,
		retry:    opts.Retry,
		logger:   logutil.OrDiscard(opts.Logger),
		validate: validator.New(),
	}
}

// OnChange registers fn to run after every successful mutation.
func (r *Registry) OnChange(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

func (r *Registry) changed() {
	r.mu.Lock()
	hooks := append([]func(){}, r.onChange...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Normalize trims every field and strips spaces from the mail secret.
func Normalize(a Account) Account {
	a.Alias = strings.TrimSpace(a.Alias)
	a.BankAlias = strings.TrimSpace(a.BankAlias)
	a.AccountNumber = strings.TrimSpace(a.AccountNumber)
	a.MailAddress = strings.TrimSpace(a.MailAddress)
	a.MailSecret = strings.ReplaceAll(strings.TrimSpace(a.MailSecret), " ", "")
	a.OwnerName = strings.TrimSpace(a.OwnerName)
	return a
}

func (r *Registry) Validate(a Account) error {
	if strings.ContainsAny(a.Alias, " \t\r\n/") {
		return fmt.Errorf("%w: Alias", ErrInvalid)
	}
	if err := r.validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Create inserts a new active account. Duplicate aliases return ErrDuplicateAlias.
func (r *Registry) Create(ctx context.Context, a Account) (Account, error) {
	a = Normalize(a)
	a.Active = true
	if err := r.Validate(a); err != nil {
		return Account{}, err
	}
	row := toModel(a)
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return retryutil.Permanent(ErrDuplicateAlias)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	r.logger.Info("account_created", "alias", row.Alias, "bank_alias", row.BankAlias)
	r.changed()
	return fromModel(row), nil
}

// Delete removes the account with alias. It reports false when none matched.
func (r *Registry) Delete(ctx context.Context, alias string) (bool, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return false, nil
	}
	var affected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		res := r.db.WithContext(ctx).Where("alias = ?", alias).Delete(&models.Account{})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	r.logger.Info("account_deleted", "alias", alias)
	r.changed()
	return true, nil
}

// SetActive toggles the activation flag. It reports false for an unknown alias.
func (r *Registry) SetActive(ctx context.Context, alias string, active bool) (bool, error) {
	alias = strings.TrimSpace(alias)
	var affected int64
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		res := r.db.WithContext(ctx).Model(&models.Account{}).Where("alias = ?", alias).Update("active", active)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	if affected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("alias = ?", alias).Count(&n).Error; err != nil || n == 0 {
			return false, err
		}
		return true, nil
	}
	r.logger.Info("account_activation_changed", "alias", alias, "active", active)
	r.changed()
	return true, nil
}

// List returns every account ordered by id.
func (r *Registry) List(ctx context.Context) ([]Account, error) {
	return r.list(ctx, false)
}

// Active returns active accounts ordered by id, the rotation order.
func (r *Registry) Active(ctx context.Context) ([]Account, error) {
	return r.list(ctx, true)
}

func (r *Registry) list(ctx context.Context, onlyActive bool) ([]Account, error) {
	var rows []models.Account
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		q := r.db.WithContext(ctx).Order("id ASC")
		if onlyActive {
			q = q.Where("active = ?", true)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

// RotateNext picks the deposit account: the active account at index
// (transaction count mod number of active accounts).
func (r *Registry) RotateNext(ctx context.Context) (Account, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return Account{}, err
	}
	if len(active) == 0 {
		return Account{}, ErrNoActiveAccounts
	}
	if r.counter == nil {
		return active[0], nil
	}
	n, err := r.counter.CountTransactions(ctx)
	if err != nil {
		return Account{}, err
	}
	return Pick(active, n), nil
}

// Pick returns active[count mod len(active)]. active must be non-empty.
func Pick(active []Account, count int64) Account {
	if count < 0 {
		count = -count
	}
	return active[count%int64(len(active))]
}

func toModel(a Account) models.Account {
	return models.Account{
		ID:            a.ID,
		Alias:         a.Alias,
		BankAlias:     a.BankAlias,
		AccountNumber: a.AccountNumber,
		MailAddress:   a.MailAddress,
		MailSecret:    a.MailSecret,
		OwnerName:     a.OwnerName,
		Active:        a.Active,
		CreatedAt:     a.CreatedAt,
	}
}

func fromModel(m models.Account) Account {
	return Account{
		ID:            m.ID,
		Alias:         m.Alias,
		BankAlias:     m.BankAlias,
		AccountNumber: m.AccountNumber,
		MailAddress:   m.MailAddress,
		MailSecret:    m.MailSecret,
		OwnerName:     m.OwnerName,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
	}
}
