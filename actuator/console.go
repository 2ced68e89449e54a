package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/money"
	"github.com/shopspring/decimal"
)

// Selectors are XPath expressions for the console's elements.
type Selectors struct {
	LoginUser        string
	LoginPassword    string
	LoginSubmit      string
	MenuToggle       string
	UsersSection     string
	NewPlayer        string
	NewPlayerName    string
	NewPlayerPass    string
	NewPlayerSubmit  string
	UserSearch       string
	UserSearchButton string
	NoUsersFound     string
	CreditButton     string
	DebitButton      string
	Amount           string
	AmountSubmit     string
	Balance          string
	ChangePassword   string
	NewPassword1     string
	NewPassword2     string
	PasswordSubmit   string
	UnlockButton     string
}

func DefaultSelectors() Selectors {
	return Selectors{
		LoginUser:        `//*[@id="user"]`,
		LoginPassword:    `//*[@id="passwd"]`,
		LoginSubmit:      `//*[@id="dologin"]`,
		MenuToggle:       `/html/body/header/nav/div[1]/a/i`,
		UsersSection:     `//*[@id="sidemenu_global_ul"]/li[2]/a`,
		NewPlayer:        `//*[@id="NewPlayerButton"]`,
		NewPlayerName:    `//*[@id="NewUserPlayerUsername"]`,
		NewPlayerPass:    `//*[@id="NewUserPlayerPassword"]`,
		NewPlayerSubmit:  `//*[@id="ModalNewUserPlayerSubmit"]`,
		UserSearch:       `//*[@id="UserSearch"]`,
		UserSearchButton: `//*[@id="UserSearchButton"]`,
		NoUsersFound:     `//div[contains(text(), "No users found")]`,
		CreditButton:     `//*[@id="UserSearchDiv"]/div/div[2]/button`,
		DebitButton:      `//*[@id="UserSearchDiv"]/div/div[3]/button`,
		Amount:           `//*[@id="ModalCreditAmount"]`,
		AmountSubmit:     `//*[@id="ModalCreditSubmit"]`,
		Balance:          `//*[@id="ModalCreditDestinationBalance"]`,
		ChangePassword:   `//*[@id="users"]/tbody/tr/td[4]/a[2]/i`,
		NewPassword1:     `//*[@id="ChangePasswordNew1"]`,
		NewPassword2:     `//*[@id="ChangePasswordNew2"]`,
		PasswordSubmit:   `//*[@id="ModalChangePasswordSubmit"]`,
		UnlockButton:     `//*[@id="users"]/tbody/tr/td[4]/a[4]/i`,
	}
}

type ConsoleConfig struct {
	BaseURL           string
	Username          string
	Password          string
	TemporaryPassword string
	Headless          bool
	// Settle is the pause after actions that trigger asynchronous page updates.
	Settle    time.Duration
	Selectors Selectors
	Logger    *slog.Logger
}

func (c ConsoleConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "console.base_url")
	}
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "console.username")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "console.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("console config missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Console automates the admin console in a headless Chrome session. Calls
// share one browser tab and are serialized.
type Console struct {
	cfg    ConsoleConfig
	sel    Selectors
	logger *slog.Logger

	mu            sync.Mutex
	browser       context.Context
	closeBrowser  context.CancelFunc
	authenticated bool
}

func NewConsole(parent context.Context, cfg ConsoleConfig) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TemporaryPassword == "" {
		cfg.TemporaryPassword = DefaultTemporaryPassword
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = DefaultSelectors()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)
	return &Console{
		cfg:    cfg,
		sel:    cfg.Selectors,
		logger: logutil.OrDiscard(cfg.Logger),
		browser: browser,
		closeBrowser: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}, nil
}

func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeBrowser != nil {
		c.closeBrowser()
		c.closeBrowser = nil
	}
}

// run executes actions in the browser tab, bounded by ctx.
func (c *Console) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.browser)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return ctx.Err()
	}
	return err
}

func (c *Console) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Console) authenticateLocked(ctx context.Context) error {
	err := c.run(ctx,
		chromedp.Navigate(c.cfg.BaseURL),
		chromedp.WaitVisible(c.sel.LoginUser, chromedp.BySearch),
		chromedp.SendKeys(c.sel.LoginUser, c.cfg.Username, chromedp.BySearch),
		chromedp.SendKeys(c.sel.LoginPassword, c.cfg.Password, chromedp.BySearch),
		chromedp.Click(c.sel.LoginSubmit, chromedp.BySearch),
		chromedp.WaitVisible(c.sel.MenuToggle, chromedp.BySearch),
	)
	if err != nil {
		c.authenticated = false
		return fmt.Errorf("console login: %w", err)
	}
	c.authenticated = true
	c.logger.Info("console_authenticated", "base_url", c.cfg.BaseURL)
	return nil
}

// session runs fn after ensuring a logged-in tab; a failed fn drops the
// session so the next call logs in again.
func (c *Console) session(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		if err := c.authenticateLocked(ctx); err != nil {
			return err
		}
	}
	err := fn()
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrValidation) {
		c.authenticated = false
	}
	return err
}

func (c *Console) CreateAccount(ctx context.Context, name string) (Credentials, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Credentials{}, fmt.Errorf("%w: empty username", ErrValidation)
	}
	err := c.session(ctx, func() error {
		return c.run(ctx,
			chromedp.Click(c.sel.NewPlayer, chromedp.BySearch),
			chromedp.WaitVisible(c.sel.NewPlayerName, chromedp.BySearch),
			chromedp.Clear(c.sel.NewPlayerName, chromedp.BySearch),
			chromedp.SendKeys(c.sel.NewPlayerName, name, chromedp.BySearch),
			chromedp.Clear(c.sel.NewPlayerPass, chromedp.BySearch),
			chromedp.SendKeys(c.sel.NewPlayerPass, c.cfg.TemporaryPassword, chromedp.BySearch),
			chromedp.Click(c.sel.NewPlayerSubmit, chromedp.BySearch),
			chromedp.Sleep(c.cfg.Settle),
		)
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("create %s: %w", name, err)
	}
	return Credentials{Username: name, Password: c.cfg.TemporaryPassword}, nil
}

// findUser types name into the quick search and fails with ErrNotFound when
// the console reports no match.
func (c *Console) findUser(ctx context.Context, name string) error {
	var none []string
	err := c.run(ctx,
		chromedp.Clear(c.sel.UserSearch, chromedp.BySearch),
		chromedp.SendKeys(c.sel.UserSearch, name, chromedp.BySearch),
		chromedp.Sleep(c.cfg.Settle/2),
		chromedp.Evaluate(fmt.Sprintf(
			`(function(){var r=document.evaluate(%q,document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null);return r.singleNodeValue?["none"]:[];})()`,
			c.sel.NoUsersFound), &none),
	)
	if err != nil {
		return err
	}
	if len(none) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (c *Console) Credit(ctx context.Context, name string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return c.session(ctx, func() error {
		if err := c.findUser(ctx, name); err != nil {
			return err
		}
		var entered string
		if err := c.run(ctx,
			chromedp.Click(c.sel.CreditButton, chromedp.BySearch),
			chromedp.WaitVisible(c.sel.Amount, chromedp.BySearch),
			chromedp.Clear(c.sel.Amount, chromedp.BySearch),
			chromedp.SendKeys(c.sel.Amount, amount.StringFixed(2), chromedp.BySearch),
			chromedp.Value(c.sel.Amount, &entered, chromedp.BySearch),
		); err != nil {
			return err
		}
		if _, err := enteredAmount(entered); err != nil {
			return err
		}
		return c.run(ctx,
			chromedp.Click(c.sel.AmountSubmit, chromedp.BySearch),
			chromedp.WaitNotVisible(c.sel.Amount, chromedp.BySearch),
		)
	})
}

// enteredAmount parses the amount field read back from the console. Only a
// positive value may be submitted.
func enteredAmount(text string) (decimal.Decimal, error) {
	v, ok := money.Parse(text)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unreadable amount %q", ErrValidation, text)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: console shows amount %s", ErrValidation, v.StringFixed(2))
	}
	return v, nil
}

func (c *Console) Debit(ctx context.Context, name string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return c.session(ctx, func() error {
		if err := c.findUser(ctx, name); err != nil {
			return err
		}
		var balanceText string
		if err := c.run(ctx,
			chromedp.Click(c.sel.DebitButton, chromedp.BySearch),
			chromedp.WaitVisible(c.sel.Balance, chromedp.BySearch),
			chromedp.Value(c.sel.Balance, &balanceText, chromedp.BySearch),
		); err != nil {
			return err
		}
		balance, ok := money.Parse(balanceText)
		if !ok {
			return fmt.Errorf("%w: unreadable balance %q", ErrValidation, balanceText)
		}
		if amount.GreaterThan(balance) {
			return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientFunds, balance.StringFixed(2), amount.StringFixed(2))
		}
		return c.run(ctx,
			chromedp.Clear(c.sel.Amount, chromedp.BySearch),
			chromedp.SendKeys(c.sel.Amount, amount.StringFixed(2), chromedp.BySearch),
			chromedp.Click("body", chromedp.ByQuery),
			chromedp.WaitEnabled(c.sel.AmountSubmit, chromedp.BySearch),
			chromedp.Click(c.sel.AmountSubmit, chromedp.BySearch),
			chromedp.WaitNotVisible(c.sel.Amount, chromedp.BySearch),
		)
	})
}

// openUser navigates to the users table filtered to name.
func (c *Console) openUser(ctx context.Context, name string) error {
	return c.run(ctx,
		chromedp.Click(c.sel.MenuToggle, chromedp.BySearch),
		chromedp.Click(c.sel.UsersSection, chromedp.BySearch),
		chromedp.WaitVisible(c.sel.UserSearch, chromedp.BySearch),
		chromedp.Clear(c.sel.UserSearch, chromedp.BySearch),
		chromedp.SendKeys(c.sel.UserSearch, name, chromedp.BySearch),
		chromedp.Click(c.sel.UserSearchButton, chromedp.BySearch),
		chromedp.Sleep(c.cfg.Settle),
	)
}

func (c *Console) ChangePassword(ctx context.Context, name, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: empty password", ErrValidation)
	}
	return c.session(ctx, func() error {
		if err := c.openUser(ctx, name); err != nil {
			return err
		}
		return c.run(ctx,
			chromedp.Click(c.sel.ChangePassword, chromedp.BySearch),
			chromedp.WaitVisible(c.sel.NewPassword1, chromedp.BySearch),
			chromedp.SendKeys(c.sel.NewPassword1, newPassword, chromedp.BySearch),
			chromedp.SendKeys(c.sel.NewPassword2, newPassword, chromedp.BySearch),
			chromedp.Click(c.sel.PasswordSubmit, chromedp.BySearch),
			chromedp.Sleep(c.cfg.Settle),
		)
	})
}

func (c *Console) Unlock(ctx context.Context, name string) error {
	return c.session(ctx, func() error {
		if err := c.openUser(ctx, name); err != nil {
			return err
		}
		return c.run(ctx,
			chromedp.Click(c.sel.UnlockButton, chromedp.BySearch),
			chromedp.Sleep(c.cfg.Settle),
		)
	})
}
