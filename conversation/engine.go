package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/actuator"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/metrics"
	"github.com/quailyquaily/chipdesk/ledger"
	"github.com/quailyquaily/chipdesk/supervisor"
)

type Inbound struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	Text        string
}

// ReplyFunc sends text back to the chat the inbound message came from.
type ReplyFunc func(ctx context.Context, text string) error

type SessionStore interface {
	LoadSession(ctx context.Context, userID int64) (ledger.Session, bool, error)
	SaveSession(ctx context.Context, s ledger.Session) error
}

type Registry interface {
	Create(ctx context.Context, a accounts.Account) (accounts.Account, error)
	Delete(ctx context.Context, alias string) (bool, error)
	List(ctx context.Context) ([]accounts.Account, error)
	RotateNext(ctx context.Context) (accounts.Account, error)
}

type WorkerLister interface {
	Workers() []supervisor.Status
}

type Options struct {
	Store    SessionStore
	Registry Registry
	Actuator actuator.Actuator
	Cache    SessionCache
	Workers  WorkerLister
	// OperatorID is the chat user allowed to run operator commands. Zero disables them.
	OperatorID        int64
	SupportURL        string
	TemporaryPassword string
	// Digits returns the suffix appended to generated usernames.
	Digits func() string
	Now    func() time.Time
	Logger *slog.Logger
}

type Engine struct {
	store      SessionStore
	registry   Registry
	console    actuator.Actuator
	cache      SessionCache
	workers    WorkerLister
	operatorID int64
	supportURL string
	tempPass   string
	digits     func() string
	now        func() time.Time
	logger     *slog.Logger

	maintenance atomic.Bool
}

func New(opts Options) *Engine {
	e := &Engine{
		store:      opts.Store,
		registry:   opts.Registry,
		console:    opts.Actuator,
		cache:      opts.Cache,
		workers:    opts.Workers,
		operatorID: opts.OperatorID,
		supportURL: opts.SupportURL,
		tempPass:   opts.TemporaryPassword,
		digits:     opts.Digits,
		now:        opts.Now,
		logger:     logutil.OrDiscard(opts.Logger),
	}
	if e.cache == nil {
		e.cache = NewMemoryCache()
	}
	if e.tempPass == "" {
		e.tempPass = actuator.DefaultTemporaryPassword
	}
	if e.digits == nil {
		e.digits = randomDigits
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func randomDigits() string {
	return fmt.Sprintf("%04d", rand.IntN(10000))
}

func (e *Engine) Maintenance() bool { return e.maintenance.Load() }

func (e *Engine) SetMaintenance(on bool) {
	if e.maintenance.Swap(on) != on {
		e.logger.Info("maintenance_switched", "on", on)
	}
}

func (e *Engine) IsOperator(userID int64) bool {
	return e.operatorID != 0 && userID == e.operatorID
}

// Handle processes one inbound message. Calls for the same user must not run
// concurrently. Failures are answered in chat; the returned error only
// reports a failed reply.
func (e *Engine) Handle(ctx context.Context, in Inbound, reply ReplyFunc) error {
	text := strings.TrimSpace(in.Text)
	if e.IsOperator(in.UserID) {
		metrics.ConversationTurns.WithLabelValues("operator").Inc()
		return reply(ctx, e.operatorCommand(ctx, text))
	}
	if e.Maintenance() {
		metrics.ConversationTurns.WithLabelValues("maintenance").Inc()
		return reply(ctx, textMaintenance)
	}

	sess, found, err := e.lookup(ctx, in.UserID)
	if err != nil {
		e.logger.Warn("session_lookup_failed", "user_id", in.UserID, "error", err.Error())
		metrics.ConversationTurns.WithLabelValues("unavailable").Inc()
		return reply(ctx, textRetryLater)
	}
	if !found {
		sess = ledger.Session{
			UserID:      in.UserID,
			DisplayName: in.DisplayName,
			State:       StateStart,
			CreatedAt:   e.now(),
		}
	}

	if IsMenuKeyword(text) {
		metrics.ConversationTurns.WithLabelValues("menu_keyword").Inc()
		sess.State = StateMenu
		e.save(ctx, sess)
		return reply(ctx, menuText(sess.AssignedAccountName))
	}
	if !found {
		metrics.ConversationTurns.WithLabelValues("first_contact").Inc()
		return e.promptName(ctx, sess, reply, textWelcome)
	}

	metrics.ConversationTurns.WithLabelValues(sess.State).Inc()
	switch {
	case sess.State == StateStart:
		return e.promptName(ctx, sess, reply, textWelcome)
	case sess.State == StateAwaitingName, sess.State == StateCreatingAccount:
		return e.chooseName(ctx, sess, text, reply)
	case sess.State == StateMenu:
		return e.menuOption(ctx, sess, text, reply)
	default:
		return reply(ctx, textNotUnderstood)
	}
}

// lookup checks the cache, then the ledger, caching what it finds.
func (e *Engine) lookup(ctx context.Context, userID int64) (ledger.Session, bool, error) {
	if s, ok := e.cache.Get(ctx, userID); ok {
		return s, true, nil
	}
	if e.store == nil {
		return ledger.Session{}, false, nil
	}
	s, found, err := e.store.LoadSession(ctx, userID)
	if err != nil || !found {
		return ledger.Session{}, false, err
	}
	e.cache.Set(ctx, s)
	return s, true, nil
}

// save updates the cache and persists the session when it is eligible.
func (e *Engine) save(ctx context.Context, s ledger.Session) {
	e.cache.Set(ctx, s)
	if e.store == nil {
		return
	}
	if err := e.store.SaveSession(ctx, s); err != nil && !errors.Is(err, ledger.ErrNotEligible) {
		e.logger.Warn("session_save_failed", "user_id", s.UserID, "state", s.State, "error", err.Error())
	}
}

func (e *Engine) promptName(ctx context.Context, sess ledger.Session, reply ReplyFunc, text string) error {
	sess.State = StateAwaitingName
	e.save(ctx, sess)
	return reply(ctx, text)
}

func (e *Engine) chooseName(ctx context.Context, sess ledger.Session, text string, reply ReplyFunc) error {
	if !ValidName(text) {
		return reply(ctx, textBadName)
	}
	username := CandidateUsername(text, e.digits())
	if username == "" {
		return reply(ctx, textBadName)
	}

	sess.State = StateCreatingAccount
	e.cache.Set(ctx, sess)
	if err := reply(ctx, textCreating); err != nil {
		e.logger.Warn("reply_failed", "user_id", sess.UserID, "error", err.Error())
	}

	creds, err := e.console.CreateAccount(ctx, username)
	if err != nil {
		e.logger.Warn("account_create_failed", "user_id", sess.UserID, "username", username, "error", err.Error())
		sess.State = StateAwaitingName
		e.save(ctx, sess)
		return reply(ctx, textRetryLater)
	}
	sess.DisplayName = text
	sess.AssignedAccountName = creds.Username
	sess.State = StateMenu
	e.save(ctx, sess)
	e.logger.Info("account_created", "user_id", sess.UserID, "username", creds.Username)
	return reply(ctx, credentialsText(creds.Username, creds.Password)+"\n\n"+menuText(creds.Username))
}

func (e *Engine) menuOption(ctx context.Context, sess ledger.Session, text string, reply ReplyFunc) error {
	option := Normalize(text)
	switch option {
	case "1", "2", "3", "4":
		if sess.AssignedAccountName == "" {
			return e.promptName(ctx, sess, reply, textNeedAccount)
		}
	case "5":
		return reply(ctx, supportText(e.supportURL))
	default:
		return reply(ctx, textNotUnderstood+"\n\n"+menuText(sess.AssignedAccountName))
	}

	name := sess.AssignedAccountName
	switch option {
	case "1":
		acct, err := e.registry.RotateNext(ctx)
		if errors.Is(err, accounts.ErrNoActiveAccounts) {
			return reply(ctx, textNoAccounts)
		}
		if err != nil {
			e.logger.Warn("deposit_account_lookup_failed", "user_id", sess.UserID, "error", err.Error())
			return reply(ctx, textRetryLater)
		}
		sess.State = StateConfirmAmount
		e.save(ctx, sess)
		return reply(ctx, depositText(acct))
	case "2":
		sess.State = StateAwaitingWithdrawAmount
		e.save(ctx, sess)
		return reply(ctx, textWithdrawAmount)
	case "3":
		if err := e.console.ChangePassword(ctx, name, e.tempPass); err != nil {
			return reply(ctx, e.consoleFailure(sess, "change_password", err))
		}
		return reply(ctx, passwordResetText(name, e.tempPass))
	default:
		if err := e.console.Unlock(ctx, name); err != nil {
			return reply(ctx, e.consoleFailure(sess, "unlock", err))
		}
		return reply(ctx, unlockedText(name))
	}
}

func (e *Engine) consoleFailure(sess ledger.Session, op string, err error) string {
	e.logger.Warn("console_call_failed", "op", op, "user_id", sess.UserID, "username", sess.AssignedAccountName, "error", err.Error())
	if errors.Is(err, actuator.ErrNotFound) {
		return textUserNotFound
	}
	return textRetryLater
}
