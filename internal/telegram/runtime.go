// Package telegram connects the conversation engine to the Telegram Bot API
// through long polling, and delivers outbound notices.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/chipdesk/conversation"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/quailyquaily/chipdesk/internal/worker"
)

// Handler processes one inbound chat message.
type Handler interface {
	Handle(ctx context.Context, in conversation.Inbound, reply conversation.ReplyFunc) error
}

type Options struct {
	Token       string
	BaseURL     string
	HTTPClient  *http.Client
	PollTimeout time.Duration
	TurnTimeout time.Duration
	// ChatQueue is the per-chat backlog; messages beyond it are dropped.
	ChatQueue int
	// ChatIdleTimeout retires a chat's worker after this long without messages.
	ChatIdleTimeout time.Duration
	Logger          *slog.Logger
}

type Runtime struct {
	api         *api
	handler     Handler
	pollTimeout time.Duration
	turnTimeout time.Duration
	chatQueue   int
	chatIdle    time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	workers map[int64]chan job
	group   sync.WaitGroup
}

type job struct {
	in conversation.Inbound
}

func New(handler Handler, opts Options) (*Runtime, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("missing telegram.bot_token")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 3 * time.Minute
	}
	if opts.ChatQueue <= 0 {
		opts.ChatQueue = 16
	}
	if opts.ChatIdleTimeout <= 0 {
		opts.ChatIdleTimeout = 10 * time.Minute
	}
	return &Runtime{
		api:         newAPI(opts.HTTPClient, opts.BaseURL, opts.Token),
		handler:     handler,
		pollTimeout: opts.PollTimeout,
		turnTimeout: opts.TurnTimeout,
		chatQueue:   opts.ChatQueue,
		chatIdle:    opts.ChatIdleTimeout,
		logger:      logutil.OrDiscard(opts.Logger),
		workers:     map[int64]chan job{},
	}, nil
}

// SendText delivers text to chatID.
func (r *Runtime) SendText(ctx context.Context, chatID int64, text string) error {
	return r.api.sendText(ctx, chatID, text)
}

// Run long-polls for updates until ctx ends, then waits for chat workers.
func (r *Runtime) Run(ctx context.Context) error {
	if r.handler == nil {
		return fmt.Errorf("telegram runtime has no handler")
	}
	me, err := r.api.getMe(ctx)
	if err != nil {
		r.logger.Warn("telegram_get_me_failed", "error", err.Error())
	} else {
		r.logger.Info("telegram_start", "bot", me.Username, "bot_id", me.ID)
	}

	defer r.group.Wait()
	var offset int64
	for {
		updates, next, err := r.api.getUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				r.logger.Info("telegram_stop", "reason", "context_canceled")
				return nil
			}
			if isPollTimeout(err) {
				r.logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				r.logger.Warn("telegram_get_updates_error", "error", err.Error())
			}
			if err := retryutil.Sleep(ctx, time.Second); err != nil {
				return nil
			}
			continue
		}
		offset = next
		for _, u := range updates {
			r.dispatch(ctx, u)
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, u update) {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}
	if t := strings.ToLower(msg.Chat.Type); t != "" && t != "private" {
		r.logger.Debug("telegram_skip_non_private", "chat_id", msg.Chat.ID, "type", t)
		return
	}
	in := conversation.Inbound{
		UserID:      msg.From.ID,
		ChatID:      msg.Chat.ID,
		DisplayName: displayName(msg.From),
		Text:        text,
	}
	if !r.enqueue(ctx, job{in: in}) {
		r.logger.Warn("telegram_chat_backlog_full", "chat_id", in.ChatID, "user_id", in.UserID)
	}
}

// enqueue hands the job to the chat's worker, starting it on first use. It
// never blocks; a full backlog drops the message. Each chat has one worker so
// its turns run in order, and chats never wait on each other.
func (r *Runtime) enqueue(ctx context.Context, j job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	chatID := j.in.ChatID
	jobs, ok := r.workers[chatID]
	if !ok {
		jobs = make(chan job, r.chatQueue)
		r.workers[chatID] = jobs
		g := worker.Start(worker.StartOptions[job]{
			Ctx:         ctx,
			Workers:     1,
			Jobs:        jobs,
			Handle:      r.handle,
			IdleTimeout: r.chatIdle,
			OnIdle:      func() bool { return r.retire(chatID, jobs) },
		})
		r.group.Add(1)
		go func() {
			defer r.group.Done()
			g.Wait()
		}()
	}
	return worker.TryEnqueue(jobs, j)
}

// retire drops the chat's worker if nothing is queued. It holds the same lock
// as enqueue, so a message is never left on a channel nobody reads.
func (r *Runtime) retire(chatID int64, jobs chan job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(jobs) > 0 {
		return false
	}
	if r.workers[chatID] == jobs {
		delete(r.workers, chatID)
	}
	r.logger.Debug("telegram_chat_worker_retired", "chat_id", chatID)
	return true
}

func (r *Runtime) activeChats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *Runtime) handle(ctx context.Context, j job) {
	turnCtx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()
	chatID := j.in.ChatID
	err := r.handler.Handle(turnCtx, j.in, func(ctx context.Context, text string) error {
		return r.api.sendText(ctx, chatID, text)
	})
	if err != nil {
		r.logger.Warn("telegram_turn_failed", "chat_id", chatID, "user_id", j.in.UserID, "error", err.Error())
	}
}
