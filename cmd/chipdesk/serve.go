package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/actuator"
	"github.com/quailyquaily/chipdesk/conversation"
	"github.com/quailyquaily/chipdesk/internal/events"
	"github.com/quailyquaily/chipdesk/internal/httpapi"
	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/quailyquaily/chipdesk/internal/telegram"
	"github.com/quailyquaily/chipdesk/mailwatch"
	"github.com/quailyquaily/chipdesk/notify"
	"github.com/quailyquaily/chipdesk/supervisor"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run mailbox watchers, the chat bot and the HTTP status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := openStore(logger)
			if err != nil {
				return err
			}
			defer s.Close()

			queue := notify.NewQueue()

			var (
				publisher mailwatch.Publisher
				cache     conversation.SessionCache
			)
			if addr := strings.TrimSpace(viper.GetString("redis.addr")); addr != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     addr,
					Password: viper.GetString("redis.password"),
					DB:       viper.GetInt("redis.db"),
				})
				defer func() { _ = rdb.Close() }()
				if err := rdb.Ping(ctx).Err(); err != nil {
					logger.Warn("redis_ping_failed", "addr", addr, "error", err.Error())
				}
				publisher = events.NewPublisher(rdb, viper.GetString("redis.stream"))
				cache = conversation.NewRedisCache(rdb, viper.GetString("redis.session_prefix"), viper.GetDuration("redis.session_ttl"), logger)
				logger.Info("redis_enabled", "addr", addr)
			}

			sup := newSupervisor(cmd, s, queue, publisher, logger)
			s.registry.OnChange(func() {
				if err := sup.Reconcile(ctx); err != nil {
					logger.Warn("supervisor_reconcile_failed", "error", err.Error())
				}
			})
			if err := sup.Start(ctx); err != nil {
				go func() { _ = sup.RetryStart(ctx) }()
			}
			defer sup.Stop()

			go s.ledger.RunSweeper(ctx, viper.GetDuration("ledger.sweep_interval"), viper.GetDuration("ledger.retention"))

			backend, closeBackend, err := actuatorFromViper(ctx, logger)
			if err != nil {
				return err
			}
			defer closeBackend()
			pool := actuator.NewPool(ctx, backend, actuator.PoolOptions{
				Workers:   viper.GetInt("actuator.workers"),
				QueueSize: viper.GetInt("actuator.queue_size"),
				Timeout:   viper.GetDuration("actuator.timeout"),
				Logger:    logger,
			})
			retryutil.AsyncRetry(ctx, logger, "console_login", time.Second, viper.GetDuration("actuator.timeout"), pool.Authenticate)

			engine := conversation.New(conversation.Options{
				Store:             s.ledger,
				Registry:          s.registry,
				Actuator:          pool,
				Cache:             cache,
				Workers:           sup,
				OperatorID:        flagOrViperInt64(cmd, "operator-user-id", "operator.user_id"),
				SupportURL:        viper.GetString("support.url"),
				TemporaryPassword: viper.GetString("console.temporary_password"),
				Logger:            logger,
			})

			rt, err := telegram.New(engine, telegram.Options{
				Token:           flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"),
				BaseURL:         viper.GetString("telegram.base_url"),
				PollTimeout:     viper.GetDuration("telegram.poll_timeout"),
				TurnTimeout:     viper.GetDuration("telegram.turn_timeout"),
				ChatQueue:       viper.GetInt("telegram.chat_queue"),
				ChatIdleTimeout: viper.GetDuration("telegram.chat_idle_timeout"),
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			deskChat := flagOrViperInt64(cmd, "notify-chat-id", "notify.chat_id")
			if deskChat == 0 {
				logger.Warn("notify_chat_missing", "hint", "set notify.chat_id to receive income alerts")
			}
			delivery := notify.NewDelivery(queue, rt, notify.DeliveryOptions{
				ChatID:   deskChat,
				Interval: viper.GetDuration("notify.interval"),
				Logger:   logger,
			})
			go delivery.Run(ctx)

			srv := &http.Server{
				Addr: flagOrViperString(cmd, "http-addr", "http.addr"),
				Handler: httpapi.NewRouter(httpapi.Deps{
					Store:       s.ledger,
					Maintenance: engine.Maintenance,
					Workers:     sup.Workers,
					QueueLength: queue.Len,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("http_start", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("http_stopped", "error", err.Error())
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			err = rt.Run(ctx)
			logger.Info("serve_stop")
			return err
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().Int64("operator-user-id", 0, "Telegram user id allowed to run operator commands.")
	cmd.Flags().Int64("notify-chat-id", 0, "Chat that receives income alerts.")
	cmd.Flags().String("http-addr", "127.0.0.1:8790", "Listen address for /health, /status and /metrics.")
	cmd.Flags().Duration("mail-poll-interval", 15*time.Second, "Delay between mailbox polls.")
	cmd.Flags().Bool("mail-insecure-skip-verify", false, "Skip IMAP TLS verification (test servers only).")

	return cmd
}

func newSupervisor(cmd *cobra.Command, s *store, alerts mailwatch.Alerter, publisher mailwatch.Publisher, logger *slog.Logger) *supervisor.Supervisor {
	dial := mailwatch.IMAPDialer(mailwatch.IMAPConfig{
		Addr:     viper.GetString("mail.imap_addr"),
		Folder:   viper.GetString("mail.folder"),
		Timeout:  viper.GetDuration("mail.timeout"),
		Insecure: flagOrViperBool(cmd, "mail-insecure-skip-verify", "mail.insecure_skip_verify"),
	})
	cfg := mailwatch.Config{
		PollInterval: flagOrViperDuration(cmd, "mail-poll-interval", "mail.poll_interval"),
		Batch:        viper.GetInt("mail.batch"),
		Connect: retryutil.Policy{
			Attempts: viper.GetInt("mail.retry.attempts"),
			Delay:    viper.GetDuration("mail.retry.delay"),
			Cooldown: viper.GetDuration("mail.retry.cooldown"),
		},
	}
	factory := func(acct accounts.Account) supervisor.Worker {
		return mailwatch.New(acct, mailwatch.Options{
			Dial:      dial,
			Recorder:  s.ledger,
			Alerts:    alerts,
			Publisher: publisher,
			Config:    cfg,
			Logger:    logger,
		})
	}
	return supervisor.New(s.registry, factory, supervisor.Options{
		Grace:         viper.GetDuration("supervisor.grace"),
		RetryInterval: viper.GetDuration("ledger.retry.cooldown"),
		Logger:        logger,
	})
}

// actuatorFromViper builds the console backend named by actuator.driver.
func actuatorFromViper(ctx context.Context, logger *slog.Logger) (actuator.Actuator, func(), error) {
	switch driver := strings.ToLower(strings.TrimSpace(viper.GetString("actuator.driver"))); driver {
	case "memory":
		logger.Warn("actuator_memory_driver", "hint", "accounts are not created on the real console")
		m := actuator.NewMemory()
		m.TemporaryPassword = viper.GetString("console.temporary_password")
		return m, func() {}, nil
	case "", "console":
		c, err := actuator.NewConsole(ctx, actuator.ConsoleConfig{
			BaseURL:           viper.GetString("console.base_url"),
			Username:          viper.GetString("console.username"),
			Password:          viper.GetString("console.password"),
			TemporaryPassword: viper.GetString("console.temporary_password"),
			Headless:          viper.GetBool("console.headless"),
			Settle:            viper.GetDuration("console.settle"),
			Logger:            logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown actuator.driver: %s", driver)
	}
}
