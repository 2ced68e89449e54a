package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Store
	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "")
	viper.SetDefault("db.pool.max_open_conns", 1)
	viper.SetDefault("db.pool.max_idle_conns", 1)
	viper.SetDefault("db.pool.conn_max_lifetime", 0*time.Second)
	viper.SetDefault("db.sqlite.busy_timeout_ms", 5000)
	viper.SetDefault("db.sqlite.wal", true)
	viper.SetDefault("db.sqlite.foreign_keys", true)
	viper.SetDefault("db.automigrate", true)

	// Ledger
	viper.SetDefault("ledger.retention", 10*time.Minute)
	viper.SetDefault("ledger.sweep_interval", 5*time.Minute)
	viper.SetDefault("ledger.retry.attempts", 5)
	viper.SetDefault("ledger.retry.delay", 2*time.Second)
	viper.SetDefault("ledger.retry.cooldown", 30*time.Second)

	// Mailbox watchers
	viper.SetDefault("mail.imap_addr", "imap.gmail.com:993")
	viper.SetDefault("mail.folder", "INBOX")
	viper.SetDefault("mail.timeout", 30*time.Second)
	viper.SetDefault("mail.insecure_skip_verify", false)
	viper.SetDefault("mail.poll_interval", 15*time.Second)
	viper.SetDefault("mail.batch", 20)
	viper.SetDefault("mail.retry.attempts", 5)
	viper.SetDefault("mail.retry.delay", 4*time.Second)
	viper.SetDefault("mail.retry.cooldown", 60*time.Second)
	viper.SetDefault("supervisor.grace", 10*time.Second)

	// Desk notifications
	viper.SetDefault("notify.chat_id", int64(0))
	viper.SetDefault("notify.interval", 2*time.Second)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.turn_timeout", 3*time.Minute)
	viper.SetDefault("telegram.chat_queue", 16)
	viper.SetDefault("telegram.chat_idle_timeout", 10*time.Minute)
	viper.SetDefault("operator.user_id", int64(0))
	viper.SetDefault("support.url", "")

	// Chip console
	viper.SetDefault("actuator.driver", "console")
	viper.SetDefault("actuator.workers", 1)
	viper.SetDefault("actuator.queue_size", 32)
	viper.SetDefault("actuator.timeout", 90*time.Second)
	viper.SetDefault("console.base_url", "https://admin.clubuno.net")
	viper.SetDefault("console.username", "")
	viper.SetDefault("console.password", "")
	viper.SetDefault("console.temporary_password", "abc123")
	viper.SetDefault("console.headless", true)
	viper.SetDefault("console.settle", 2*time.Second)

	// Redis (optional)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.stream", "chipdesk.ledger")
	viper.SetDefault("redis.session_prefix", "chipdesk:session:")
	viper.SetDefault("redis.session_ttl", 24*time.Hour)

	// HTTP
	viper.SetDefault("http.addr", "127.0.0.1:8790")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
