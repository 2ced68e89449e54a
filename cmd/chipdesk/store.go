package main

import (
	"log/slog"

	"github.com/quailyquaily/chipdesk/accounts"
	"github.com/quailyquaily/chipdesk/db"
	"github.com/quailyquaily/chipdesk/internal/retryutil"
	"github.com/quailyquaily/chipdesk/ledger"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

func dbConfigFromViper() db.Config {
	cfg := db.DefaultConfig()
	cfg.Driver = viper.GetString("db.driver")
	cfg.DSN = viper.GetString("db.dsn")
	cfg.Pool.MaxOpenConns = viper.GetInt("db.pool.max_open_conns")
	cfg.Pool.MaxIdleConns = viper.GetInt("db.pool.max_idle_conns")
	cfg.Pool.ConnMaxLifetime = viper.GetDuration("db.pool.conn_max_lifetime")
	cfg.SQLite.BusyTimeoutMs = viper.GetInt("db.sqlite.busy_timeout_ms")
	cfg.SQLite.WAL = viper.GetBool("db.sqlite.wal")
	cfg.SQLite.ForeignKeys = viper.GetBool("db.sqlite.foreign_keys")
	cfg.AutoMigrate = viper.GetBool("db.automigrate")
	return cfg
}

func ledgerRetryFromViper() retryutil.Policy {
	return retryutil.Policy{
		Attempts: viper.GetInt("ledger.retry.attempts"),
		Delay:    viper.GetDuration("ledger.retry.delay"),
		Cooldown: viper.GetDuration("ledger.retry.cooldown"),
	}
}

type store struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	registry *accounts.Registry
}

func openStore(logger *slog.Logger) (*store, error) {
	gdb, err := db.Open(dbConfigFromViper())
	if err != nil {
		return nil, err
	}
	retry := ledgerRetryFromViper()
	l := ledger.New(gdb, ledger.Options{Retry: retry, Logger: logger})
	return &store{
		db:       gdb,
		ledger:   l,
		registry: accounts.NewRegistry(gdb, l, accounts.Options{Retry: retry, Logger: logger}),
	}, nil
}

func (s *store) Close() {
	_ = db.Close(s.db)
}
