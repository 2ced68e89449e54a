package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/quailyquaily/chipdesk/internal/logutil"
	"github.com/quailyquaily/chipdesk/ledger"
	goredis "github.com/redis/go-redis/v9"
)

// SessionCache holds live sessions in front of the ledger. Cache failures
// are never fatal: Get reports a miss and Set logs.
type SessionCache interface {
	Get(ctx context.Context, userID int64) (ledger.Session, bool)
	Set(ctx context.Context, s ledger.Session)
}

type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[int64]ledger.Session
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: map[int64]ledger.Session{}}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (ledger.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[userID]
	return s, ok
}

func (c *MemoryCache) Set(_ context.Context, s ledger.Session) {
	c.mu.Lock()
	c.sessions[s.UserID] = s
	c.mu.Unlock()
}

// RedisCache stores sessions as JSON under prefix+userID with a TTL.
type RedisCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *goredis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if prefix == "" {
		prefix = "chipdesk:session:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logutil.OrDiscard(logger)}
}

func (c *RedisCache) key(userID int64) string {
	return c.prefix + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) Get(ctx context.Context, userID int64) (ledger.Session, bool) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("session_cache_read_failed", "user_id", userID, "error", err.Error())
		}
		return ledger.Session{}, false
	}
	var s ledger.Session
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Warn("session_cache_decode_failed", "user_id", userID, "error", err.Error())
		return ledger.Session{}, false
	}
	return s, true
}

func (c *RedisCache) Set(ctx context.Context, s ledger.Session) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Warn("session_cache_encode_failed", "user_id", s.UserID, "error", err.Error())
		return
	}
	if err := c.client.Set(ctx, c.key(s.UserID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("session_cache_write_failed", "user_id", s.UserID, "error", err.Error())
	}
}
