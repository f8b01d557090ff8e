package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	autherror "github.com/securesteps/auth-service/internal/errors"
)

// ErrUnavailable wraps Redis failures so callers can decide to fail open.
var ErrUnavailable = errors.New("rate limit backend unavailable")

type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// LoginLimiter counts failed logins per identifier+IP in Redis. The first
// failure opens a window; the counter expires with it.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config LoginConfig
}

func NewLoginLimiter(client redis.UniversalClient, cfg LoginConfig) *LoginLimiter {
	return &LoginLimiter{redis: client, config: cfg}
}

func loginKey(identifier, ip string) string {
	return "rl:login:" + strings.ToLower(strings.TrimSpace(identifier)) + ":" + ip
}

// Check returns ErrTooManyLoginAttempts once the budget for the window is spent.
func (l *LoginLimiter) Check(ctx context.Context, identifier, ip string) error {
	if l.config.MaxAttempts <= 0 {
		return nil
	}
	count, err := l.redis.Get(ctx, loginKey(identifier, ip)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= l.config.MaxAttempts {
		return autherror.ErrTooManyLoginAttempts
	}
	return nil
}

// RecordFailure counts one failed login. The key is seeded with its TTL in
// the same MULTI as the increment, so a counter never outlives its window.
func (l *LoginLimiter) RecordFailure(ctx context.Context, identifier, ip string) error {
	if l.config.MaxAttempts <= 0 {
		return nil
	}
	key := loginKey(identifier, ip)

	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.config.Window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if incr.Val() >= int64(l.config.MaxAttempts) {
		return autherror.ErrTooManyLoginAttempts
	}
	return nil
}

func (l *LoginLimiter) Reset(ctx context.Context, identifier, ip string) error {
	if err := l.redis.Del(ctx, loginKey(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NoopLoginLimiter is used when Redis is not configured.
type NoopLoginLimiter struct{}

func (NoopLoginLimiter) Check(context.Context, string, string) error         { return nil }
func (NoopLoginLimiter) RecordFailure(context.Context, string, string) error { return nil }
func (NoopLoginLimiter) Reset(context.Context, string, string) error         { return nil }
