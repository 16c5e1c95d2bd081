package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports that the attempt budget for a window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable reports a Redis failure while checking or counting.
	ErrUnavailable = errors.New("rate store unavailable")
)

// Config holds limiter tuning parameters.
type Config struct {
	// MaxAttempts is the failed-attempt budget per window.
	MaxAttempts int
	// Window is the fixed counting window.
	Window time.Duration
	// ThrottleIP additionally counts failures per client IP.
	ThrottleIP bool
}

// DefaultConfig returns the stock login throttle: 10 failures per 15 minutes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		Window:      15 * time.Minute,
		ThrottleIP:  true,
	}
}

// Limiter throttles login attempts with per-handle and per-IP Redis counters.
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// New creates a Limiter backed by the given Redis client.
func New(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{rdb: rdb, cfg: cfg}
}

func handleKey(handle string) string { return "thl:h:" + strings.ToLower(handle) }
func ipKey(ip string) string         { return "thl:ip:" + ip }

// CheckLogin reports whether the handle+IP pair still has attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, handle, ip string) error {
	if err := l.check(ctx, handleKey(handle)); err != nil {
		return err
	}
	if l.cfg.ThrottleIP && ip != "" {
		return l.check(ctx, ipKey(ip))
	}
	return nil
}

// RecordFailure counts one failed attempt against the handle+IP pair and
// returns ErrRateLimited when the budget is now spent.
func (l *Limiter) RecordFailure(ctx context.Context, handle, ip string) error {
	n, err := l.increment(ctx, handleKey(handle))
	if err != nil {
		return err
	}
	limited := n > int64(l.cfg.MaxAttempts)

	if l.cfg.ThrottleIP && ip != "" {
		n, err = l.increment(ctx, ipKey(ip))
		if err != nil {
			return err
		}
		limited = limited || n > int64(l.cfg.MaxAttempts)
	}

	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the failure counters for the handle+IP pair. Called on
// successful login and after a password change.
func (l *Limiter) Reset(ctx context.Context, handle, ip string) error {
	keys := []string{handleKey(handle)}
	if l.cfg.ThrottleIP && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string) error {
	n, err := l.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n >= int64(l.cfg.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, error) {
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, key, l.cfg.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return n, nil
}
