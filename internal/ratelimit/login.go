package ratelimit

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hyperion/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keyLoginPrefix    = "hyperion:login:"
	maxLocalLimiters  = 10000
	localLimiterIdle  = 10 * time.Minute
	defaultLoginRate  = 1.0
	defaultLoginBurst = 10
)

// LoginLimiter throttles credential submissions per caller key. It uses the
// redis token bucket when redis is configured, else a per-process limiter.
type LoginLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger

	mu    sync.Mutex
	local map[string]*localEntry
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLoginLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *LoginLimiter {
	perSecond := cfg.RateLimit.LoginPerSecond
	if perSecond <= 0 {
		perSecond = defaultLoginRate
	}
	burst := cfg.RateLimit.LoginBurst
	if burst <= 0 {
		burst = defaultLoginBurst
	}
	return &LoginLimiter{
		bucket: NewTokenBucket(client),
		rate:   perSecond,
		burst:  burst,
		log:    log.Named("ratelimit.login"),
		local:  make(map[string]*localEntry),
	}
}

// Allow falls back to the local limiter when redis errors.
func (l *LoginLimiter) Allow(ctx context.Context, key string) bool {
	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, keyLoginPrefix+key, l.rate, l.burst)
		if err != nil {
			l.log.Warn("redis rate limit failed, falling back to local limiter", zap.Error(err))
			return l.allowLocal(key, time.Now())
		}
		return res.Allowed
	}
	return l.allowLocal(key, time.Now())
}

func (l *LoginLimiter) allowLocal(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLocalLimiters {
			l.pruneLocked(now)
		}
		entry = &localEntry{limiter: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.local[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *LoginLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.local {
		if now.Sub(entry.lastSeen) > localLimiterIdle {
			delete(l.local, key)
		}
	}
}
