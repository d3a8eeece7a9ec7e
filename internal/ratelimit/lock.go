package ratelimit

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a redis SET NX lock released only by its holder.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

var ErrLockTimeout = errors.New("lock wait timed out")

const (
	walletLockTTL   = 5 * time.Second
	walletLockWait  = 2 * time.Second
	walletLockRetry = 20 * time.Millisecond
	walletStripes   = 64
)

// WalletLocker serializes balance mutations of one wallet. Across replicas
// it uses a redis lock; without redis it stripes in-process mutexes.
type WalletLocker struct {
	locker  *Locker
	stripes [walletStripes]sync.Mutex
}

func NewWalletLocker(client *redis.Client) *WalletLocker {
	return &WalletLocker{locker: NewLocker(client)}
}

// Lock blocks until the wallet is free, the wait timeout elapses or ctx is
// done. The returned func releases the lock.
func (w *WalletLocker) Lock(ctx context.Context, walletID string) (func(), error) {
	if w.locker == nil {
		mu := &w.stripes[stripe(walletID)]
		mu.Lock()
		return mu.Unlock, nil
	}

	key := "hyperion:wallet:lock:" + walletID
	deadline := time.Now().Add(walletLockWait)
	for {
		token, ok, err := w.locker.TryLock(ctx, key, walletLockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				_ = w.locker.Release(context.WithoutCancel(ctx), key, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(walletLockRetry):
		}
	}
}

func stripe(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % walletStripes
}
