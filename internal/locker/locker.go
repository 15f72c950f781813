package locker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

var ErrLocked = errors.New("lock is held by another worker")

const keyPrefix = "custody:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never frees someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// New picks the Redis locker when an address is configured and the
// in-process one otherwise. The Redis client is returned for health checks
// and is nil for the in-process locker.
func New(cfg *config.AppConfig, logger *logger.Logger) (ILocker, redis.UniversalClient) {
	if cfg.Redis.Addr == "" {
		logger.Info("[Locker][New] redis not configured, using in-process locks")
		return NewLocal(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return NewRedis(client, logger), client
}

type RedisLocker struct {
	client redis.UniversalClient
	logger *logger.Logger
}

func NewRedis(client redis.UniversalClient, logger *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire lock %s", key)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
				l.logger.Warn("[RedisLocker][Release] failed to release lock, it will expire", map[string]string{
					"key":   key,
					"error": err.Error(),
				})
			}
		})
	}, nil
}

// LocalLocker serializes holders within one process. Leases never expire;
// holders always release.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
