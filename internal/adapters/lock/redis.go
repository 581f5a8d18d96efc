// Package lock implementa ports.FireLock sobre Redis para que dos procesos
// nunca disparen sobre el mismo mercado.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const releaseTimeout = 5 * time.Second

// releaseLua borra la clave solo si sigue siendo nuestra.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// Config son los parámetros de conexión.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisLock es un lock SETNX con TTL y liberación condicional por token.
type RedisLock struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewRedisLock conecta y hace ping. Un Redis inalcanzable es error de arranque.
func NewRedisLock(ctx context.Context, cfg Config) (*RedisLock, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lock.NewRedisLock: ping %s: %w", cfg.Addr, err)
	}
	return &RedisLock{rdb: rdb, release: redis.NewScript(releaseLua)}, nil
}

// Acquire toma el lock o devuelve domain.ErrLockHeld. La función devuelta
// se puede llamar más de una vez.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock.Acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock.Acquire %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := l.release.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
				slog.Warn("lock: release failed", "key", key, "err", err)
			}
		})
	}, nil
}

// Close cierra la conexión.
func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
