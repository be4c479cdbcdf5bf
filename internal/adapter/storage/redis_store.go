package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/kitties/internal/port"
)

const DefaultRedisKeyPrefix = "kitties:"

// RedisStore runs optimistic transactions: every key read is WATCHed and the
// staged writes are applied in one MULTI/EXEC. A concurrent change to a read
// key aborts EXEC and the transaction is retried.
type RedisStore struct {
	rdb          *redis.Client
	prefix       string
	numOfRetries int
	retryDelay   time.Duration
}

func NewRedisStore(rdb *redis.Client, prefix string, numOfRetries int) *RedisStore {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &RedisStore{
		rdb:          rdb,
		prefix:       prefix,
		numOfRetries: numOfRetries,
		retryDelay:   10 * time.Millisecond,
	}
}

func (r *RedisStore) Update(ctx context.Context, fn func(tx port.KVTx) error) error {
	var err error
	for range r.numOfRetries {
		err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			staged := newStagedTx(r.watchAndGet(tx), false)
			if err := fn(staged); err != nil {
				return err
			}
			if len(staged.writes) == 0 {
				return nil
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, key := range staged.order {
					w := staged.writes[key]
					if w.deleted {
						pipe.Del(ctx, r.prefix+key)
						continue
					}
					pipe.Set(ctx, r.prefix+key, w.value, 0)
				}
				return nil
			})
			return err
		})
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		time.Sleep(r.retryDelay)
	}
	return fmt.Errorf("%w: %v", port.ErrTxConflict, err)
}

func (r *RedisStore) View(ctx context.Context, fn func(tx port.KVTx) error) error {
	return fn(newStagedTx(func(ctx context.Context, key string) ([]byte, bool, error) {
		return get(ctx, r.rdb, r.prefix+key)
	}, true))
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) watchAndGet(tx *redis.Tx) func(ctx context.Context, key string) ([]byte, bool, error) {
	return func(ctx context.Context, key string) ([]byte, bool, error) {
		if err := tx.Watch(ctx, r.prefix+key).Err(); err != nil {
			return nil, false, fmt.Errorf("watch %s: %w", key, err)
		}
		return get(ctx, tx, r.prefix+key)
	}
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c redisGetter, key string) ([]byte, bool, error) {
	value, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}
