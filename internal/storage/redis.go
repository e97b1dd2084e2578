// internal/storage/redis.go
//
// RedisStore 為 bank.Store 的 Redis 實作：每個帳戶一個字串 key，值為十進位餘額。
//   - Create       → SET NX（已存在則 ErrAccountExists）
//   - SetBalance   → SET XX（不存在則 ErrNotFound）
//   - CompareAndSet → WATCH / GET / MULTI SET / EXEC；EXEC 因 key 被改動而失敗時回傳 (false, nil)
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ledger/internal/bank"
)

var _ bank.CASStore = (*RedisStore)(nil)

// DefaultRedisPrefix 為帳戶 key 的預設前綴。
const DefaultRedisPrefix = "ledger:balance:"

// RedisStore 以 go-redis 存取餘額。client 可在多個 goroutine 間共用。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 建立 RedisStore；prefix 為空時使用 DefaultRedisPrefix。
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

// Balance 回傳目前餘額。
func (s *RedisStore) Balance(ctx context.Context, id string) (int64, error) {
	bal, err := s.client.Get(ctx, s.key(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, bank.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", id, err)
	}
	return bal, nil
}

// SetBalance 覆寫既有帳戶的餘額。
func (s *RedisStore) SetBalance(ctx context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	ok, err := s.client.SetXX(ctx, s.key(id), balance, 0).Result()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	if !ok {
		return bank.ErrNotFound
	}
	return nil
}

// Create 建立帳戶。
func (s *RedisStore) Create(ctx context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	ok, err := s.client.SetNX(ctx, s.key(id), balance, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create %s: %w", id, err)
	}
	if !ok {
		return bank.ErrAccountExists
	}
	return nil
}

// CompareAndSet 以 WATCH 實作樂觀鎖。
func (s *RedisStore) CompareAndSet(ctx context.Context, id string, expected, next int64) (bool, error) {
	if next < 0 {
		return false, bank.ErrInvalidBalance
	}
	key := s.key(id)
	swapped := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			return bank.ErrNotFound
		}
		if err != nil {
			return err
		}
		if cur != expected {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, bank.ErrNotFound):
		return false, bank.ErrNotFound
	case err != nil:
		return false, fmt.Errorf("redis compare-and-set %s: %w", id, err)
	}
	return swapped, nil
}
