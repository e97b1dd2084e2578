// internal/lock/redis.go

package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledger/internal/bank"
)

var _ bank.Locker = (*RedisLocker)(nil)

// maxTries 為重試次數上限，避免設定錯誤造成幾乎無限的等待。
const maxTries = 1000

// Options 設定 RedisLocker 的行為。
type Options struct {
	// Expiry 為鎖自動過期時間，防止持有者崩潰後永久死鎖；必須大於臨界區的最長執行時間。
	Expiry time.Duration
	// Tries 為取得鎖的嘗試次數。
	Tries int
	// RetryDelay 為兩次嘗試之間的等待。
	RetryDelay time.Duration
}

// DefaultOptions 回傳適合單帳戶高競爭提款的預設值：臨界區很短，因此重試頻繁、次數多。
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      200,
		RetryDelay: 10 * time.Millisecond,
	}
}

func (o Options) validate() error {
	switch {
	case o.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be > 0", ErrInvalidOptions)
	case o.Tries < 1 || o.Tries > maxTries:
		return fmt.Errorf("%w: tries must be in [1, %d]", ErrInvalidOptions, maxTries)
	case o.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidOptions)
	}
	return nil
}

// RedisLocker 以 RedLock 演算法 (redsync) 在 Redis 上實作臨界區。
type RedisLocker struct {
	rs   *redsync.Redsync
	opts Options
	log  *zap.Logger
}

// NewRedisLocker 建立 RedisLocker；logger 可為 nil。
func NewRedisLocker(client redis.UniversalClient, opts Options, logger *zap.Logger) (*RedisLocker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		log:  logger,
	}, nil
}

// WithLock 取得 key 的分散式鎖後執行 fn，結束時（含 panic）釋放。
// fn 的錯誤原樣回傳，以便呼叫端用 errors.Is 判斷儲存層錯誤。
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if fn == nil {
		return ErrNilFn
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Warn("failed to acquire lock", zap.String("lock_key", key), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrLockUnavailable, key, err)
	}
	l.log.Debug("lock acquired", zap.String("lock_key", key))

	defer func() {
		// 即使呼叫端 ctx 已取消仍需釋放鎖。
		ok, err := mutex.UnlockContext(context.WithoutCancel(ctx))
		if !ok || err != nil {
			l.log.Error("failed to release lock", zap.String("lock_key", key), zap.Bool("unlock_ok", ok), zap.Error(err))
			return
		}
		l.log.Debug("lock released", zap.String("lock_key", key))
	}()

	return fn(ctx)
}
