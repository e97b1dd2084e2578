// internal/app/app.go

// Package app 依設定組裝帳本：選擇儲存後端、鎖實作與提款策略，
// 並提供持久化鉤子與資源釋放函式，供 cmd/server 與 cmd/toctou 共用。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledger/internal/bank"
	"ledger/internal/config"
	"ledger/internal/lock"
	"ledger/internal/storage"
)

// App 為組裝完成的帳本與其相依資源。
type App struct {
	Bank  *bank.Bank
	Store bank.CASStore

	cfg    config.Config
	log    *zap.Logger
	memory *storage.MemoryStore
	rdb    *redis.Client
	db     *sql.DB

	// persistMu 序列化「取快照 + 寫檔」，確保較新的快照不會被較舊的覆蓋。
	persistMu sync.Mutex
}

// New 依 cfg 建立 App。呼叫端結束時必須呼叫 Close。
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, log: logger}

	if cfg.Store == config.StoreRedis || cfg.Locker == config.LockerRedis {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	w, err := a.buildWithdrawer(store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	b, err := bank.New(store, w, bank.WithLogger(logger))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Bank = b

	logger.Info("ledger assembled",
		zap.String("store", cfg.Store),
		zap.String("strategy", w.Name()),
		zap.String("locker", cfg.Locker),
		zap.Duration("race_delay", cfg.RaceDelay))
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (bank.CASStore, error) {
	switch a.cfg.Store {
	case config.StoreRedis:
		return storage.NewRedisStore(a.rdb, ""), nil
	case config.StorePostgres:
		db, err := storage.OpenPostgres(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		return storage.NewPostgresStore(ctx, db)
	default:
		a.memory = storage.NewMemoryStore()
		if err := a.restore(); err != nil {
			return nil, err
		}
		return a.memory, nil
	}
}

// restore 載入上次的 JSON 快照；檔案不存在時以空帳本啟動。
func (a *App) restore() error {
	if a.cfg.DataFile == "" {
		return nil
	}
	snap, err := storage.LoadSnapshot(a.cfg.DataFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.memory.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", a.cfg.DataFile, err)
	}
	a.log.Info("snapshot restored", zap.String("file", a.cfg.DataFile), zap.Int("accounts", len(snap.Accounts)))
	return nil
}

func (a *App) buildWithdrawer(store bank.CASStore) (bank.Withdrawer, error) {
	var hook bank.Hook
	if a.cfg.RaceDelay > 0 {
		hook = bank.SleepHook(a.cfg.RaceDelay)
	}

	switch a.cfg.Strategy {
	case config.StrategyNaive:
		return bank.NewNaiveWithdrawer(store, hook), nil
	case config.StrategyOptimistic:
		return bank.NewOptimisticWithdrawer(store, hook, a.cfg.MaxAttempts), nil
	default:
		locker, err := a.buildLocker()
		if err != nil {
			return nil, err
		}
		return bank.NewSerializedWithdrawer(store, locker, hook), nil
	}
}

func (a *App) buildLocker() (bank.Locker, error) {
	if a.cfg.Locker == config.LockerRedis {
		opts := lock.DefaultOptions()
		// 鎖的存活時間必須涵蓋注入的延遲
		opts.Expiry = max(opts.Expiry, 4*a.cfg.RaceDelay)
		return lock.NewRedisLocker(a.rdb, opts, a.log.Named("lock"))
	}
	return lock.NewKeyedMutex(), nil
}

// Persist 在 memory store 且設定了 DataFile 時寫入快照；其他後端本身即為持久化儲存，不做事。
// 可由多個 HTTP goroutine 同時呼叫：快照在鎖內取得並寫入，檔案上的快照只會往前推進。
func (a *App) Persist() error {
	if a.memory == nil || a.cfg.DataFile == "" {
		return nil
	}
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	return storage.SaveSnapshot(a.cfg.DataFile, a.memory.Snapshot())
}

// Close 釋放外部連線。
func (a *App) Close() error {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
