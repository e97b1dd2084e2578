// internal/bank/store.go

package bank

import (
	"context"
	"math"
	"time"
)

// Store 為帳戶餘額的持久化介面（Ledger Store）。
// Balance 與 SetBalance 各自為原子操作，但「先讀後寫」這組動作並不具原子性，
// 如何安全組合兩者是 Withdrawer 的責任。
//
// 實作位於 internal/storage（memory / redis / postgres）。
type Store interface {
	// Balance 回傳目前餘額；帳戶不存在時回傳 ErrNotFound。
	Balance(ctx context.Context, id string) (int64, error)
	// SetBalance 覆寫餘額；帳戶不存在回傳 ErrNotFound，負值回傳 ErrInvalidBalance。
	SetBalance(ctx context.Context, id string, balance int64) error
	// Create 以初始餘額建立帳戶；重複 ID 回傳 ErrAccountExists。
	Create(ctx context.Context, id string, balance int64) error
}

// CompareAndSetter 為樂觀並行控制所需的額外原語：
// 只有在目前餘額等於 expected 時才寫入 next；不相等時回傳 (false, nil)。
type CompareAndSetter interface {
	CompareAndSet(ctx context.Context, id string, expected, next int64) (bool, error)
}

// Locker 提供以 key 為單位的臨界區。fn 執行期間同一 key 只會有一個持有者；
// 不論 fn 成功、失敗或 panic，鎖都必須被釋放。
//
// 實作位於 internal/lock（in-process KeyedMutex / redsync RedisLocker）。
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Hook 在「讀取餘額」與「檢查/寫入」之間被呼叫。
// 只作為測試與示範的注入點，用來讓 TOCTOU 競爭在有限次執行內穩定重現。
type Hook func(ctx context.Context, id string)

// SleepHook 回傳一個在讀取與檢查之間睡眠 d 的 Hook，模擬排程搶占或 I/O 延遲。
func SleepHook(d time.Duration) Hook {
	return func(ctx context.Context, _ string) {
		if d <= 0 {
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
}

// checkedSub 回傳 balance-amount；結果為負或發生 int64 溢位時回傳 ErrInvalidBalance，絕不回繞。
func checkedSub(balance, amount int64) (int64, error) {
	if amount < 0 && balance > math.MaxInt64+amount {
		return 0, ErrInvalidBalance
	}
	if amount > 0 && balance < math.MinInt64+amount {
		return 0, ErrInvalidBalance
	}
	next := balance - amount
	if next < 0 {
		return 0, ErrInvalidBalance
	}
	return next, nil
}
