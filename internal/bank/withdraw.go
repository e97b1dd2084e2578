// internal/bank/withdraw.go

// 本檔實作三種提款策略，皆遵循同一組邏輯步驟：
//  1. 金額 <= 0 → Declined{InvalidAmount}
//  2. 讀取餘額
//  3. 呼叫 Hook（測試/示範注入點）
//  4. 金額 > 餘額 → Declined{InsufficientFunds}，不寫入
//  5. 寫入 餘額-金額 → Succeeded{新餘額}
//
// 差別只在步驟 2–5 如何與其他提款協調：
//   - NaiveWithdrawer：不協調，刻意保留 TOCTOU 競爭。
//   - SerializedWithdrawer：悲觀鎖，以帳戶為單位的臨界區包住 2–5。
//   - OptimisticWithdrawer：樂觀並行，以 compare-and-set 寫入，衝突時重讀重試。

package bank

import "context"

// Withdrawer 為提款策略的共同介面，測試與 harness 可任意替換實作。
type Withdrawer interface {
	Withdraw(ctx context.Context, id string, amount int64) (Outcome, error)
	// Name 回傳策略名稱，用於日誌與指標。
	Name() string
}

var (
	_ Withdrawer = (*NaiveWithdrawer)(nil)
	_ Withdrawer = (*SerializedWithdrawer)(nil)
	_ Withdrawer = (*OptimisticWithdrawer)(nil)
)

// readCheckWrite 執行步驟 2–5。本身不具原子性，呼叫端負責協調。
// 儲存層錯誤原封不動回傳，不重試。
func readCheckWrite(ctx context.Context, store Store, hook Hook, id string, amount int64) (Outcome, error) {
	balance, err := store.Balance(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if hook != nil {
		hook(ctx, id)
	}
	if amount > balance {
		return Declined(ReasonInsufficientFunds), nil
	}
	next, err := checkedSub(balance, amount)
	if err != nil {
		return Outcome{}, err
	}
	if err := store.SetBalance(ctx, id, next); err != nil {
		return Outcome{}, err
	}
	return Succeeded(next), nil
}

// NaiveWithdrawer 以未同步的「讀取→檢查→寫入」實作提款。
// 兩個並行提款可能讀到同一個舊餘額並同時通過檢查，造成 lost update。
// 僅用來重現競爭條件，不可用於正式環境。
type NaiveWithdrawer struct {
	store Store
	hook  Hook
}

// NewNaiveWithdrawer 建立 naive 策略；hook 可為 nil。
func NewNaiveWithdrawer(store Store, hook Hook) *NaiveWithdrawer {
	return &NaiveWithdrawer{store: store, hook: hook}
}

func (w *NaiveWithdrawer) Name() string { return "naive" }

// Withdraw 提款（不具並行安全性）。
func (w *NaiveWithdrawer) Withdraw(ctx context.Context, id string, amount int64) (Outcome, error) {
	if amount <= 0 {
		return Declined(ReasonInvalidAmount), nil
	}
	return readCheckWrite(ctx, w.store, w.hook, id, amount)
}

// SerializedWithdrawer 在以帳戶為 key 的臨界區內完成讀取、檢查與寫入。
// 同一帳戶同時最多一筆提款位於臨界區內，其餘等待；不同帳戶互不阻塞。
type SerializedWithdrawer struct {
	store  Store
	locker Locker
	hook   Hook
}

// NewSerializedWithdrawer 建立悲觀鎖策略；hook 在臨界區內執行，可為 nil。
func NewSerializedWithdrawer(store Store, locker Locker, hook Hook) *SerializedWithdrawer {
	return &SerializedWithdrawer{store: store, locker: locker, hook: hook}
}

func (w *SerializedWithdrawer) Name() string { return "serialized" }

// Withdraw 提款：鎖在讀取前取得，於寫入、拒絕或錯誤後釋放。
func (w *SerializedWithdrawer) Withdraw(ctx context.Context, id string, amount int64) (Outcome, error) {
	if amount <= 0 {
		return Declined(ReasonInvalidAmount), nil
	}
	var out Outcome
	err := w.locker.WithLock(ctx, LockKey(id), func(ctx context.Context) error {
		var err error
		out, err = readCheckWrite(ctx, w.store, w.hook, id, amount)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// LockKey 回傳帳戶臨界區使用的 key。
func LockKey(id string) string { return "lock:account:" + id }

// CASStore 為同時支援 compare-and-set 的 Store。
type CASStore interface {
	Store
	CompareAndSetter
}

// OptimisticWithdrawer 不上鎖：讀取後以 CompareAndSet 寫入，
// 若餘額在讀取後被其他提款改變則重讀並重試（指數退避 + 隨機抖動，見 backoff.go）。
type OptimisticWithdrawer struct {
	store       CASStore
	hook        Hook
	maxAttempts int
}

// NewOptimisticWithdrawer 建立樂觀並行策略。
// maxAttempts <= 0 代表不限次數，直到成功、拒絕或 ctx 結束。
func NewOptimisticWithdrawer(store CASStore, hook Hook, maxAttempts int) *OptimisticWithdrawer {
	return &OptimisticWithdrawer{store: store, hook: hook, maxAttempts: maxAttempts}
}

func (w *OptimisticWithdrawer) Name() string { return "optimistic" }

// Withdraw 提款；每次重試都重新讀取餘額並重新檢查。
func (w *OptimisticWithdrawer) Withdraw(ctx context.Context, id string, amount int64) (Outcome, error) {
	if amount <= 0 {
		return Declined(ReasonInvalidAmount), nil
	}
	retry := newRetryBackOff()
	for attempt := 0; ; attempt++ {
		balance, err := w.store.Balance(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if w.hook != nil {
			w.hook(ctx, id)
		}
		if amount > balance {
			return Declined(ReasonInsufficientFunds), nil
		}
		next, err := checkedSub(balance, amount)
		if err != nil {
			return Outcome{}, err
		}
		swapped, err := w.store.CompareAndSet(ctx, id, balance, next)
		if err != nil {
			return Outcome{}, err
		}
		if swapped {
			return Succeeded(next), nil
		}
		if w.maxAttempts > 0 && attempt+1 >= w.maxAttempts {
			return Outcome{}, ErrConflict
		}
		if err := sleepWithContext(ctx, retry.NextBackOff()); err != nil {
			return Outcome{}, err
		}
	}
}
