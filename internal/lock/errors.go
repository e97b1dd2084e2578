// internal/lock/errors.go

// Package lock 提供以 key 為單位的臨界區實作，滿足 bank.Locker：
//   - KeyedMutex：同一程序內，每個 key 一把鎖，不同 key 互不阻塞。
//   - RedisLocker：以 redsync (RedLock) 在 Redis 上取得鎖，多個程序共用同一個 Redis 時亦成立。
//
// 兩者皆保證 fn 在任何結束路徑（回傳、錯誤、panic）都會釋放鎖。
package lock

import "errors"

var (
	// ErrLockUnavailable 代表在 ctx 結束或重試次數用盡前無法取得鎖。
	// 屬於操作失敗，會原樣回傳給提款呼叫端，而非當成拒絕。
	ErrLockUnavailable = errors.New("lock unavailable")

	// ErrEmptyKey 代表傳入空白 key。
	ErrEmptyKey = errors.New("lock key cannot be empty")

	// ErrNilFn 代表傳入 nil 函式。
	ErrNilFn = errors.New("lock function is nil")

	// ErrInvalidOptions 代表 RedisLocker 的設定值不合法。
	ErrInvalidOptions = errors.New("invalid lock options")
)
