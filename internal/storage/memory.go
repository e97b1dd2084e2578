// internal/storage/memory.go
//
// MemoryStore 為 bank.Store 的 in-memory 實作。
// 每次 Balance / SetBalance / CompareAndSet 都在 RWMutex 保護下完成，單次讀寫不會被撕裂；
// 但刻意「不」提供讀寫組合的原子性，組合協調交由提款策略負責。
// 持久化透過 Snapshot / Restore 搭配 jsonstore.go 的原子寫入達成。
package storage

import (
	"context"
	"sync"

	"ledger/internal/bank"
)

var _ bank.CASStore = (*MemoryStore)(nil)

// MemoryStore 以 map 保存 帳戶 ID → 餘額。
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]int64
}

// NewMemoryStore 建立空白的 in-memory store。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int64)}
}

// Balance 回傳目前餘額；不存在回傳 bank.ErrNotFound。
func (s *MemoryStore) Balance(_ context.Context, id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.balances[id]
	if !ok {
		return 0, bank.ErrNotFound
	}
	return bal, nil
}

// SetBalance 覆寫餘額。
func (s *MemoryStore) SetBalance(_ context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[id]; !ok {
		return bank.ErrNotFound
	}
	s.balances[id] = balance
	return nil
}

// Create 建立帳戶。
func (s *MemoryStore) Create(_ context.Context, id string, balance int64) error {
	if balance < 0 {
		return bank.ErrInvalidBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[id]; ok {
		return bank.ErrAccountExists
	}
	s.balances[id] = balance
	return nil
}

// CompareAndSet 只有在目前餘額等於 expected 時寫入 next。
func (s *MemoryStore) CompareAndSet(_ context.Context, id string, expected, next int64) (bool, error) {
	if next < 0 {
		return false, bank.ErrInvalidBalance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.balances[id]
	if !ok {
		return false, bank.ErrNotFound
	}
	if cur != expected {
		return false, nil
	}
	s.balances[id] = next
	return true, nil
}

// Snapshot 匯出目前狀態為可持久化的 Snapshot。
func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Meta: Meta{
			Storage: "json_snapshot",
			Version: SnapshotVersion,
		},
	}
	for id, bal := range s.balances {
		snap.Accounts = append(snap.Accounts, PersistAccount{ID: id, Balance: bal})
	}
	return snap
}

// Restore 以快照內容取代目前狀態；負餘額視為損毀快照，回傳 bank.ErrInvalidBalance 且不修改狀態。
func (s *MemoryStore) Restore(snap Snapshot) error {
	next := make(map[string]int64, len(snap.Accounts))
	for _, pa := range snap.Accounts {
		if pa.Balance < 0 {
			return bank.ErrInvalidBalance
		}
		next[pa.ID] = pa.Balance
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = next
	return nil
}
