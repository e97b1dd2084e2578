// internal/storage/model.go
//
// 定義「資料持久化層 (storage layer)」的快照模型。
// MemoryStore 透過 Snapshot / Restore 與此模型互轉，並由 jsonstore.go 寫入磁碟，
// 使 in-memory 帳本能在程序結束後保留狀態。
package storage

import "time"

// SnapshotVersion 為目前快照結構版本。
const SnapshotVersion = 2

// Meta 為所有持久化快照的中繼資料 (metadata)。
type Meta struct {
	Storage   string    `json:"storage"`        // 儲存類型，例如 "json_snapshot"
	Version   int       `json:"version"`        // 結構版本號，用於未來升級時比對
	Timestamp time.Time `json:"timestamp"`      // 快照建立時間
	Note      string    `json:"note,omitempty"` // 備註欄，可選
}

// PersistAccount 為帳戶在儲存層的序列化格式。
type PersistAccount struct {
	ID      string `json:"id"`      // 帳戶唯一 ID
	Balance int64  `json:"balance"` // 帳戶餘額，以最小貨幣單位儲存
}

// Snapshot 為帳本餘額的完整快照。
type Snapshot struct {
	Meta     Meta             `json:"_meta"`
	Accounts []PersistAccount `json:"accounts"`
}
