// internal/storage/jsonstore.go
//
// 提供 JSON 快照 (Snapshot) 的序列化與反序列化實作。
// 用於 MemoryStore 的輕量持久化方案：不接 Redis / PostgreSQL 時仍能跨重啟保留餘額。
// 採「原子寫入」策略 (atomic write)：先寫入同目錄下的唯一暫存檔並 fsync，再以 rename() 取代原檔，
// 寫入中斷時原檔不會損壞。
//
// ───────────────────────────────
// 設計要點：
//   - **獨立層 (storage)**：不關心提款邏輯，只處理 I/O 序列化。
//   - **唯一暫存檔**：每次寫入以 os.CreateTemp 產生自己的暫存檔，多個寫入者不會互相截斷。
//   - **同目錄**：暫存檔與正式檔位於同一檔案系統，rename() 才是原子操作。
//   - **寫入順序**：本層不決定哪份快照較新；呼叫端（app.Persist）必須序列化「取快照 + 寫入」。
//
// ───────────────────────────────
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LoadSnapshot 讀取指定路徑的 JSON 快照，並解析成 Snapshot 結構。
// 檔案不存在時回傳的錯誤滿足 errors.Is(err, os.ErrNotExist)，上層據此以空帳本啟動；
// 格式錯誤則包裝檔名後回傳（通常於系統啟動時呼叫）。
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}

// SaveSnapshot 將 Snapshot 序列化為 JSON 檔案，並採原子方式寫入。
// 流程：
//  1. 設定 Meta.Storage 與當前時間戳。
//  2. 在 path 所在目錄以 os.CreateTemp 建立唯一暫存檔，寫入並 Sync。
//  3. 以 os.Rename() 取代正式檔案；任何一步失敗都會移除暫存檔。
//
// 寫入中斷（停電、程式崩潰）時，原檔維持上一份完整快照。
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta.Storage = "json_snapshot"
	snap.Meta.Timestamp = time.Now()

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmp := f.Name()

	// 使用縮排格式輸出，方便人類閱讀（例如除錯或手動檢視）
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}

	// 原子替換
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return nil
}
