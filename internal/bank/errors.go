// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// ErrBadAmount 與 ErrInsufficient 為業務拒絕，正常情況下以 Outcome 表達，只在傳輸層轉換狀態碼時使用；
// 其餘為操作失敗，會原封不動（以 %w 包裝）往上傳遞給呼叫端，不會被吞掉或自動重試。

package bank

import "errors"

var (
	// ErrNotFound 代表帳戶不存在。
	// 對應 HTTP 狀態碼 404 Not Found。
	ErrNotFound = errors.New("account not found")

	// ErrBadAmount 代表金額非法（<=0）。
	// 對應 HTTP 狀態碼 400 Bad Request。
	ErrBadAmount = errors.New("amount must be > 0")

	// ErrInsufficient 代表餘額不足，提款被拒。
	// 對應 HTTP 狀態碼 409 Conflict。
	ErrInsufficient = errors.New("insufficient balance")

	// ErrInvalidBalance 代表儲存層不變式被破壞：寫入負餘額或減法溢位。
	// 正確的提款邏輯永遠不會觸發；若出現代表提款實作有缺陷。
	ErrInvalidBalance = errors.New("invalid balance")

	// ErrAccountExists 代表以重複 ID 開戶。
	ErrAccountExists = errors.New("account already exists")

	// ErrConflict 代表樂觀並行控制重試次數用盡仍無法寫入。
	ErrConflict = errors.New("concurrent update conflict")
)
