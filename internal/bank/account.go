// Package bank 定義核心領域模型與業務規則。
// 本檔定義 Account、提款請求、提款結果 (Outcome) 與交易 Log 結構，不含任何 HTTP 或儲存細節。

package bank

import "time"

// Account represents a ledger account.
type Account struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
}

// WithdrawalRequest 為單筆提款請求：帳戶 ID 與金額（最小貨幣單位）。
type WithdrawalRequest struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// Status 表示提款結果的種類。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusDeclined  Status = "declined"
)

// DeclineReason 說明提款被拒的原因；僅在 StatusDeclined 時有值。
type DeclineReason string

const (
	ReasonInsufficientFunds DeclineReason = "insufficient_funds"
	ReasonInvalidAmount     DeclineReason = "invalid_amount"
)

// Outcome 為一次提款的結果，建立後不可變（值型別傳遞）。
// 拒絕 (declined) 屬於正常業務結果，不是錯誤；儲存層失敗則以 error 另行回傳。
type Outcome struct {
	Status     Status        `json:"status"`
	NewBalance int64         `json:"new_balance"`
	Reason     DeclineReason `json:"reason,omitempty"`
}

// Succeeded 建立成功結果，附帶扣款後的新餘額。
func Succeeded(newBalance int64) Outcome {
	return Outcome{Status: StatusSucceeded, NewBalance: newBalance}
}

// Declined 建立拒絕結果。
func Declined(reason DeclineReason) Outcome {
	return Outcome{Status: StatusDeclined, Reason: reason}
}

// OK reports whether the withdrawal was applied.
func (o Outcome) OK() bool { return o.Status == StatusSucceeded }

// Err 將拒絕原因對應為領域錯誤，供傳輸層（HTTP）轉換狀態碼；成功時回傳 nil。
func (o Outcome) Err() error {
	switch o.Reason {
	case ReasonInsufficientFunds:
		return ErrInsufficient
	case ReasonInvalidAmount:
		return ErrBadAmount
	}
	return nil
}

// Log represents a journal record of one withdrawal attempt.
type Log struct {
	Time      time.Time     `json:"time"`
	Amount    int64         `json:"amount"`
	Direction string        `json:"direction"`
	Status    Status        `json:"status"`
	Reason    DeclineReason `json:"reason,omitempty"`
	Balance   int64         `json:"balance_after,omitempty"`
	Note      string        `json:"note"`
}
