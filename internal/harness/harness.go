// internal/harness/harness.go

// Package harness 負責「並行提款演練」：
// 對同一組帳戶同時送出多筆提款、等待全部完成、讀取最終餘額，並回報每筆請求的結果。
//
// harness 本身不對提款加任何同步（只有起跑閘門與結束時的 join），
// 刻意的延遲屬於提款策略的 Hook，因此同一個 harness 可以原封不動地驅動 naive 與 serialized 兩種實作。
package harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ledger/internal/bank"
)

// Ledger 為 harness 所需的最小帳本介面；*bank.Bank 即滿足。
type Ledger interface {
	Withdraw(ctx context.Context, id string, amount int64) (bank.Outcome, error)
	Balance(ctx context.Context, id string) (int64, error)
}

// Opener 用於 RunScenario 開立演練帳戶。
type Opener interface {
	Ledger
	Open(ctx context.Context, id string, balance int64) (*bank.Account, error)
}

// Result 為單筆請求的結果；Err 非 nil 代表儲存層或鎖失敗（與拒絕不同），此時 Outcome 為零值。
type Result struct {
	RequestID string                 `json:"request_id"`
	Request   bank.WithdrawalRequest `json:"request"`
	Outcome   bank.Outcome           `json:"outcome"`
	Err       error                  `json:"-"`
}

// Report 為一次演練的彙總：Results 與輸入請求同順序，Balances 為每個涉及帳戶的最終餘額。
type Report struct {
	Results  []Result         `json:"results"`
	Balances map[string]int64 `json:"balances"`
}

// FinalBalance 回傳指定帳戶的最終餘額。
func (r Report) FinalBalance(id string) int64 { return r.Balances[id] }

// Succeeded 回傳成功筆數。
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.Outcome.OK() {
			n++
		}
	}
	return n
}

// Declined 回傳因指定原因被拒的筆數。
func (r Report) Declined(reason bank.DeclineReason) int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.Outcome.Status == bank.StatusDeclined && res.Outcome.Reason == reason {
			n++
		}
	}
	return n
}

// Failed 回傳以錯誤結束的筆數。
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Debited 回傳指定帳戶所有成功提款的金額總和。
func (r Report) Debited(id string) int64 {
	var sum int64
	for _, res := range r.Results {
		if res.Err == nil && res.Outcome.OK() && res.Request.AccountID == id {
			sum += res.Request.Amount
		}
	}
	return sum
}

// Consistent 檢查不變式：最終餘額 == 初始餘額 − Σ(成功提款金額)，且不為負。
// naive 策略在競爭下會違反此式（lost update）。
func (r Report) Consistent(id string, start int64) bool {
	final, ok := r.Balances[id]
	if !ok {
		return false
	}
	return final >= 0 && final == start-r.Debited(id)
}

// Harness 驅動並行演練。
type Harness struct {
	log *zap.Logger
}

// New 建立 Harness；logger 可為 nil。
func New(logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{log: logger}
}

// Run 為每筆請求啟動一個 goroutine，同時放行後等待全部完成，再讀取各帳戶最終餘額。
// 單筆提款的錯誤記錄在 Result.Err，並經由 errgroup 彙總出第一個錯誤寫入日誌；
// 不會中止其他請求，也不會自動重試。只有讀取最終餘額失敗時 Run 才回傳 error。
func (h *Harness) Run(ctx context.Context, l Ledger, reqs []bank.WithdrawalRequest) (Report, error) {
	results := make([]Result, len(reqs))
	start := make(chan struct{})

	var g errgroup.Group
	for i, req := range reqs {
		i, req := i, req
		results[i] = Result{RequestID: uuid.NewString(), Request: req}
		g.Go(func() error {
			<-start
			out, err := l.Withdraw(ctx, req.AccountID, req.Amount)
			results[i].Outcome, results[i].Err = out, err
			if err != nil {
				return fmt.Errorf("request %s: %w", results[i].RequestID, err)
			}
			return nil
		})
	}
	close(start)

	// errgroup.Group 不帶 ctx：單筆失敗不會取消其他請求，Wait 只回報第一個錯誤
	report := Report{Results: results, Balances: make(map[string]int64)}
	if err := g.Wait(); err != nil {
		h.log.Warn("drill finished with failed requests",
			zap.Int("failed", report.Failed()),
			zap.Int("total", len(results)),
			zap.NamedError("first_error", err))
	}

	for _, req := range reqs {
		if _, seen := report.Balances[req.AccountID]; seen {
			continue
		}
		bal, err := l.Balance(ctx, req.AccountID)
		if err != nil {
			return report, fmt.Errorf("read final balance %s: %w", req.AccountID, err)
		}
		report.Balances[req.AccountID] = bal
	}

	for _, res := range results {
		fields := []zap.Field{
			zap.String("request_id", res.RequestID),
			zap.String("account", res.Request.AccountID),
			zap.Int64("amount", res.Request.Amount),
		}
		if res.Err != nil {
			h.log.Warn("withdrawal failed", append(fields, zap.Error(res.Err))...)
			continue
		}
		h.log.Debug("withdrawal finished", append(fields,
			zap.String("status", string(res.Outcome.Status)),
			zap.String("reason", string(res.Outcome.Reason)),
			zap.Int64("new_balance", res.Outcome.NewBalance))...)
	}
	return report, nil
}

// Scenario 描述一次單帳戶演練：開戶餘額與每筆提款金額。
type Scenario struct {
	AccountID string
	Start     int64
	Amounts   []int64
}

// Requests 將 Scenario 展開為提款請求。
func (s Scenario) Requests() []bank.WithdrawalRequest {
	reqs := make([]bank.WithdrawalRequest, len(s.Amounts))
	for i, amt := range s.Amounts {
		reqs[i] = bank.WithdrawalRequest{AccountID: s.AccountID, Amount: amt}
	}
	return reqs
}

// Canonical 回傳經典 TOCTOU 情境：餘額 1000，同時提領 700 兩次（合計 1400 > 1000）。
func Canonical(accountID string) Scenario {
	return Scenario{AccountID: accountID, Start: 1000, Amounts: []int64{700, 700}}
}

// RunScenario 先以 Start 開戶，再並行執行所有提款。AccountID 為空時使用帳本產生的 ID。
func (h *Harness) RunScenario(ctx context.Context, l Opener, s Scenario) (Report, error) {
	acct, err := l.Open(ctx, s.AccountID, s.Start)
	if err != nil {
		return Report{}, fmt.Errorf("open scenario account: %w", err)
	}
	// id 為空時由帳本產生
	s.AccountID = acct.ID

	report, err := h.Run(ctx, l, s.Requests())
	if err != nil {
		return report, err
	}
	h.log.Info("scenario finished",
		zap.String("account", s.AccountID),
		zap.Int64("start", s.Start),
		zap.Int64("final", report.FinalBalance(s.AccountID)),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("declined", report.Declined(bank.ReasonInsufficientFunds)+report.Declined(bank.ReasonInvalidAmount)),
		zap.Int("failed", report.Failed()),
		zap.Bool("consistent", report.Consistent(s.AccountID, s.Start)))
	return report, nil
}
