// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP RESTful 介面，作為 bank 模組的應用層 (Application Layer)。
// 每個 handler 僅負責：
//  1. 接收與驗證 HTTP 請求
//  2. 呼叫 bank / harness 執行業務邏輯
//  3. 回傳標準化 JSON 回應
//  4. 成功變更狀態後呼叫 s.persist()
//
// 提款被拒屬於正常業務結果，仍回傳 Outcome 本體，只以狀態碼（400/409）區分；
// 儲存層失敗則走 writeErr，與拒絕明確分開。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"ledger/internal/bank"
	"ledger/internal/harness"
)

// Server 為 HTTP 層核心結構：
// - Bank：注入帳本（已選定提款策略）。
// - harness：提供 /drills 並行演練。
// - persist：持久化鉤子，讓 server 不需關心儲存實作細節。
type Server struct {
	Bank    *bank.Bank
	harness *harness.Harness
	persist func() error
	log     *zap.Logger
}

// NewServer 建立新的 HTTP 伺服器。
// persist 與 logger 可為 nil。
func NewServer(b *bank.Bank, persist func() error, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Bank: b, harness: harness.New(logger), persist: persist, log: logger}
}

// afterWrite 於狀態變更成功後觸發持久化；失敗只記錄，不影響已送出的回應。
func (s *Server) afterWrite() {
	if s.persist == nil {
		return
	}
	if err := s.persist(); err != nil {
		s.log.Error("persist failed", zap.Error(err))
	}
}

// accounts 處理：
//   - POST /accounts  → 開立帳戶 {id?, balance}
func (s *Server) accounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ID      string `json:"id"`
		Balance int64  `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	a, err := s.Bank.Open(r.Context(), req.ID, req.Balance)
	if err != nil {
		writeErr(w, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, a)
	s.afterWrite()
}

// accountSubroutes 處理子路徑：
//
//	GET  /accounts/{id}           → 查詢帳戶
//	POST /accounts/{id}/withdraw  → 提款
//	GET  /accounts/{id}/logs      → 交易日誌查詢
func (s *Server) accountSubroutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/accounts/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	// GET /accounts/{id}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a, err := s.Bank.Get(r.Context(), id)
		if err != nil {
			writeErr(w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, a)
		return
	}

	switch parts[1] {
	case "withdraw": // POST /accounts/{id}/withdraw
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, err, http.StatusBadRequest)
			return
		}
		out, err := s.Bank.Withdraw(r.Context(), id, req.Amount)
		if errors.Is(err, bank.ErrInvalidBalance) {
			// 提款路徑出現負餘額代表實作缺陷，不是使用者輸入問題
			writeErr(w, err, http.StatusInternalServerError)
			return
		}
		if err != nil {
			writeErr(w, err, statusFor(err))
			return
		}
		if !out.OK() {
			writeJSON(w, statusFor(out.Err()), out)
			return
		}
		writeJSON(w, http.StatusOK, out)
		s.afterWrite()

	case "logs": // GET /accounts/{id}/logs
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		logs, err := s.Bank.Logs(r.Context(), id)
		if err != nil {
			writeErr(w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, logs)
	default:
		http.NotFound(w, r)
	}
}

// drillResult 為 /drills 回應中單筆請求的結果；錯誤以字串呈現。
type drillResult struct {
	harness.Result
	Error string `json:"error,omitempty"`
}

// drills 處理並行演練：
//
//	POST /drills → JSON {account_id?, balance, amounts[]}
//
// 以 balance 開立新帳戶，對其同時送出 amounts 中的每筆提款，回傳每筆結果與最終餘額。
func (s *Server) drills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AccountID string  `json:"account_id"`
		Balance   int64   `json:"balance"`
		Amounts   []int64 `json:"amounts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if len(req.Amounts) == 0 {
		writeErr(w, errors.New("amounts must not be empty"), http.StatusBadRequest)
		return
	}

	sc := harness.Scenario{AccountID: req.AccountID, Start: req.Balance, Amounts: req.Amounts}
	report, err := s.harness.RunScenario(r.Context(), s.Bank, sc)
	if err != nil {
		writeErr(w, err, statusFor(err))
		return
	}

	results := make([]drillResult, len(report.Results))
	accountID := req.AccountID
	for i, res := range report.Results {
		results[i] = drillResult{Result: res}
		if res.Err != nil {
			results[i].Error = res.Err.Error()
		}
		accountID = res.Request.AccountID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"strategy":      s.Bank.Strategy(),
		"account_id":    accountID,
		"start":         req.Balance,
		"final_balance": report.FinalBalance(accountID),
		"consistent":    report.Consistent(accountID, req.Balance),
		"results":       results,
	})
	s.afterWrite()
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "strategy": s.Bank.Strategy()})
}

// statusFor 將領域錯誤對應為 HTTP 狀態碼。
func statusFor(err error) int {
	switch {
	case errors.Is(err, bank.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bank.ErrBadAmount), errors.Is(err, bank.ErrInvalidBalance):
		return http.StatusBadRequest
	case errors.Is(err, bank.ErrInsufficient), errors.Is(err, bank.ErrAccountExists), errors.Is(err, bank.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
