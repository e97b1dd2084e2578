// internal/server/server_test.go
//
// 本檔為 server 層的整合測試 (Integration Test)。
// 模擬完整 HTTP 請求流程，驗證 REST API 與 bank 層之間的整合、狀態正確性、錯誤代碼映射、
// 以及持久化鉤子 (persist hook) 是否在每次成功變更後正確觸發。
//
// 測試重點：
//  1. 開戶 / 查詢 / 提款 / 日誌 / 並行演練的 API 行為。
//  2. 成功操作會觸發持久化 persist()，被拒的提款不會。
//  3. 拒絕與錯誤皆有正確 HTTP 狀態碼（400, 404, 405, 409）。
//  4. 使用 httptest.Server 完成端對端模擬，不依賴外部服務。
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledger/internal/bank"
	"ledger/internal/lock"
	"ledger/internal/storage"
)

// doJSON 為測試輔助函式：
// 封裝 HTTP JSON 請求邏輯並驗證回傳狀態碼；若 out 非 nil，則解析 JSON 回應。
func doJSON(t *testing.T, c *http.Client, method, url string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantCode, resp.StatusCode, "%s %s", method, url)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

// newTestServer 以 serialized 策略（in-memory）建立測試伺服器，並計算 persist 呼叫次數。
func newTestServer(t *testing.T, hook bank.Hook) (*httptest.Server, *int32) {
	t.Helper()
	store := storage.NewMemoryStore()
	b, err := bank.New(store, bank.NewSerializedWithdrawer(store, lock.NewKeyedMutex(), hook))
	require.NoError(t, err)

	var persistCalls int32
	s := NewServer(b, func() error {
		atomic.AddInt32(&persistCalls, 1)
		return nil
	}, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts, &persistCalls
}

// TestHTTPFlowAndPersistHook 驗證整個 HTTP API 流程與持久化鉤子行為。
func TestHTTPFlowAndPersistHook(t *testing.T) {
	ts, persistCalls := newTestServer(t, nil)
	cli := ts.Client()

	// 1️⃣ 開立帳戶（指定 ID 與自動產生 ID）
	var a1, a2 bank.Account
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"id": "A", "balance": 1000}, 201, &a1)
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"balance": 500}, 201, &a2)
	assert.Equal(t, "A", a1.ID)
	assert.NotEmpty(t, a2.ID)
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"id": "A", "balance": 1}, 409, nil)
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"id": "N", "balance": -1}, 400, nil)

	// 2️⃣ 提款成功
	var out bank.Outcome
	doJSON(t, cli, "POST", ts.URL+"/accounts/A/withdraw", map[string]any{"amount": 700}, 200, &out)
	assert.Equal(t, bank.Succeeded(300), out)

	// 3️⃣ 提款被拒：餘額不足 409、非法金額 400，仍回傳 Outcome 本體
	out = bank.Outcome{}
	doJSON(t, cli, "POST", ts.URL+"/accounts/A/withdraw", map[string]any{"amount": 700}, 409, &out)
	assert.Equal(t, bank.Declined(bank.ReasonInsufficientFunds), out)
	out = bank.Outcome{}
	doJSON(t, cli, "POST", ts.URL+"/accounts/A/withdraw", map[string]any{"amount": 0}, 400, &out)
	assert.Equal(t, bank.Declined(bank.ReasonInvalidAmount), out)
	out = bank.Outcome{}
	doJSON(t, cli, "POST", ts.URL+"/accounts/A/withdraw", map[string]any{"amount": -5}, 400, &out)
	assert.Equal(t, bank.Declined(bank.ReasonInvalidAmount), out)

	// 4️⃣ 不存在的帳戶 → 404
	var errBody map[string]string
	doJSON(t, cli, "POST", ts.URL+"/accounts/missing/withdraw", map[string]any{"amount": 1}, 404, &errBody)
	assert.Contains(t, errBody["error"], "not found")

	// 5️⃣ 查詢帳戶（根路徑與 /api/v1 前綴）
	var got bank.Account
	doJSON(t, cli, "GET", ts.URL+"/accounts/A", nil, 200, &got)
	assert.Equal(t, int64(300), got.Balance)
	doJSON(t, cli, "GET", ts.URL+"/api/v1/accounts/A", nil, 200, &got)
	assert.Equal(t, int64(300), got.Balance)
	doJSON(t, cli, "GET", ts.URL+"/accounts/missing", nil, 404, nil)

	// 6️⃣ 交易日誌：成功與被拒都會記錄，順序為完成順序
	var logs []bank.Log
	doJSON(t, cli, "GET", ts.URL+"/accounts/A/logs", nil, 200, &logs)
	require.Len(t, logs, 4)
	assert.Equal(t, bank.StatusSucceeded, logs[0].Status)
	assert.Equal(t, int64(300), logs[0].Balance)
	assert.Equal(t, bank.ReasonInsufficientFunds, logs[1].Reason)
	assert.Equal(t, bank.ReasonInvalidAmount, logs[2].Reason)
	doJSON(t, cli, "GET", ts.URL+"/accounts/missing/logs", nil, 404, nil)

	// 7️⃣ persist：開戶 ×2 + 成功提款 ×1；被拒與錯誤不觸發
	assert.Equal(t, int32(3), atomic.LoadInt32(persistCalls))
}

// TestWithdrawToZeroReportsBalance 驗證提領至 0 的回應仍帶有 new_balance 欄位。
func TestWithdrawToZeroReportsBalance(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	cli := ts.Client()
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"id": "Z", "balance": 50}, 201, nil)

	var body map[string]any
	doJSON(t, cli, "POST", ts.URL+"/accounts/Z/withdraw", map[string]any{"amount": 50}, 200, &body)
	assert.Equal(t, "succeeded", body["status"])
	require.Contains(t, body, "new_balance")
	assert.Equal(t, float64(0), body["new_balance"])
}

// TestDrillEndpoint 驗證 /drills 在 serialized 策略下重現經典情境時維持不變式。
func TestDrillEndpoint(t *testing.T) {
	ts, persistCalls := newTestServer(t, bank.SleepHook(5*time.Millisecond))
	cli := ts.Client()

	var resp struct {
		Strategy     string `json:"strategy"`
		AccountID    string `json:"account_id"`
		Start        int64  `json:"start"`
		FinalBalance int64  `json:"final_balance"`
		Consistent   bool   `json:"consistent"`
		Results      []struct {
			RequestID string                 `json:"request_id"`
			Request   bank.WithdrawalRequest `json:"request"`
			Outcome   bank.Outcome           `json:"outcome"`
			Error     string                 `json:"error"`
		} `json:"results"`
	}
	doJSON(t, cli, "POST", ts.URL+"/api/v1/drills",
		map[string]any{"balance": 1000, "amounts": []int64{700, 700}}, 200, &resp)

	assert.Equal(t, "serialized", resp.Strategy)
	assert.NotEmpty(t, resp.AccountID)
	assert.Equal(t, int64(1000), resp.Start)
	assert.Equal(t, int64(300), resp.FinalBalance)
	assert.True(t, resp.Consistent)
	require.Len(t, resp.Results, 2)

	succeeded := 0
	for _, r := range resp.Results {
		assert.Empty(t, r.Error)
		assert.Equal(t, resp.AccountID, r.Request.AccountID)
		if r.Outcome.OK() {
			succeeded++
		} else {
			assert.Equal(t, bank.ReasonInsufficientFunds, r.Outcome.Reason)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(persistCalls))

	// ❌ 空的 amounts、重複的帳戶 ID
	doJSON(t, cli, "POST", ts.URL+"/drills", map[string]any{"balance": 1, "amounts": []int64{}}, 400, nil)
	doJSON(t, cli, "POST", ts.URL+"/drills",
		map[string]any{"account_id": resp.AccountID, "balance": 1, "amounts": []int64{1}}, 409, nil)
}

// TestMethodNotAllowedAndBadInput 驗證錯誤方法、錯誤路徑與錯誤 JSON。
func TestMethodNotAllowedAndBadInput(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	cli := ts.Client()
	doJSON(t, cli, "POST", ts.URL+"/accounts", map[string]any{"id": "A", "balance": 10}, 201, nil)

	doJSON(t, cli, "GET", ts.URL+"/accounts", nil, 405, nil)
	doJSON(t, cli, "POST", ts.URL+"/accounts/A", nil, 405, nil)
	doJSON(t, cli, "GET", ts.URL+"/accounts/A/withdraw", nil, 405, nil)
	doJSON(t, cli, "POST", ts.URL+"/accounts/A/logs", nil, 405, nil)
	doJSON(t, cli, "GET", ts.URL+"/drills", nil, 405, nil)
	doJSON(t, cli, "GET", ts.URL+"/accounts/A/deposit", nil, 404, nil)

	for _, path := range []string{"/accounts", "/accounts/A/withdraw", "/drills"} {
		req, err := http.NewRequest("POST", ts.URL+path, bytes.NewBufferString("{bad json}"))
		require.NoError(t, err)
		resp, err := cli.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	var health map[string]string
	doJSON(t, cli, "GET", ts.URL+"/health", nil, 200, &health)
	assert.Equal(t, "ok", health["status"])
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		bank.ErrNotFound:         http.StatusNotFound,
		bank.ErrBadAmount:        http.StatusBadRequest,
		bank.ErrInvalidBalance:   http.StatusBadRequest,
		bank.ErrInsufficient:     http.StatusConflict,
		bank.ErrAccountExists:    http.StatusConflict,
		bank.ErrConflict:         http.StatusConflict,
		context.DeadlineExceeded: http.StatusServiceUnavailable,
		errors.New("boom"):       http.StatusInternalServerError,
	}
	cases[fmt.Errorf("lookup: %w", bank.ErrNotFound)] = http.StatusNotFound
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
