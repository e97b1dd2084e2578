package harness_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"ledger/internal/bank"
	"ledger/internal/harness"
	"ledger/internal/lock"
	"ledger/internal/storage"
)

// barrier 讓前 n 個讀完餘額的提款互相等待，使 naive 的 lost update 每次都發生。
func barrier(n int) bank.Hook {
	var mu sync.Mutex
	arrived := 0
	all := make(chan struct{})
	return func(ctx context.Context, _ string) {
		mu.Lock()
		arrived++
		if arrived == n {
			close(all)
		}
		mu.Unlock()
		select {
		case <-all:
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
		}
	}
}

func newBank(t *testing.T, build func(bank.CASStore) bank.Withdrawer) *bank.Bank {
	t.Helper()
	store := storage.NewMemoryStore()
	b, err := bank.New(store, build(store))
	require.NoError(t, err)
	return b
}

// TestCanonicalNaiveOverdraws 驗證 naive 策略在經典情境下兩筆 700 都成功，最終餘額與成功總額不符。
func TestCanonicalNaiveOverdraws(t *testing.T) {
	b := newBank(t, func(s bank.CASStore) bank.Withdrawer { return bank.NewNaiveWithdrawer(s, barrier(2)) })
	h := harness.New(zaptest.NewLogger(t))

	sc := harness.Canonical("A")
	report, err := h.RunScenario(context.Background(), b, sc)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded(), "both withdrawals pass the stale check")
	assert.Equal(t, int64(300), report.FinalBalance("A"))
	assert.Equal(t, int64(1400), report.Debited("A"))
	assert.False(t, report.Consistent("A", sc.Start))
}

// TestCanonicalSerialized 驗證 serialized 策略：恰好一筆成功、一筆餘額不足，最終 300。
func TestCanonicalSerialized(t *testing.T) {
	b := newBank(t, func(s bank.CASStore) bank.Withdrawer {
		return bank.NewSerializedWithdrawer(s, lock.NewKeyedMutex(), bank.SleepHook(5*time.Millisecond))
	})
	h := harness.New(nil)

	sc := harness.Canonical("")
	report, err := h.RunScenario(context.Background(), b, sc)
	require.NoError(t, err)
	require.Len(t, report.Balances, 1)

	var id string
	for k := range report.Balances {
		id = k
	}
	assert.NotEmpty(t, id, "generated account id")
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Declined(bank.ReasonInsufficientFunds))
	assert.Zero(t, report.Failed())
	assert.Equal(t, int64(300), report.FinalBalance(id))
	assert.True(t, report.Consistent(id, sc.Start))

	for _, res := range report.Results {
		assert.Equal(t, id, res.Request.AccountID)
		if res.Outcome.OK() {
			assert.Equal(t, int64(300), res.Outcome.NewBalance)
		}
	}
}

// TestRunPreservesOrder 驗證 Results 與輸入請求同順序，且每筆都有唯一 RequestID。
func TestRunPreservesOrder(t *testing.T) {
	ctx := context.Background()
	b := newBank(t, func(s bank.CASStore) bank.Withdrawer {
		return bank.NewSerializedWithdrawer(s, lock.NewKeyedMutex(), nil)
	})
	_, err := b.Open(ctx, "A", 100)
	require.NoError(t, err)
	_, err = b.Open(ctx, "B", 100)
	require.NoError(t, err)

	reqs := []bank.WithdrawalRequest{
		{AccountID: "A", Amount: 10},
		{AccountID: "B", Amount: 0},
		{AccountID: "A", Amount: 20},
		{AccountID: "B", Amount: 500},
	}
	report, err := harness.New(nil).Run(ctx, b, reqs)
	require.NoError(t, err)
	require.Len(t, report.Results, len(reqs))

	ids := map[string]bool{}
	for i, res := range report.Results {
		assert.Equal(t, reqs[i], res.Request)
		assert.NotEmpty(t, res.RequestID)
		ids[res.RequestID] = true
	}
	assert.Len(t, ids, len(reqs))

	assert.Equal(t, bank.Declined(bank.ReasonInvalidAmount), report.Results[1].Outcome)
	assert.Equal(t, bank.Declined(bank.ReasonInsufficientFunds), report.Results[3].Outcome)
	assert.Equal(t, int64(70), report.FinalBalance("A"))
	assert.Equal(t, int64(100), report.FinalBalance("B"))
	assert.True(t, report.Consistent("A", 100))
	assert.True(t, report.Consistent("B", 100))
}

// stubLedger 以固定回應模擬帳本，用來觀察錯誤路徑。
type stubLedger struct {
	withdrawErr error
	balanceErr  error
}

func (s stubLedger) Withdraw(context.Context, string, int64) (bank.Outcome, error) {
	if s.withdrawErr != nil {
		return bank.Outcome{}, s.withdrawErr
	}
	return bank.Succeeded(0), nil
}

func (s stubLedger) Balance(context.Context, string) (int64, error) {
	return 0, s.balanceErr
}

// TestRunRecordsFailures 驗證單筆錯誤記錄在 Result.Err，不影響其他請求也不算拒絕，
// 並彙總為一筆警告日誌。
func TestRunRecordsFailures(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	unavailable := errors.New("store unavailable")
	report, err := harness.New(zap.New(core)).Run(context.Background(), stubLedger{withdrawErr: unavailable},
		harness.Scenario{AccountID: "A", Amounts: []int64{1, 2, 3}}.Requests())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Failed())
	assert.Zero(t, report.Succeeded())
	assert.Zero(t, report.Declined(bank.ReasonInsufficientFunds))
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, unavailable)
	}

	summary := observed.FilterMessage("drill finished with failed requests").All()
	require.Len(t, summary, 1)
	fields := summary[0].ContextMap()
	assert.Equal(t, int64(3), fields["failed"])
	assert.Contains(t, fields["first_error"], "store unavailable")
}

// TestRunWithoutFailuresLogsNoSummary 驗證全部成功時不輸出失敗彙總。
func TestRunWithoutFailuresLogsNoSummary(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	report, err := harness.New(zap.New(core)).Run(context.Background(), stubLedger{},
		harness.Scenario{AccountID: "A", Amounts: []int64{1, 2}}.Requests())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded())
	assert.Zero(t, observed.Len())
}

// TestRunFinalBalanceError 驗證讀取最終餘額失敗時 Run 回傳錯誤，但仍附上已完成的結果。
func TestRunFinalBalanceError(t *testing.T) {
	report, err := harness.New(nil).Run(context.Background(), stubLedger{balanceErr: bank.ErrNotFound},
		[]bank.WithdrawalRequest{{AccountID: "A", Amount: 1}})
	require.ErrorIs(t, err, bank.ErrNotFound)
	assert.Len(t, report.Results, 1)
}

func TestCanonicalScenario(t *testing.T) {
	sc := harness.Canonical("acc")
	assert.Equal(t, int64(1000), sc.Start)
	assert.Equal(t, []bank.WithdrawalRequest{
		{AccountID: "acc", Amount: 700},
		{AccountID: "acc", Amount: 700},
	}, sc.Requests())
}
