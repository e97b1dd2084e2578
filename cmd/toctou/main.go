// cmd/toctou/main.go

// 示範 TOCTOU（time-of-check/time-of-use）競爭：
// 帳戶餘額 1000，同時發出兩筆 700 的提款，依序以 naive、serialized、optimistic 三種策略執行，
// 並輸出每筆結果、最終餘額以及不變式（最終餘額 = 初始 − 成功總額）是否成立。
//
// 儲存後端與鎖沿用服務設定（LEDGER_STORE / LEDGER_LOCKER ...）；
// 檢查與寫入之間的延遲由 LEDGER_RACE_DELAY 控制，未設定時使用 100ms 讓競爭穩定重現。

package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledger/internal/app"
	"ledger/internal/bank"
	"ledger/internal/config"
	"ledger/internal/harness"
	"ledger/internal/logging"
)

const defaultRaceDelay = 100 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if cfg.RaceDelay == 0 {
		cfg.RaceDelay = defaultRaceDelay
	}
	// 演練不寫快照
	cfg.DataFile = ""

	logger, _, err := logging.New(logging.Config{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	violations := 0
	for _, strategy := range []string{config.StrategyNaive, config.StrategySerialized, config.StrategyOptimistic} {
		ok, err := runOnce(ctx, cfg, strategy, logger)
		if err != nil {
			logger.Error("drill failed", zap.String("strategy", strategy), zap.Error(err))
			os.Exit(1)
		}
		if !ok {
			violations++
		}
	}
	logger.Info("done", zap.Int("strategies_violating_invariant", violations))
}

// runOnce 以指定策略執行一次經典情境，回傳不變式是否成立。
func runOnce(ctx context.Context, cfg config.Config, strategy string, logger *zap.Logger) (bool, error) {
	cfg.Strategy = strategy
	a, err := app.New(ctx, cfg, logger.Named(strategy))
	if err != nil {
		return false, err
	}
	defer func() { _ = a.Close() }()

	sc := harness.Canonical(strategy + "-" + uuid.NewString()[:8])
	report, err := harness.New(logger.Named(strategy)).RunScenario(ctx, a.Bank, sc)
	if err != nil {
		return false, err
	}

	for i, res := range report.Results {
		fields := []zap.Field{
			zap.String("strategy", strategy),
			zap.Int("request", i+1),
			zap.Int64("amount", res.Request.Amount),
		}
		switch {
		case res.Err != nil:
			logger.Warn("transaction failed", append(fields, zap.Error(res.Err))...)
		case res.Outcome.Status == bank.StatusSucceeded:
			logger.Info("transaction successful", append(fields, zap.Int64("new_balance", res.Outcome.NewBalance))...)
		default:
			logger.Info("transaction declined", append(fields, zap.String("reason", string(res.Outcome.Reason)))...)
		}
	}

	consistent := report.Consistent(sc.AccountID, sc.Start)
	logger.Info("final balance",
		zap.String("strategy", strategy),
		zap.String("account", sc.AccountID),
		zap.Int64("final", report.FinalBalance(sc.AccountID)),
		zap.Int64("debited", report.Debited(sc.AccountID)),
		zap.Bool("consistent", consistent))
	return consistent, nil
}
