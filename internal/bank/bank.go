// internal/bank/bank.go

// Package bank 定義帳本核心：帳戶開立、提款（三種並行策略）、餘額查詢與交易日誌。
// 餘額本身只存在於 Store 中，所有變更只能經由 Withdrawer；Bank 不直接觸碰儲存細節，
// 因此所有並行協調邏輯都集中在提款策略內。
// 金額以 int64 的最小貨幣單位（如分）儲存，避免浮點誤差。
package bank

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Bank 為帳本的組合根 (Composition Root)：
// - store：唯一持有餘額的共享資源。
// - w：組裝時選定的提款策略（naive / serialized / optimistic）。
// - mu + journal：每個帳戶的交易日誌，與餘額分開保護，不參與提款協調。
type Bank struct {
	store   Store
	w       Withdrawer
	log     *zap.Logger
	metrics *metrics

	mu      sync.Mutex
	journal map[string][]Log
}

// Option 調整 Bank 的可選相依。
type Option func(*options)

type options struct {
	logger        *zap.Logger
	meterProvider metric.MeterProvider
}

// WithLogger 注入 zap logger；未提供時使用 zap.NewNop()。
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMeterProvider 注入 OpenTelemetry MeterProvider；未提供時使用全域 provider。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New 以指定的 Store 與提款策略建立帳本。
func New(store Store, w Withdrawer, opts ...Option) (*Bank, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return &Bank{
		store:   store,
		w:       w,
		log:     o.logger.With(zap.String("strategy", w.Name())),
		metrics: m,
		journal: make(map[string][]Log),
	}, nil
}

// Strategy 回傳組裝時選定的提款策略名稱。
func (b *Bank) Strategy() string { return b.w.Name() }

// Open 以初始餘額開立帳戶；初始餘額不得為負，id 為空時以 UUID 產生。
func (b *Bank) Open(ctx context.Context, id string, balance int64) (*Account, error) {
	if balance < 0 {
		return nil, ErrInvalidBalance
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := b.store.Create(ctx, id, balance); err != nil {
		return nil, err
	}
	b.mu.Lock()
	delete(b.journal, id)
	b.mu.Unlock()
	b.log.Info("account opened", zap.String("account", id), zap.Int64("balance", balance))
	return &Account{ID: id, Balance: balance}, nil
}

// Get 依 ID 取得帳戶目前狀態；不存在回傳 ErrNotFound。
func (b *Bank) Get(ctx context.Context, id string) (*Account, error) {
	bal, err := b.store.Balance(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Account{ID: id, Balance: bal}, nil
}

// Balance 回傳帳戶目前餘額。
func (b *Bank) Balance(ctx context.Context, id string) (int64, error) {
	return b.store.Balance(ctx, id)
}

// Withdraw 透過組裝的策略提款，並記錄日誌、指標與交易紀錄。
// 拒絕為正常結果 (err == nil)；儲存層失敗以 error 回傳且不記入交易日誌。
func (b *Bank) Withdraw(ctx context.Context, id string, amount int64) (Outcome, error) {
	start := time.Now()
	out, err := b.w.Withdraw(ctx, id, amount)
	b.metrics.record(ctx, b.w.Name(), out, err, time.Since(start))

	fields := []zap.Field{zap.String("account", id), zap.Int64("amount", amount)}
	if err != nil {
		b.log.Error("withdraw failed", append(fields, zap.Error(err))...)
		return Outcome{}, err
	}
	if out.OK() {
		b.log.Debug("withdraw succeeded", append(fields, zap.Int64("new_balance", out.NewBalance))...)
	} else {
		b.log.Info("withdraw declined", append(fields, zap.String("reason", string(out.Reason)))...)
	}
	if b.journaled(ctx, id, out) {
		b.appendLog(id, amount, out)
	}
	return out, nil
}

// journaled 判斷結果是否寫入交易日誌：只記錄存在的帳戶。
// 非法金額在查詢帳戶前就被拒，因此需另外確認帳戶存在，避免為任意 ID 累積日誌。
func (b *Bank) journaled(ctx context.Context, id string, out Outcome) bool {
	if out.Reason != ReasonInvalidAmount {
		return true
	}
	if _, err := b.store.Balance(ctx, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.log.Warn("journal lookup failed", zap.String("account", id), zap.Error(err))
		}
		return false
	}
	return true
}

func (b *Bank) appendLog(id string, amount int64, out Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal[id] = append(b.journal[id], Log{
		Time:      time.Now(),
		Amount:    amount,
		Direction: "out",
		Status:    out.Status,
		Reason:    out.Reason,
		Balance:   out.NewBalance,
		Note:      "withdraw",
	})
}

// Logs 回傳指定帳戶的交易日誌（值拷貝），順序為提款完成順序。
// 帳戶不存在時回傳 ErrNotFound。
func (b *Bank) Logs(ctx context.Context, id string) ([]Log, error) {
	if _, err := b.store.Balance(ctx, id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Log, len(b.journal[id]))
	copy(out, b.journal[id])
	return out, nil
}
