// internal/bank/metrics.go

package bank

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ledger/internal/bank"

// metrics 封裝提款相關的 OpenTelemetry instruments。
// 預設使用全域 MeterProvider；未設定 SDK 時為 noop，不影響業務邏輯。
type metrics struct {
	withdrawals metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	withdrawals, err := meter.Int64Counter("ledger.withdrawals",
		metric.WithDescription("Withdrawal attempts by strategy and result"),
		metric.WithUnit("{withdrawal}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("ledger.withdraw.duration",
		metric.WithDescription("Time spent in Withdraw, including lock waits and retries"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &metrics{withdrawals: withdrawals, duration: duration}, nil
}

// record 記錄單次提款；err 非 nil 時 result 為 "error"，否則為 outcome 狀態（與拒絕原因）。
func (m *metrics) record(ctx context.Context, strategy string, out Outcome, err error, elapsed time.Duration) {
	result := string(out.Status)
	if err != nil {
		result = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("strategy", strategy),
		attribute.String("result", result),
	}
	if out.Reason != "" {
		attrs = append(attrs, attribute.String("reason", string(out.Reason)))
	}
	set := metric.WithAttributes(attrs...)
	m.withdrawals.Add(ctx, 1, set)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), set)
}
