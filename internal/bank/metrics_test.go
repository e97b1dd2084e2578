package bank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"ledger/internal/bank"
	"ledger/internal/lock"
	"ledger/internal/storage"
)

// TestWithdrawMetrics 驗證每次提款依結果累加 ledger.withdrawals 計數器並記錄延遲。
func TestWithdrawMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	store := storage.NewMemoryStore()
	b, err := bank.New(store, bank.NewSerializedWithdrawer(store, lock.NewKeyedMutex(), nil), bank.WithMeterProvider(mp))
	require.NoError(t, err)
	_, err = b.Open(ctx, "A", 100)
	require.NoError(t, err)

	_, _ = b.Withdraw(ctx, "A", 60)      // succeeded
	_, _ = b.Withdraw(ctx, "A", 60)      // declined: insufficient
	_, _ = b.Withdraw(ctx, "A", -1)      // declined: invalid amount
	_, _ = b.Withdraw(ctx, "missing", 1) // error

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	var histCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Equal(t, "ledger.withdrawals", m.Name)
				for _, dp := range data.DataPoints {
					strategy, _ := dp.Attributes.Value(attribute.Key("strategy"))
					assert.Equal(t, "serialized", strategy.AsString())
					result, _ := dp.Attributes.Value(attribute.Key("result"))
					reason, _ := dp.Attributes.Value(attribute.Key("reason"))
					counts[result.AsString()+"/"+reason.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Equal(t, "ledger.withdraw.duration", m.Name)
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}

	assert.Equal(t, map[string]int64{
		"succeeded/":                  1,
		"declined/insufficient_funds": 1,
		"declined/invalid_amount":     1,
		"error/":                      1,
	}, counts)
	assert.Equal(t, uint64(4), histCount)
}
