// internal/bank/backoff.go

package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// optimisticBaseDelay 為衝突後第一次重試的退避基準。
	optimisticBaseDelay = time.Millisecond
	// maxBackoff 限制單次退避間隔，避免高競爭時重試間隔無限放大。
	maxBackoff = 50 * time.Millisecond
	// backoffJitter 為隨機化比例：實際延遲落在 interval*(1±backoffJitter)。
	backoffJitter = 0.5
)

// newRetryBackOff 建立 optimistic 策略單次提款使用的指數退避。
// 不設總時間上限：停止條件由 maxAttempts 與 ctx 決定。
func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = optimisticBaseDelay
	b.MaxInterval = maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = backoffJitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleepWithContext 睡眠 d，ctx 結束時提前回傳錯誤。
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	}
}
