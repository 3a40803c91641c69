package dramauth

import (
	"context"

	"go.uber.org/zap"
)

// SweepExpiredTokens deletes every email token whose expiry has passed
// and returns how many were removed. It is safe to run concurrently with
// issuance and consumption.
func (e *Engine) SweepExpiredTokens(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	n, err := e.ledger.Sweep(ctx)
	if err != nil {
		return 0, e.internal("sweep tokens", err)
	}
	if n > 0 {
		e.metrics.Add(MetricTokensSwept, uint64(n))
		e.logger.Info("expired tokens swept", zap.Int("count", n))
	}
	return n, nil
}
