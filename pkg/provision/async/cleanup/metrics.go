package async_cleanup

import (
	"context"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/metrics"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

const (
	inFlightCountEventName = "InFlightAttemptPollingCheck"
	pendingCountEventName  = "PendingAccountPollingCheck"
	sweepResultsEventName  = "CleanupSweepPollingCheck"
)

func (p *service) metricsGaugeWorker(ctx context.Context) error {
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			p.recordInFlightCountEvent(ctx)
			p.recordPendingCountEvent(ctx)
			p.recordSweepResultsEvent(ctx)

			delay = time.Second - time.Since(start)
		}
	}
}

func (p *service) recordInFlightCountEvent(ctx context.Context) {
	count, err := p.data.CountInFlightIdempotencyKeys(ctx)
	if err != nil {
		return
	}

	metrics.RecordEvent(ctx, inFlightCountEventName, map[string]interface{}{
		"count": count,
	})
}

func (p *service) recordPendingCountEvent(ctx context.Context) {
	count, err := p.data.CountAccountsByStatus(ctx, account.StatusPending)
	if err != nil {
		return
	}

	metrics.RecordEvent(ctx, pendingCountEventName, map[string]interface{}{
		"count": count,
	})
}

func (p *service) recordSweepResultsEvent(ctx context.Context) {
	p.metricsMu.Lock()
	reconciled := p.reconciled
	compensated := p.compensated
	p.reconciled = 0
	p.compensated = 0
	p.metricsMu.Unlock()

	metrics.RecordEvent(ctx, sweepResultsEventName, map[string]interface{}{
		"reconciled":  reconciled,
		"compensated": compensated,
	})
}
