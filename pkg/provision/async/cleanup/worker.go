package async_cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/metrics"
	"github.com/cloudfusionadmin/filevaults/pkg/payment"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
	"github.com/cloudfusionadmin/filevaults/pkg/retry"
)

const maxPromoteAttempts = 5

func (p *service) worker(serviceCtx context.Context, interval time.Duration) error {
	delay := interval

	err := retry.Loop(
		func() (err error) {
			time.Sleep(delay)

			return p.sweep(serviceCtx)
		},
		retry.NonRetriableErrors(context.Canceled),
	)

	return err
}

// sweep handles a single batch of stale in-flight attempts. Re-running a
// sweep over the same entries is a no-op.
func (p *service) sweep(ctx context.Context) error {
	createdBefore := time.Now().Add(-p.conf.attemptTTL.Get(ctx))

	items, err := p.data.GetStaleIdempotencyKeys(ctx, createdBefore, p.conf.workerBatchSize.Get(ctx))
	if err == idempotency.ErrNotFound {
		return nil
	} else if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)

		go func(entry *idempotency.Record) {
			defer wg.Done()

			tracedCtx := ctx
			if nr, ok := ctx.Value(metrics.NewRelicContextKey).(*newrelic.Application); ok {
				m := nr.StartTransaction("async__cleanup_service__handle_stale")
				defer m.End()
				tracedCtx = newrelic.NewContext(ctx, m)
			}

			if err := p.handleStale(tracedCtx, entry); err != nil {
				p.log.WithError(err).WithField("idempotency_key", entry.Key).Warn("failure handling stale attempt")
			}
		}(item)
	}
	wg.Wait()

	return nil
}

func (p *service) handleStale(ctx context.Context, entry *idempotency.Record) error {
	log := p.log.WithFields(logrus.Fields{
		"method":          "handleStale",
		"idempotency_key": entry.Key,
	})

	// The attempt died before a payment intent was ever created, so there's
	// nothing external to clean up.
	if entry.IntentId == nil {
		return p.complete(ctx, entry.Key, &idempotency.Outcome{
			Status: account.StatusRejected,
		})
	}

	intent, err := p.gateway.GetIntent(ctx, *entry.IntentId)
	if errors.Is(err, payment.ErrIntentNotFound) {
		return p.compensate(ctx, log, entry, nil)
	} else if err != nil {
		return err
	}

	if intent.Status == payment.StatusConfirmed {
		return p.reconcile(ctx, log, entry)
	}

	return p.compensate(ctx, log, entry, intent)
}

// reconcile finishes an attempt whose intent was confirmed. The ordering
// contract guarantees the pending record was written before the confirm, so
// it must exist.
func (p *service) reconcile(ctx context.Context, log *logrus.Entry, entry *idempotency.Record) error {
	record, err := p.data.GetAccountByIntent(ctx, *entry.IntentId)
	if err != nil {
		log.WithError(err).Warn("confirmed intent has no account record")
		return err
	}

	for attempt := 0; record.Status == account.StatusPending; attempt++ {
		if attempt >= maxPromoteAttempts {
			return errors.New("promote contention not resolving")
		}

		err := p.data.PromoteAccount(ctx, record.AccountId, record.Version)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, account.ErrVersionMismatch), errors.Is(err, account.ErrNotPending):
			record, err = p.data.GetAccount(ctx, record.AccountId)
			if err != nil {
				return err
			}

			if record.Status == account.StatusRejected {
				log.WithField("account", record.AccountId).Warn("confirmed intent bound to a rejected record")
				return errors.New("inconsistent account record state")
			}
		default:
			return err
		}
	}

	if err := p.complete(ctx, entry.Key, &idempotency.Outcome{
		AccountId: record.AccountId,
		Status:    account.StatusActive,
	}); err != nil {
		return err
	}

	p.metricsMu.Lock()
	p.reconciled++
	p.metricsMu.Unlock()

	return nil
}

// compensate unwinds an attempt whose intent never confirmed. The intent is
// canceled first: once that lands, it can never be charged, and rejecting
// the record afterwards is safe.
func (p *service) compensate(ctx context.Context, log *logrus.Entry, entry *idempotency.Record, intent *payment.Intent) error {
	if intent != nil && intent.Status != payment.StatusCanceled {
		err := p.gateway.CancelIntent(ctx, *entry.IntentId)
		if errors.Is(err, payment.ErrNotCancelable) {
			// Confirmed while we were looking at it
			return p.reconcile(ctx, log, entry)
		} else if err != nil {
			return err
		}
	}

	record, err := p.data.GetAccountByIntent(ctx, *entry.IntentId)
	outcome := &idempotency.Outcome{Status: account.StatusRejected}
	switch {
	case err == nil:
		if err := p.data.RejectAccount(ctx, record.AccountId); err != nil {
			return err
		}
		outcome.AccountId = record.AccountId
	case errors.Is(err, account.ErrNotFound):
	default:
		return err
	}

	if err := p.complete(ctx, entry.Key, outcome); err != nil {
		return err
	}

	p.metricsMu.Lock()
	p.compensated++
	p.metricsMu.Unlock()

	return nil
}

func (p *service) complete(ctx context.Context, key string, outcome *idempotency.Outcome) error {
	err := p.data.CompleteIdempotencyKey(ctx, key, outcome)
	if errors.Is(err, idempotency.ErrNotFound) {
		// The entry expired out from under us
		return nil
	}
	return err
}
