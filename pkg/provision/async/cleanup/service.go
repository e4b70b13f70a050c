// Package async_cleanup implements the sweeper that drives abandoned
// provisioning attempts to a terminal state. An attempt is abandoned when its
// idempotency entry has been in flight for longer than the configured TTL
// with no caller re-driving it. The sweeper either reconciles (the payment
// intent was confirmed, so the pending record is promoted) or compensates
// (the intent is canceled and the record rejected).
package async_cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/payment"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/async"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data"
)

type service struct {
	log     *logrus.Entry
	conf    *conf
	data    data.Provider
	gateway payment.Gateway

	metricsMu   sync.Mutex
	reconciled  int
	compensated int
}

func New(data data.Provider, gateway payment.Gateway, configProvider ConfigProvider) async.Service {
	return &service{
		log:     logrus.StandardLogger().WithField("service", "cleanup"),
		conf:    configProvider(),
		data:    data,
		gateway: gateway,
	}
}

func (p *service) Start(ctx context.Context, interval time.Duration) error {
	go func() {
		err := p.worker(ctx, interval)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("cleanup processing loop terminated unexpectedly")
		}
	}()

	go func() {
		err := p.metricsGaugeWorker(ctx)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("cleanup metrics gauge loop terminated unexpectedly")
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}
