// Package provision coordinates paid account signup across the account store
// and the payment gateway. Neither system supports distributed transactions,
// so the coordinator relies on a strict ordering contract and an idempotency
// registry to keep the two consistent: a pending account record is durably
// written and bound to the payment intent before the intent is ever
// confirmed, which guarantees a confirmed charge can always be traced back to
// the record it paid for.
package provision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cloudfusionadmin/filevaults/pkg/metrics"
	"github.com/cloudfusionadmin/filevaults/pkg/payment"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
	"github.com/cloudfusionadmin/filevaults/pkg/retry"
	"github.com/cloudfusionadmin/filevaults/pkg/retry/backoff"
)

const (
	metricsStructName = "provision.Coordinator"

	// Bound on the promote reapply loop. Version conflicts are only ever
	// caused by the cleanup sweeper racing the same record, so contention is
	// short-lived.
	maxPromoteAttempts = 5
)

// Result is the outcome of a provisioning attempt.
type Result struct {
	AccountId string
	Status    account.Status

	// ClientSecret is set when the attempt is waiting on a client-side
	// payment method attachment.
	ClientSecret string
}

type Coordinator struct {
	log     *logrus.Entry
	conf    *conf
	data    data.Provider
	gateway payment.Gateway
}

func NewCoordinator(data data.Provider, gateway payment.Gateway, configProvider ConfigProvider) *Coordinator {
	return &Coordinator{
		log:     logrus.StandardLogger().WithField("type", "provision/coordinator"),
		conf:    configProvider(),
		data:    data,
		gateway: gateway,
	}
}

// Provision drives a signup request to a terminal outcome, or as far as it
// can get before needing client-side input or a retry.
//
// The same idempotency key always maps to at most one charge. Re-submitting
// a completed request replays the memoized outcome without touching the
// gateway. Re-submitting a suspended request resumes from the recorded
// payment intent instead of creating a new one.
func (c *Coordinator) Provision(ctx context.Context, req *Request) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Provision")
	defer tracer.End()

	// Validation failures must not leave any trace, so they're checked
	// before the idempotency reservation.
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}

	amount, err := c.amountForPlan(ctx, req.Plan)
	if err != nil {
		return nil, err
	}

	log := c.log.WithFields(logrus.Fields{
		"method":          "Provision",
		"idempotency_key": req.IdempotencyKey,
	})

	expiry := time.Now().Add(c.conf.idempotencyRetention.Get(ctx))
	entry, err := c.data.ReserveIdempotencyKey(ctx, req.IdempotencyKey, req.Fingerprint(), expiry)
	switch {
	case err == nil:
	case errors.Is(err, idempotency.ErrFingerprintMismatch):
		return nil, ErrIdempotencyConflict
	case errors.Is(err, idempotency.ErrAttemptInProgress):
		return nil, ErrAttemptInProgress
	default:
		log.WithError(err).Warn("failure reserving idempotency key")
		tracer.OnError(err)
		return nil, ErrInternal
	}

	if entry.State == idempotency.StateCompleted {
		metrics.RecordCount(ctx, "provision_memoized_replay", 1)
		return &Result{
			AccountId: entry.Outcome.AccountId,
			Status:    entry.Outcome.Status,
		}, nil
	}

	res, err := c.drive(ctx, log, req, entry, amount)
	if err != nil {
		tracer.OnError(err)
	}
	return res, err
}

// drive executes the provisioning state machine while holding the
// reservation for the idempotency key.
func (c *Coordinator) drive(ctx context.Context, log *logrus.Entry, req *Request, entry *idempotency.Record, amount uint64) (*Result, error) {
	intent, err := c.resumeOrCreateIntent(ctx, log, req, entry, amount)
	if err != nil {
		return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "failure establishing payment intent")
	}

	log = log.WithField("intent", intent.Id)

	// The pending record must be durable before the intent can be confirmed.
	record, err := c.ensureAccountRecord(ctx, log, req, intent)
	if err != nil {
		return nil, err
	}

	status := intent.Status

	if status == payment.StatusCreated {
		if len(req.PaymentMethodRef) == 0 {
			// The caller attaches a method client-side and re-submits with
			// the same key.
			if err := c.data.SuspendIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
				log.WithError(err).Warn("failure suspending idempotency key")
				return nil, ErrInternal
			}

			return &Result{
				AccountId:    record.AccountId,
				Status:       account.StatusPending,
				ClientSecret: intent.ClientSecret,
			}, nil
		}

		err = c.withGatewayRetry(ctx, func() error {
			return c.gateway.AttachMethod(ctx, intent.Id, req.PaymentMethodRef)
		})
		switch {
		case err == nil:
			status = payment.StatusMethodAttached
		case errors.Is(err, payment.ErrDeclined):
			return c.completeRejected(ctx, log, req.IdempotencyKey, record, intent.Id)
		default:
			return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "failure attaching payment method")
		}
	}

	if status == payment.StatusMethodAttached {
		var confirmed payment.IntentStatus
		err = c.withGatewayRetry(ctx, func() error {
			var err error
			confirmed, err = c.gateway.ConfirmIntent(ctx, intent.Id)
			return err
		})
		switch {
		case err == nil:
			status = confirmed
		case errors.Is(err, payment.ErrDeclined):
			return c.completeRejected(ctx, log, req.IdempotencyKey, record, intent.Id)
		default:
			return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "failure confirming payment intent")
		}
	}

	if status != payment.StatusConfirmed {
		err := errors.Errorf("intent in unexpected %s state", status.String())
		return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "intent not confirmable")
	}

	return c.completeActive(ctx, log, req.IdempotencyKey, record)
}

// resumeOrCreateIntent reuses the intent recorded against a suspended
// attempt when it's still usable, and otherwise creates a fresh one. The
// intent id is journaled against the idempotency key before anything else
// happens, so the cleanup sweeper can always find it.
func (c *Coordinator) resumeOrCreateIntent(ctx context.Context, log *logrus.Entry, req *Request, entry *idempotency.Record, amount uint64) (*payment.Intent, error) {
	if entry.IntentId != nil {
		var intent *payment.Intent
		err := c.withGatewayRetry(ctx, func() error {
			var err error
			intent, err = c.gateway.GetIntent(ctx, *entry.IntentId)
			return err
		})
		switch {
		case err == nil:
			switch intent.Status {
			case payment.StatusCanceled, payment.StatusFailed:
				// Dead intent. Release its account record, if one was
				// written, so the username isn't held hostage.
				if err := c.rejectRecordForIntent(ctx, log, intent.Id); err != nil {
					return nil, err
				}
			default:
				return intent, nil
			}
		case errors.Is(err, payment.ErrIntentNotFound):
		default:
			return nil, err
		}
	}

	var intent *payment.Intent
	err := c.withGatewayRetry(ctx, func() error {
		var err error
		intent, err = c.gateway.CreateIntent(ctx, amount, c.conf.currency.Get(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := c.data.MarkIdempotencyIntent(ctx, req.IdempotencyKey, intent.Id); err != nil {
		log.WithError(err).Warn("failure journaling intent against idempotency key")
		return nil, err
	}

	return intent, nil
}

func (c *Coordinator) ensureAccountRecord(ctx context.Context, log *logrus.Entry, req *Request, intent *payment.Intent) (*account.Record, error) {
	existing, err := c.data.GetAccountByIntent(ctx, intent.Id)
	if err == nil {
		return existing, nil
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "failure loading account record")
	}

	record := &account.Record{
		AccountId: uuid.NewString(),

		Username:      req.Username,
		Email:         req.Email,
		Plan:          req.Plan,
		CredentialRef: req.CredentialRef,

		IntentId: intent.Id,

		Status: account.StatusPending,

		CreatedAt: time.Now(),
	}

	err = c.data.InsertPendingAccount(ctx, record)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, account.ErrExists):
		// The username is held by someone else's record. The intent can
		// never be used, so release it and finish the attempt terminally.
		c.bestEffortCancelIntent(ctx, log, intent.Id)
		if err := c.data.CompleteIdempotencyKey(ctx, req.IdempotencyKey, &idempotency.Outcome{
			Status: account.StatusRejected,
		}); err != nil {
			log.WithError(err).Warn("failure completing idempotency key")
		}
		return nil, ErrAccountExists
	case errors.Is(err, account.ErrIntentAlreadyBound):
		// Lost a race with another process resuming the same attempt
		existing, getErr := c.data.GetAccountByIntent(ctx, intent.Id)
		if getErr == nil {
			return existing, nil
		}
		return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, getErr, "failure loading account record")
	default:
		return nil, c.suspendAndFail(ctx, log, req.IdempotencyKey, err, "failure inserting pending account record")
	}
}

// completeActive promotes the pending record and memoizes the outcome. The
// promote is conditional on the record version, with a re-read-and-reapply
// loop to absorb races with the cleanup sweeper.
func (c *Coordinator) completeActive(ctx context.Context, log *logrus.Entry, key string, record *account.Record) (*Result, error) {
promoteLoop:
	for attempt := 0; ; attempt++ {
		if attempt >= maxPromoteAttempts {
			err := errors.New("promote contention not resolving")
			return nil, c.suspendAndFail(ctx, log, key, err, "failure promoting account record")
		}

		err := c.data.PromoteAccount(ctx, record.AccountId, record.Version)
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, account.ErrVersionMismatch), errors.Is(err, account.ErrNotPending):
			current, getErr := c.data.GetAccount(ctx, record.AccountId)
			if getErr != nil {
				return nil, c.suspendAndFail(ctx, log, key, getErr, "failure re-reading account record")
			}

			if current.Status == account.StatusActive {
				record = current
				break promoteLoop
			}
			if current.Status == account.StatusRejected {
				// Only possible if the record was compensated while the
				// intent was confirmed, which violates the ordering
				// contract. Surface it loudly.
				err := errors.New("confirmed intent bound to a rejected record")
				log.WithField("account", record.AccountId).Warn(err.Error())
				return nil, c.suspendAndFail(ctx, log, key, err, "inconsistent account record state")
			}

			record = current
		default:
			return nil, c.suspendAndFail(ctx, log, key, err, "failure promoting account record")
		}
	}

	if err := c.data.CompleteIdempotencyKey(ctx, key, &idempotency.Outcome{
		AccountId: record.AccountId,
		Status:    account.StatusActive,
	}); err != nil {
		// The account is live. Leave the key resumable so a retry can
		// memoize the outcome.
		return nil, c.suspendAndFail(ctx, log, key, err, "failure completing idempotency key")
	}

	metrics.RecordCount(ctx, "provision_success", 1)

	return &Result{
		AccountId: record.AccountId,
		Status:    account.StatusActive,
	}, nil
}

// completeRejected finishes a terminally declined attempt. A decline is an
// outcome, not an error.
func (c *Coordinator) completeRejected(ctx context.Context, log *logrus.Entry, key string, record *account.Record, intentId string) (*Result, error) {
	c.bestEffortCancelIntent(ctx, log, intentId)

	if err := c.data.RejectAccount(ctx, record.AccountId); err != nil {
		return nil, c.suspendAndFail(ctx, log, key, err, "failure rejecting account record")
	}

	if err := c.data.CompleteIdempotencyKey(ctx, key, &idempotency.Outcome{
		AccountId: record.AccountId,
		Status:    account.StatusRejected,
	}); err != nil {
		return nil, c.suspendAndFail(ctx, log, key, err, "failure completing idempotency key")
	}

	metrics.RecordCount(ctx, "provision_declined", 1)

	return &Result{
		AccountId: record.AccountId,
		Status:    account.StatusRejected,
	}, nil
}

func (c *Coordinator) rejectRecordForIntent(ctx context.Context, log *logrus.Entry, intentId string) error {
	record, err := c.data.GetAccountByIntent(ctx, intentId)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if err := c.data.RejectAccount(ctx, record.AccountId); err != nil {
		log.WithError(err).WithField("account", record.AccountId).Warn("failure rejecting account record")
		return err
	}
	return nil
}

func (c *Coordinator) bestEffortCancelIntent(ctx context.Context, log *logrus.Entry, intentId string) {
	err := c.withGatewayRetry(ctx, func() error {
		return c.gateway.CancelIntent(ctx, intentId)
	})
	if err != nil && !errors.Is(err, payment.ErrIntentNotFound) {
		// The cleanup sweeper picks it up if this never lands
		log.WithError(err).WithField("intent", intentId).Warn("failure canceling payment intent")
	}
}

// suspendAndFail parks the attempt so the same key can resume it, and maps
// the cause to an opaque retriable error.
func (c *Coordinator) suspendAndFail(ctx context.Context, log *logrus.Entry, key string, cause error, msg string) error {
	log.WithError(cause).Warn(msg)

	if err := c.data.SuspendIdempotencyKey(ctx, key); err != nil && !errors.Is(err, idempotency.ErrNotInFlight) {
		log.WithError(err).Warn("failure suspending idempotency key")
	}

	return ErrInternal
}

func (c *Coordinator) withGatewayRetry(ctx context.Context, action retry.Action) error {
	_, err := retry.Retry(
		action,
		retry.NonRetriableErrors(context.Canceled),
		retry.RetriableErrors(payment.ErrUnavailable),
		retry.Limit(uint(c.conf.maxGatewayAttempts.Get(ctx))),
		retry.BackoffWithJitter(
			backoff.BinaryExponential(c.conf.gatewayBackoff.Get(ctx)),
			c.conf.gatewayMaxBackoff.Get(ctx),
			0.1,
		),
	)
	return err
}

func (c *Coordinator) amountForPlan(ctx context.Context, plan string) (uint64, error) {
	switch plan {
	case PlanBasic:
		return c.conf.basicPlanAmount.Get(ctx), nil
	case PlanStandard:
		return c.conf.standardPlanAmount.Get(ctx), nil
	case PlanPremium:
		return c.conf.premiumPlanAmount.Get(ctx), nil
	}
	return 0, errors.Wrapf(ErrInvalidRequest, "unsupported plan %q", plan)
}

// GetStatus reports the current state of a provisioning attempt by its
// idempotency key.
func (c *Coordinator) GetStatus(ctx context.Context, idempotencyKey string) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetStatus")
	defer tracer.End()

	entry, err := c.data.GetIdempotencyKey(ctx, idempotencyKey)
	if errors.Is(err, idempotency.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		tracer.OnError(err)
		return nil, ErrInternal
	}

	if entry.State == idempotency.StateCompleted {
		return &Result{
			AccountId: entry.Outcome.AccountId,
			Status:    entry.Outcome.Status,
		}, nil
	}

	if entry.IntentId != nil {
		record, err := c.data.GetAccountByIntent(ctx, *entry.IntentId)
		if err == nil {
			return &Result{
				AccountId: record.AccountId,
				Status:    record.Status,
			}, nil
		} else if !errors.Is(err, account.ErrNotFound) {
			tracer.OnError(err)
			return nil, ErrInternal
		}
	}

	return &Result{Status: account.StatusPending}, nil
}
