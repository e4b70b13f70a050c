// Package memory provides an in-process payment.Gateway for tests and local
// development, with hooks to simulate gateway failure modes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudfusionadmin/filevaults/pkg/payment"
)

type Gateway struct {
	mu      sync.Mutex
	intents map[string]*payment.Intent

	callCounts map[string]int

	declineNextConfirm  bool
	declineNextAttach   bool
	unavailableBudget   int
	unavailableAffected map[string]struct{}
}

func New() *Gateway {
	return &Gateway{
		intents:    make(map[string]*payment.Intent),
		callCounts: make(map[string]int),
	}
}

// SimulateConfirmDecline makes the next ConfirmIntent fail terminally.
func (g *Gateway) SimulateConfirmDecline() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineNextConfirm = true
}

// SimulateAttachDecline makes the next AttachMethod fail terminally.
func (g *Gateway) SimulateAttachDecline() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.declineNextAttach = true
}

// SimulateUnavailability makes the next count calls on the provided methods
// fail with payment.ErrUnavailable. An empty method set affects all calls.
func (g *Gateway) SimulateUnavailability(count int, methods ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailableBudget = count
	g.unavailableAffected = make(map[string]struct{})
	for _, method := range methods {
		g.unavailableAffected[method] = struct{}{}
	}
}

// CallCount returns the number of calls observed for a method name.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCounts[method]
}

// GetIntentById provides direct test access to gateway state.
func (g *Gateway) GetIntentById(intentId string) (*payment.Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[intentId]
	if !ok {
		return nil, false
	}
	cloned := *intent
	return &cloned, true
}

func (g *Gateway) CreateIntent(_ context.Context, amount uint64, currency string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeCall("CreateIntent"); err != nil {
		return nil, err
	}

	intent := &payment.Intent{
		Id:           fmt.Sprintf("pi_%s", uuid.NewString()),
		ClientSecret: fmt.Sprintf("secret_%s", uuid.NewString()),
		Amount:       amount,
		Currency:     currency,
		Status:       payment.StatusCreated,
		CreatedAt:    time.Now(),
	}
	g.intents[intent.Id] = intent

	cloned := *intent
	return &cloned, nil
}

func (g *Gateway) AttachMethod(_ context.Context, intentId, methodRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeCall("AttachMethod"); err != nil {
		return err
	}

	intent, ok := g.intents[intentId]
	if !ok {
		return payment.ErrIntentNotFound
	}

	if g.declineNextAttach {
		g.declineNextAttach = false
		return payment.ErrDeclined
	}

	switch intent.Status {
	case payment.StatusCreated, payment.StatusMethodAttached:
		intent.Status = payment.StatusMethodAttached
		return nil
	}

	return payment.ErrInvalidIntentState
}

func (g *Gateway) ConfirmIntent(_ context.Context, intentId string) (payment.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeCall("ConfirmIntent"); err != nil {
		return payment.StatusUnknown, err
	}

	intent, ok := g.intents[intentId]
	if !ok {
		return payment.StatusUnknown, payment.ErrIntentNotFound
	}

	if g.declineNextConfirm {
		g.declineNextConfirm = false
		intent.Status = payment.StatusFailed
		return payment.StatusFailed, payment.ErrDeclined
	}

	switch intent.Status {
	case payment.StatusMethodAttached:
		intent.Status = payment.StatusConfirmed
		return payment.StatusConfirmed, nil
	case payment.StatusConfirmed:
		return payment.StatusConfirmed, nil
	}

	return intent.Status, payment.ErrInvalidIntentState
}

func (g *Gateway) CancelIntent(_ context.Context, intentId string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeCall("CancelIntent"); err != nil {
		return err
	}

	intent, ok := g.intents[intentId]
	if !ok {
		return payment.ErrIntentNotFound
	}

	switch intent.Status {
	case payment.StatusConfirmed:
		return payment.ErrNotCancelable
	case payment.StatusCanceled:
		return nil
	}

	intent.Status = payment.StatusCanceled
	return nil
}

func (g *Gateway) GetIntent(_ context.Context, intentId string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.observeCall("GetIntent"); err != nil {
		return nil, err
	}

	intent, ok := g.intents[intentId]
	if !ok {
		return nil, payment.ErrIntentNotFound
	}

	cloned := *intent
	return &cloned, nil
}

// observeCall assumes the caller holds the lock
func (g *Gateway) observeCall(method string) error {
	g.callCounts[method]++

	if g.unavailableBudget > 0 {
		_, affected := g.unavailableAffected[method]
		if len(g.unavailableAffected) == 0 || affected {
			g.unavailableBudget--
			return payment.ErrUnavailable
		}
	}

	return nil
}
