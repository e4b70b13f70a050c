package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/idempotency"
)

type store struct {
	mu      sync.Mutex
	records []*idempotency.Record
	last    uint64
}

type ByCreatedAt []*idempotency.Record

func (a ByCreatedAt) Len() int           { return len(a) }
func (a ByCreatedAt) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByCreatedAt) Less(i, j int) bool { return a[i].CreatedAt.Before(a[j].CreatedAt) }

func New() idempotency.Store {
	return &store{
		records: make([]*idempotency.Record, 0),
		last:    0,
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make([]*idempotency.Record, 0)
	s.last = 0
	s.mu.Unlock()
}

func (s *store) findByKey(key string) *idempotency.Record {
	for _, item := range s.records {
		if item.Key == key {
			return item
		}
	}
	return nil
}

func (s *store) remove(target *idempotency.Record) {
	for i, item := range s.records {
		if item == target {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

func (s *store) Reserve(_ context.Context, key, fingerprint string, expiry time.Time) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByKey(key)
	if item != nil && item.IsExpired(time.Now()) {
		s.remove(item)
		item = nil
	}

	if item != nil {
		if item.Fingerprint != fingerprint {
			return nil, idempotency.ErrFingerprintMismatch
		}

		switch item.State {
		case idempotency.StateCompleted:
			cloned := item.Clone()
			return &cloned, nil
		case idempotency.StateReserved:
			return nil, idempotency.ErrAttemptInProgress
		}

		// Re-reserve a suspended attempt, keeping the recorded intent
		item.State = idempotency.StateReserved
		item.ExpiresAt = expiry

		cloned := item.Clone()
		return &cloned, nil
	}

	s.last++
	record := &idempotency.Record{
		Id: s.last,

		Key:         key,
		Fingerprint: fingerprint,

		State: idempotency.StateReserved,

		CreatedAt: time.Now(),
		ExpiresAt: expiry,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	s.records = append(s.records, record)

	cloned := record.Clone()
	return &cloned, nil
}

func (s *store) Get(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByKey(key)
	if item == nil || item.IsExpired(time.Now()) {
		return nil, idempotency.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) MarkIntent(_ context.Context, key, intentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByKey(key)
	if item == nil {
		return idempotency.ErrNotFound
	}

	if !item.IsInFlight() {
		return idempotency.ErrNotInFlight
	}

	item.IntentId = &intentId

	return nil
}

func (s *store) Suspend(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByKey(key)
	if item == nil {
		return idempotency.ErrNotFound
	}

	if item.State == idempotency.StateSuspended {
		return nil
	}
	if !idempotency.CanTransitionTo(item.State, idempotency.StateSuspended) {
		return idempotency.ErrNotInFlight
	}

	item.State = idempotency.StateSuspended

	return nil
}

func (s *store) Complete(_ context.Context, key string, outcome *idempotency.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByKey(key)
	if item == nil {
		return idempotency.ErrNotFound
	}

	if item.State == idempotency.StateCompleted {
		return nil
	}
	if !idempotency.CanTransitionTo(item.State, idempotency.StateCompleted) {
		return idempotency.ErrNotInFlight
	}

	cloned := *outcome
	item.State = idempotency.StateCompleted
	item.Outcome = &cloned

	return nil
}

func (s *store) GetStaleInFlight(_ context.Context, createdBefore time.Time, limit uint64) ([]*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*idempotency.Record, 0)
	for _, item := range s.records {
		if item.IsInFlight() && item.CreatedAt.Before(createdBefore) {
			cloned := item.Clone()
			res = append(res, &cloned)
		}
	}

	if len(res) == 0 {
		return nil, idempotency.ErrNotFound
	}

	sort.Sort(ByCreatedAt(res))

	if uint64(len(res)) > limit {
		res = res[:limit]
	}

	return res, nil
}

func (s *store) CountInFlight(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint64
	for _, item := range s.records {
		if item.IsInFlight() {
			count++
		}
	}
	return count, nil
}
