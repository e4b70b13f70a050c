package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cloudfusionadmin/filevaults/pkg/provision/data/account"
)

type store struct {
	mu      sync.Mutex
	records []*account.Record
	last    uint64
}

func New() account.Store {
	return &store{
		records: make([]*account.Record, 0),
		last:    0,
	}
}

func (s *store) reset() {
	s.mu.Lock()
	s.records = make([]*account.Record, 0)
	s.last = 0
	s.mu.Unlock()
}

func (s *store) findByAccountId(accountId string) *account.Record {
	for _, item := range s.records {
		if item.AccountId == accountId {
			return item
		}
	}
	return nil
}

// Rejected records don't reserve the username, so a failed signup can be
// retried with a fresh attempt.
func (s *store) findActiveOrPendingByUsername(username string) *account.Record {
	for _, item := range s.records {
		if item.Username == username && item.Status != account.StatusRejected {
			return item
		}
	}
	return nil
}

func (s *store) findByIntentId(intentId string) *account.Record {
	for _, item := range s.records {
		if item.IntentId == intentId {
			return item
		}
	}
	return nil
}

func (s *store) InsertPending(_ context.Context, record *account.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	if record.Status != account.StatusPending {
		return account.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAccountId(record.AccountId); item != nil {
		return account.ErrExists
	}
	if item := s.findActiveOrPendingByUsername(record.Username); item != nil {
		return account.ErrExists
	}
	if item := s.findByIntentId(record.IntentId); item != nil {
		return account.ErrIntentAlreadyBound
	}

	s.last++
	record.Id = s.last
	record.Version = 1
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	cloned := record.Clone()
	s.records = append(s.records, &cloned)

	return nil
}

func (s *store) Promote(_ context.Context, accountId string, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAccountId(accountId)
	if item == nil {
		return account.ErrNotFound
	}

	if !account.CanTransitionTo(item.Status, account.StatusActive) {
		return account.ErrNotPending
	}

	if item.Version != expectedVersion {
		return account.ErrVersionMismatch
	}

	item.Status = account.StatusActive
	item.Version++

	return nil
}

func (s *store) Reject(_ context.Context, accountId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAccountId(accountId)
	if item == nil {
		return account.ErrNotFound
	}

	if item.Status == account.StatusRejected {
		return nil
	}
	if !account.CanTransitionTo(item.Status, account.StatusRejected) {
		return account.ErrNotPending
	}

	item.Status = account.StatusRejected
	item.Version++

	return nil
}

func (s *store) Get(_ context.Context, accountId string) (*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByAccountId(accountId)
	if item == nil {
		return nil, account.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetByIntent(_ context.Context, intentId string) (*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.findByIntentId(intentId)
	if item == nil {
		return nil, account.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) CountByStatus(_ context.Context, status account.Status) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count uint64
	for _, item := range s.records {
		if item.Status == status {
			count++
		}
	}
	return count, nil
}
