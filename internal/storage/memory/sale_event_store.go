package memory

import (
	"context"
	"sort"
	"sync"

	"token-presale/internal/domain"
	"token-presale/internal/storage"
)

// SaleEventStore is an in-memory implementation of storage.SaleEventStore.
type SaleEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SaleEvent // keyed by event_id
}

// NewSaleEventStore creates a new in-memory sale event archive.
func NewSaleEventStore() *SaleEventStore {
	return &SaleEventStore{
		data: make(map[string]*domain.SaleEvent),
	}
}

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *SaleEventStore) InsertBulk(_ context.Context, events []*domain.SaleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	for _, e := range events {
		eventCopy := *e
		s.data[e.EventID] = &eventCopy
	}
	return nil
}

// GetBySale retrieves all events of a sale, ordered by seq ASC.
func (s *SaleEventStore) GetBySale(_ context.Context, saleID string) ([]*domain.SaleEvent, error) {
	return s.filter(func(e *domain.SaleEvent) bool {
		return e.SaleID == saleID
	}), nil
}

// GetByTimeRange retrieves events of a sale within [start, end] (inclusive).
func (s *SaleEventStore) GetByTimeRange(_ context.Context, saleID string, start, end int64) ([]*domain.SaleEvent, error) {
	return s.filter(func(e *domain.SaleEvent) bool {
		return e.SaleID == saleID && e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *SaleEventStore) filter(keep func(*domain.SaleEvent) bool) []*domain.SaleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SaleEvent
	for _, e := range s.data {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.SaleEventStore = (*SaleEventStore)(nil)
