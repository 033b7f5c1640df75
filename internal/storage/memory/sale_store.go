package memory

import (
	"context"
	"sort"
	"sync"

	"token-presale/internal/domain"
	"token-presale/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
// Update holds the store lock for the whole callback, so transitions are
// strictly serialized.
type SaleStore struct {
	mu    sync.RWMutex
	sales map[string]*saleRecord // keyed by sale_id
}

type saleRecord struct {
	state       *domain.SaleState
	allocations map[string]*domain.Allocation // keyed by owner
	events      []*domain.SaleEvent
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{
		sales: make(map[string]*saleRecord),
	}
}

// Update runs fn with staged writes and applies them only if fn succeeds.
func (s *SaleStore) Update(ctx context.Context, saleID string, fn func(tx storage.SaleTx) error) error {
	if saleID == "" || fn == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &saleTx{
		saleID:      saleID,
		committed:   s.sales[saleID],
		allocations: make(map[string]*domain.Allocation),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.apply(tx)
	return nil
}

func (s *SaleStore) apply(tx *saleTx) {
	rec := s.sales[tx.saleID]
	if rec == nil {
		if tx.sale == nil {
			// Nothing can be written against a sale that does not exist.
			return
		}
		rec = &saleRecord{allocations: make(map[string]*domain.Allocation)}
		s.sales[tx.saleID] = rec
	}

	if tx.sale != nil {
		rec.state = tx.sale
	}
	for owner, a := range tx.allocations {
		rec.allocations[owner] = a
	}
	for _, e := range tx.events {
		e.Seq = int64(len(rec.events)) + 1
		eventCopy := *e
		rec.events = append(rec.events, &eventCopy)
	}
}

// GetSale retrieves committed sale state. Returns ErrNotFound if not initialized.
func (s *SaleStore) GetSale(_ context.Context, saleID string) (*domain.SaleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sales[saleID]
	if !ok || rec.state == nil {
		return nil, storage.ErrNotFound
	}
	return rec.state.Clone(), nil
}

// GetAllocation retrieves a committed allocation. Returns ErrNotFound if absent.
func (s *SaleStore) GetAllocation(_ context.Context, saleID, owner string) (*domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sales[saleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	a, ok := rec.allocations[owner]
	if !ok {
		return nil, storage.ErrNotFound
	}
	allocCopy := *a
	return &allocCopy, nil
}

// ListAllocations retrieves all allocations of a sale, ordered by owner ASC.
func (s *SaleStore) ListAllocations(_ context.Context, saleID string) ([]*domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sales[saleID]
	if !ok {
		return nil, nil
	}

	result := make([]*domain.Allocation, 0, len(rec.allocations))
	for _, a := range rec.allocations {
		allocCopy := *a
		result = append(result, &allocCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Owner < result[j].Owner
	})
	return result, nil
}

// GetEvents retrieves the committed event log of a sale, ordered by seq ASC.
func (s *SaleStore) GetEvents(_ context.Context, saleID string) ([]*domain.SaleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sales[saleID]
	if !ok {
		return nil, nil
	}
	result := make([]*domain.SaleEvent, 0, len(rec.events))
	for _, e := range rec.events {
		eventCopy := *e
		result = append(result, &eventCopy)
	}
	return result, nil
}

// saleTx stages writes for one Update. Reads see staged values first.
type saleTx struct {
	saleID      string
	committed   *saleRecord
	sale        *domain.SaleState
	allocations map[string]*domain.Allocation
	events      []*domain.SaleEvent
}

func (tx *saleTx) GetSale(_ context.Context) (*domain.SaleState, error) {
	if tx.sale != nil {
		return tx.sale.Clone(), nil
	}
	if tx.committed == nil || tx.committed.state == nil {
		return nil, storage.ErrNotFound
	}
	return tx.committed.state.Clone(), nil
}

func (tx *saleTx) CreateSale(_ context.Context, st *domain.SaleState) error {
	if st == nil || st.SaleID != tx.saleID {
		return storage.ErrInvalidInput
	}
	if tx.sale != nil || (tx.committed != nil && tx.committed.state != nil) {
		return storage.ErrDuplicateKey
	}
	tx.sale = st.Clone()
	return nil
}

func (tx *saleTx) PutSale(_ context.Context, st *domain.SaleState) error {
	if st == nil || st.SaleID != tx.saleID {
		return storage.ErrInvalidInput
	}
	if tx.sale == nil && (tx.committed == nil || tx.committed.state == nil) {
		return storage.ErrNotFound
	}
	tx.sale = st.Clone()
	return nil
}

func (tx *saleTx) GetAllocation(_ context.Context, owner string) (*domain.Allocation, error) {
	if a, ok := tx.allocations[owner]; ok {
		allocCopy := *a
		return &allocCopy, nil
	}
	if tx.committed == nil {
		return nil, storage.ErrNotFound
	}
	a, ok := tx.committed.allocations[owner]
	if !ok {
		return nil, storage.ErrNotFound
	}
	allocCopy := *a
	return &allocCopy, nil
}

func (tx *saleTx) PutAllocation(_ context.Context, a *domain.Allocation) error {
	if a == nil || a.Owner == "" || a.SaleID != tx.saleID {
		return storage.ErrInvalidInput
	}
	allocCopy := *a
	tx.allocations[a.Owner] = &allocCopy
	return nil
}

func (tx *saleTx) AppendEvents(_ context.Context, events ...*domain.SaleEvent) error {
	for _, e := range events {
		if e == nil || e.EventID == "" || e.SaleID != tx.saleID {
			return storage.ErrInvalidInput
		}
		tx.events = append(tx.events, e)
	}
	return nil
}

// Verify interface compliance at compile time.
var (
	_ storage.SaleStore = (*SaleStore)(nil)
	_ storage.SaleTx    = (*saleTx)(nil)
)
