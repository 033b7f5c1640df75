package storage

import (
	"context"

	"token-presale/internal/domain"
)

// SaleStore persists sale state, allocations and the sale event log.
// Every mutation goes through Update, which runs as one atomic unit.
type SaleStore interface {
	// Update runs fn against a transactional view of the sale. Writes made
	// through tx become visible only if fn returns nil; any error discards them.
	// Concurrent Updates on the same sale are serialized or one fails with ErrConflict.
	Update(ctx context.Context, saleID string, fn func(tx SaleTx) error) error

	// GetSale retrieves committed sale state. Returns ErrNotFound if not initialized.
	GetSale(ctx context.Context, saleID string) (*domain.SaleState, error)

	// GetAllocation retrieves a committed allocation. Returns ErrNotFound if absent.
	GetAllocation(ctx context.Context, saleID, owner string) (*domain.Allocation, error)

	// ListAllocations retrieves all allocations of a sale, ordered by owner ASC.
	ListAllocations(ctx context.Context, saleID string) ([]*domain.Allocation, error)

	// GetEvents retrieves the committed event log of a sale, ordered by seq ASC.
	GetEvents(ctx context.Context, saleID string) ([]*domain.SaleEvent, error)
}

// SaleTx is the view of one sale inside an Update.
type SaleTx interface {
	// GetSale retrieves sale state for update. Returns ErrNotFound if not initialized.
	GetSale(ctx context.Context) (*domain.SaleState, error)

	// CreateSale inserts sale state. Returns ErrDuplicateKey if it exists.
	CreateSale(ctx context.Context, s *domain.SaleState) error

	// PutSale overwrites existing sale state.
	PutSale(ctx context.Context, s *domain.SaleState) error

	// GetAllocation retrieves an allocation for update. Returns ErrNotFound if absent.
	GetAllocation(ctx context.Context, owner string) (*domain.Allocation, error)

	// PutAllocation inserts or overwrites an allocation.
	PutAllocation(ctx context.Context, a *domain.Allocation) error

	// AppendEvents adds events to the sale log and assigns their Seq.
	AppendEvents(ctx context.Context, events ...*domain.SaleEvent) error
}

// SaleEventStore is an append-only archive of sale events (analytics side).
type SaleEventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.SaleEvent) error

	// GetBySale retrieves all events of a sale, ordered by seq ASC.
	GetBySale(ctx context.Context, saleID string) ([]*domain.SaleEvent, error)

	// GetByTimeRange retrieves events of a sale within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.SaleEvent, error)
}
