package storage

import (
	"context"
	"fmt"

	"token-presale/internal/domain"
)

// Archive forwards committed sale events into a SaleEventStore.
// It satisfies the engine's publisher contract.
type Archive struct {
	name  string
	store SaleEventStore
}

// NewArchive creates an archive sink named name over store.
func NewArchive(name string, store SaleEventStore) *Archive {
	return &Archive{name: name, store: store}
}

// Name returns the sink name used in metrics and logs.
func (a *Archive) Name() string { return a.name }

// Publish inserts events as one batch.
func (a *Archive) Publish(ctx context.Context, events []*domain.SaleEvent) error {
	if len(events) == 0 {
		return nil
	}
	return a.store.InsertBulk(ctx, events)
}

// Backfill copies events of saleID that are in source but missing from the
// archive, in seq order. It returns the number of events copied.
func (a *Archive) Backfill(ctx context.Context, source SaleEventStore, saleID string) (int, error) {
	all, err := source.GetBySale(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("read source events: %w", err)
	}
	archived, err := a.store.GetBySale(ctx, saleID)
	if err != nil {
		return 0, fmt.Errorf("read archived events: %w", err)
	}

	have := make(map[string]struct{}, len(archived))
	for _, e := range archived {
		have[e.EventID] = struct{}{}
	}
	var missing []*domain.SaleEvent
	for _, e := range all {
		if _, ok := have[e.EventID]; !ok {
			missing = append(missing, e)
		}
	}
	if err := a.Publish(ctx, missing); err != nil {
		return 0, fmt.Errorf("insert missing events: %w", err)
	}
	return len(missing), nil
}
