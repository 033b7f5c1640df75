package presale

import (
	"context"
	"errors"
	"fmt"

	"token-presale/internal/address"
	"token-presale/internal/domain"
	"token-presale/internal/storage"
)

// Ledger is the allocation bookkeeping of one sale inside one transition.
// It is the only writer of Allocation records and enforces
// Claimed <= Purchased on every mutation.
type Ledger struct {
	tx        storage.SaleTx
	saleID    string
	sale      address.Pubkey
	programID address.Pubkey
	now       int64
}

func newLedger(tx storage.SaleTx, saleID string, sale, programID address.Pubkey, now int64) *Ledger {
	return &Ledger{tx: tx, saleID: saleID, sale: sale, programID: programID, now: now}
}

// Get returns the allocation of owner, or ErrAllocationNotFound.
func (l *Ledger) Get(ctx context.Context, owner string) (*domain.Allocation, error) {
	a, err := l.tx.GetAllocation(ctx, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return a, nil
}

// GetOrCreate returns the allocation of owner, creating an empty
// (unsaved) record addressed by its program-derived address.
func (l *Ledger) GetOrCreate(ctx context.Context, owner string) (*domain.Allocation, error) {
	a, err := l.Get(ctx, owner)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAllocationNotFound) {
		return nil, err
	}

	buyer, err := address.ParsePubkey(owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	addr, err := address.AllocationAddress(l.sale, buyer, l.programID)
	if err != nil {
		return nil, err
	}
	return &domain.Allocation{
		Address:   addr.String(),
		SaleID:    l.saleID,
		Owner:     owner,
		CreatedAt: l.now,
		UpdatedAt: l.now,
	}, nil
}

// Credit adds purchased tokens to owner's allocation and saves it.
func (l *Ledger) Credit(ctx context.Context, owner string, tokens uint64) (*domain.Allocation, error) {
	if tokens == 0 {
		return nil, fmt.Errorf("%w: zero credit for %s", ErrLedgerInvariant, owner)
	}
	a, err := l.GetOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if a.Purchased, err = addChecked(a.Purchased, tokens); err != nil {
		return nil, err
	}
	return a, l.save(ctx, a)
}

// MarkClaimed records tokens as released to owner and saves the allocation.
func (l *Ledger) MarkClaimed(ctx context.Context, owner string, tokens uint64) (*domain.Allocation, error) {
	if tokens == 0 {
		return nil, fmt.Errorf("%w: zero claim for %s", ErrLedgerInvariant, owner)
	}
	a, err := l.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, ErrAllocationNotFound) {
			return nil, fmt.Errorf("%w: claim without allocation for %s", ErrLedgerInvariant, owner)
		}
		return nil, err
	}
	claimed, err := addChecked(a.Claimed, tokens)
	if err != nil {
		return nil, err
	}
	if claimed > a.Purchased {
		return nil, fmt.Errorf("%w: %s would claim %d of %d purchased", ErrLedgerInvariant, owner, claimed, a.Purchased)
	}
	a.Claimed = claimed
	return a, l.save(ctx, a)
}

func (l *Ledger) save(ctx context.Context, a *domain.Allocation) error {
	if a.Claimed > a.Purchased {
		return fmt.Errorf("%w: %s claimed %d of %d purchased", ErrLedgerInvariant, a.Owner, a.Claimed, a.Purchased)
	}
	a.UpdatedAt = l.now
	if err := l.tx.PutAllocation(ctx, a); err != nil {
		return fmt.Errorf("put allocation: %w", err)
	}
	return nil
}
