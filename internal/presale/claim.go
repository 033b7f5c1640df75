package presale

import (
	"context"
	"errors"
	"fmt"

	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/storage"
)

// ClaimResult describes an applied claim.
type ClaimResult struct {
	Owner          string `json:"owner"`
	TokensReleased uint64 `json:"tokens_released"`
	Purchased      uint64 `json:"purchased"`
	Claimed        uint64 `json:"claimed"`
}

// Claim mints the buyer's whole outstanding entitlement. A second claim with
// no purchase in between fails with ErrNothingToClaim and changes nothing.
func (e *Engine) Claim(ctx context.Context, owner string) (*ClaimResult, error) {
	if _, err := parseIdentity(owner); err != nil {
		return nil, err
	}

	var res *ClaimResult
	err := e.transition(ctx, "claim", func(ctx context.Context, tx storage.SaleTx, now int64) ([]*domain.SaleEvent, effect, error) {
		s, err := loadSale(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		if s.Paused {
			return nil, nil, ErrSalePaused
		}

		ledger := newLedger(tx, e.saleID, e.addrs.Sale, e.programID, now)
		alloc, err := ledger.Get(ctx, owner)
		if errors.Is(err, ErrAllocationNotFound) {
			return nil, nil, ErrNothingToClaim
		}
		if err != nil {
			return nil, nil, err
		}
		claimable := alloc.Claimable()
		if claimable == 0 {
			return nil, nil, ErrNothingToClaim
		}
		if !claimOpen(s, now) {
			return nil, nil, ErrClaimNotOpen
		}

		if alloc, err = ledger.MarkClaimed(ctx, owner, claimable); err != nil {
			return nil, nil, err
		}
		if s.TotalClaimed, err = addChecked(s.TotalClaimed, claimable); err != nil {
			return nil, nil, err
		}
		if s.TotalClaimed > s.TotalPurchased {
			return nil, nil, fmt.Errorf("%w: claimed %d of %d purchased", ErrLedgerInvariant, s.TotalClaimed, s.TotalPurchased)
		}
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}

		res = &ClaimResult{
			Owner:          owner,
			TokensReleased: claimable,
			Purchased:      alloc.Purchased,
			Claimed:        alloc.Claimed,
		}
		mint := func(ctx context.Context) error {
			if err := e.minter.MintTo(ctx, owner, claimable); err != nil {
				return fmt.Errorf("mint claim: %w", err)
			}
			return nil
		}
		return []*domain.SaleEvent{{
			Type:   domain.EventTokensClaimed,
			Actor:  owner,
			Tokens: claimable,
		}}, mint, nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordClaim(res.TokensReleased)
	e.logger.Printf("claim: owner=%s released=%d", owner, res.TokensReleased)
	return res, nil
}
