package presale

import (
	"context"
	"fmt"

	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/storage"
)

// ownerStep runs body only when caller is the sale owner.
func (e *Engine) ownerStep(caller string, body func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error)) step {
	return func(ctx context.Context, tx storage.SaleTx, now int64) ([]*domain.SaleEvent, effect, error) {
		s, err := loadSale(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		if caller != s.Owner {
			return nil, nil, ErrUnauthorized
		}
		return body(ctx, tx, s, now)
	}
}

// Pause stops buys and claims. Pausing a paused sale is a no-op.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	return e.setPaused(ctx, "pause", caller, true)
}

// Resume re-enables buys and claims. Resuming an active sale is a no-op.
func (e *Engine) Resume(ctx context.Context, caller string) error {
	return e.setPaused(ctx, "resume", caller, false)
}

func (e *Engine) setPaused(ctx context.Context, op, caller string, paused bool) error {
	changed := false
	err := e.transition(ctx, op, e.ownerStep(caller, func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error) {
		if s.Paused == paused {
			return nil, nil, nil
		}
		s.Paused = paused
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}
		changed = true
		typ := domain.EventSaleResumed
		if paused {
			typ = domain.EventSalePaused
		}
		return []*domain.SaleEvent{{Type: typ, Actor: caller}}, nil, nil
	}))
	if err == nil && changed {
		e.logger.Printf("%s: sale %s paused=%t", op, e.saleID, paused)
	}
	return err
}

// SetWindow replaces the sale window. Recorded purchases are unaffected.
func (e *Engine) SetWindow(ctx context.Context, caller string, start, end int64) error {
	err := e.transition(ctx, "set_window", e.ownerStep(caller, func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error) {
		if end <= start {
			return nil, nil, fmt.Errorf("%w: end %d <= start %d", ErrInvalidWindow, end, start)
		}
		s.StartTime, s.EndTime = start, end
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}
		return []*domain.SaleEvent{{
			Type:      domain.EventWindowUpdated,
			Actor:     caller,
			StartTime: start,
			EndTime:   end,
		}}, nil, nil
	}))
	if err != nil {
		return err
	}
	e.logger.Printf("set_window: sale %s window=[%d, %d]", e.saleID, start, end)
	return nil
}

// WithdrawFunds pays amount base units from custody to the owner.
func (e *Engine) WithdrawFunds(ctx context.Context, caller string, amount uint64) error {
	err := e.transition(ctx, "withdraw_funds", e.ownerStep(caller, func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error) {
		if amount == 0 {
			return nil, nil, ErrZeroAmount
		}
		if amount > s.CustodyBalance {
			return nil, nil, fmt.Errorf("%w: requested %d, custody %d", ErrInsufficientCustody, amount, s.CustodyBalance)
		}
		s.CustodyBalance -= amount
		s.TotalWithdrawn += amount
		if s.CustodyBalance != s.TotalPaid-s.TotalWithdrawn {
			return nil, nil, fmt.Errorf("%w: custody %d != paid %d - withdrawn %d", ErrLedgerInvariant, s.CustodyBalance, s.TotalPaid, s.TotalWithdrawn)
		}
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}
		owner := s.Owner
		pay := func(ctx context.Context) error {
			if err := e.treasury.Pay(ctx, owner, amount); err != nil {
				return fmt.Errorf("pay owner: %w", err)
			}
			return nil
		}
		return []*domain.SaleEvent{{Type: domain.EventFundsWithdrawn, Actor: caller, Amount: amount}}, pay, nil
	}))
	if err != nil {
		return err
	}
	observability.RecordWithdrawal(amount)
	e.logger.Printf("withdraw_funds: sale %s amount=%d", e.saleID, amount)
	return nil
}

// UnsoldAvailable returns the raw tokens the owner may still withdraw:
// supply never allocated to a buyer and not withdrawn before.
func UnsoldAvailable(s *domain.SaleState) uint64 {
	capacity := s.TotalCapacity()
	used := s.TotalPurchased + s.UnsoldWithdrawn
	if used >= capacity {
		return 0
	}
	return capacity - used
}

// WithdrawUnsoldTokens mints amount unsold tokens to the owner once the
// sale has concluded.
func (e *Engine) WithdrawUnsoldTokens(ctx context.Context, caller string, amount uint64) error {
	err := e.transition(ctx, "withdraw_unsold", e.ownerStep(caller, func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error) {
		if amount == 0 {
			return nil, nil, ErrZeroAmount
		}
		if !concluded(s, now) {
			return nil, nil, ErrSaleNotConcluded
		}
		if avail := UnsoldAvailable(s); amount > avail {
			return nil, nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientUnsold, amount, avail)
		}
		s.UnsoldWithdrawn += amount
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}
		owner := s.Owner
		mint := func(ctx context.Context) error {
			if err := e.minter.MintTo(ctx, owner, amount); err != nil {
				return fmt.Errorf("mint unsold: %w", err)
			}
			return nil
		}
		return []*domain.SaleEvent{{Type: domain.EventUnsoldWithdrawn, Actor: caller, Tokens: amount}}, mint, nil
	}))
	if err != nil {
		return err
	}
	e.logger.Printf("withdraw_unsold: sale %s amount=%d", e.saleID, amount)
	return nil
}

// AdvanceStage moves the ladder to index before any token is sold.
func (e *Engine) AdvanceStage(ctx context.Context, caller string, index int) error {
	err := e.transition(ctx, "advance_stage", e.ownerStep(caller, func(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) ([]*domain.SaleEvent, effect, error) {
		if s.TotalSold() > 0 {
			return nil, nil, ErrStageLocked
		}
		if index < s.CurrentStage || index >= len(s.Stages) {
			return nil, nil, fmt.Errorf("%w: %d (current %d, stages %d)", ErrInvalidStage, index, s.CurrentStage, len(s.Stages))
		}
		if index == s.CurrentStage {
			return nil, nil, nil
		}
		s.CurrentStage = index
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}
		return []*domain.SaleEvent{{Type: domain.EventStageAdvanced, Actor: caller, Stage: index}}, nil, nil
	}))
	if err != nil {
		return err
	}
	e.logger.Printf("advance_stage: sale %s stage=%d", e.saleID, index)
	return nil
}
