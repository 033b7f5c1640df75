package presale

import (
	"context"
	"fmt"

	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/storage"
)

// BuyResult describes an applied purchase.
type BuyResult struct {
	Buyer          string      `json:"buyer"`
	TokensCredited uint64      `json:"tokens_credited"`
	PaymentCharged uint64      `json:"payment_charged"`
	Refunded       uint64      `json:"refunded"`
	Fills          []StageFill `json:"fills"`
	StageBefore    int         `json:"stage_before"`
	StageAfter     int         `json:"stage_after"`
	Purchased      uint64      `json:"purchased"` // buyer's cumulative entitlement
}

// StagesAdvancedThrough returns the stage indexes the purchase touched.
func (r *BuyResult) StagesAdvancedThrough() []int {
	stages := make([]int, 0, len(r.Fills))
	for _, f := range r.Fills {
		stages = append(stages, f.Stage)
	}
	return stages
}

// Buy converts payment (base units) into token entitlement for buyer.
// Only the charge is collected; the refund never leaves the buyer.
func (e *Engine) Buy(ctx context.Context, buyer string, payment uint64) (*BuyResult, error) {
	if _, err := parseIdentity(buyer); err != nil {
		return nil, err
	}
	if payment == 0 {
		return nil, ErrZeroPurchase
	}

	var res *BuyResult
	err := e.transition(ctx, "buy", func(ctx context.Context, tx storage.SaleTx, now int64) ([]*domain.SaleEvent, effect, error) {
		s, err := loadSale(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		if err := checkBuyWindow(s, now); err != nil {
			return nil, nil, err
		}

		q, err := ComputeQuote(s, payment)
		if err != nil {
			return nil, nil, err
		}
		if err := applyQuote(s, q); err != nil {
			return nil, nil, err
		}

		ledger := newLedger(tx, e.saleID, e.addrs.Sale, e.programID, now)
		alloc, err := ledger.Credit(ctx, buyer, q.Tokens)
		if err != nil {
			return nil, nil, err
		}

		if s.TotalPurchased, err = addChecked(s.TotalPurchased, q.Tokens); err != nil {
			return nil, nil, err
		}
		if s.TotalPaid, err = addChecked(s.TotalPaid, q.Charge); err != nil {
			return nil, nil, err
		}
		if s.CustodyBalance, err = addChecked(s.CustodyBalance, q.Charge); err != nil {
			return nil, nil, err
		}
		if sold := s.TotalSold(); sold != s.TotalPurchased {
			return nil, nil, fmt.Errorf("%w: stages sold %d, purchased %d", ErrLedgerInvariant, sold, s.TotalPurchased)
		}
		if err := saveSale(ctx, tx, s, now); err != nil {
			return nil, nil, err
		}

		res = &BuyResult{
			Buyer:          buyer,
			TokensCredited: q.Tokens,
			PaymentCharged: q.Charge,
			Refunded:       q.Refund,
			Fills:          q.Fills,
			StageBefore:    q.FromStage,
			StageAfter:     q.ToStage,
			Purchased:      alloc.Purchased,
		}

		events := make([]*domain.SaleEvent, 0, len(q.Fills)+1)
		for _, f := range q.Fills {
			events = append(events, &domain.SaleEvent{
				Type:   domain.EventTokensAllocated,
				Actor:  buyer,
				Tokens: f.Tokens,
				Amount: f.USDSpent,
				Stage:  f.Stage,
			})
		}
		for st := q.FromStage + 1; st <= q.ToStage; st++ {
			events = append(events, &domain.SaleEvent{
				Type:  domain.EventStageAdvanced,
				Actor: buyer,
				Stage: st,
			})
		}

		collect := func(ctx context.Context) error {
			if err := e.treasury.Collect(ctx, buyer, q.Charge); err != nil {
				return fmt.Errorf("collect payment: %w", err)
			}
			return nil
		}
		return events, collect, nil
	})
	if err != nil {
		return nil, err
	}

	for _, f := range res.Fills {
		observability.RecordAllocation(observability.StageLabel(f.Stage), f.Tokens)
	}
	observability.RecordPayment(res.PaymentCharged, res.Refunded)
	e.logger.Printf("buy: buyer=%s tokens=%d charged=%d refunded=%d stage=%d->%d",
		buyer, res.TokensCredited, res.PaymentCharged, res.Refunded, res.StageBefore, res.StageAfter)
	return res, nil
}
