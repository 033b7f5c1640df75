package presale

import (
	"errors"
	"math"
	"testing"

	"token-presale/internal/domain"
)

func saleWith(usdPerCoin, baseUnits uint64, decimals uint8, stages []domain.Stage) *domain.SaleState {
	return &domain.SaleState{
		USDPerCoin:       usdPerCoin,
		BaseUnitsPerCoin: baseUnits,
		TokenDecimals:    decimals,
		Stages:           stages,
	}
}

func TestComputeQuote_RealisticDecimals(t *testing.T) {
	// 1 SOL = 150.00 USD (15000 cents), 9-decimal token at 1 cent.
	stages, err := DefaultStages(DefaultTokenDecimals)
	if err != nil {
		t.Fatalf("DefaultStages failed: %v", err)
	}
	s := saleWith(15_000, 1_000_000_000, DefaultTokenDecimals, stages)

	q, err := ComputeQuote(s, 1_000_000_000)
	if err != nil {
		t.Fatalf("ComputeQuote failed: %v", err)
	}
	if q.Tokens != 15_000*1_000_000_000 {
		t.Errorf("tokens: got %d, want 15000 whole tokens", q.Tokens)
	}
	if q.Charge != 1_000_000_000 || q.Refund != 0 {
		t.Errorf("charge/refund: got %d/%d", q.Charge, q.Refund)
	}
}

func TestComputeQuote_ChargeNeverExceedsPayment(t *testing.T) {
	stages := []domain.Stage{
		{PriceUSD: 3, Capacity: 7},
		{PriceUSD: 7, Capacity: 11},
		{PriceUSD: 13, Capacity: 1_000_000},
	}
	for _, rate := range [][2]uint64{{3, 7}, {7, 3}, {1, 1}, {1_000, 999}} {
		for payment := uint64(1); payment < 500; payment++ {
			s := saleWith(rate[0], rate[1], 2, append([]domain.Stage(nil), stages...))
			q, err := ComputeQuote(s, payment)
			if errors.Is(err, ErrZeroTokens) {
				continue
			}
			if err != nil {
				t.Fatalf("rate %v payment %d: %v", rate, payment, err)
			}
			if q.Charge > payment || q.Charge+q.Refund != payment {
				t.Fatalf("rate %v payment %d: charge %d refund %d", rate, payment, q.Charge, q.Refund)
			}
			// The charge converts back to at least the USD spent.
			if q.Charge*rate[0]/rate[1] < q.USDSpent {
				t.Fatalf("rate %v payment %d: charge %d underpays %d USD", rate, payment, q.Charge, q.USDSpent)
			}
			if q.USDSpent > q.USDValue {
				t.Fatalf("rate %v payment %d: spent %d of %d", rate, payment, q.USDSpent, q.USDValue)
			}
		}
	}
}

func TestComputeQuote_StartsAtCurrentStage(t *testing.T) {
	s := saleWith(1, 1, 0, []domain.Stage{
		{PriceUSD: 1, Capacity: 10, Sold: 10},
		{PriceUSD: 2, Capacity: 10, Sold: 4},
		{PriceUSD: 4, Capacity: 10},
	})
	s.CurrentStage = 1

	q, err := ComputeQuote(s, 20)
	if err != nil {
		t.Fatalf("ComputeQuote failed: %v", err)
	}
	// 6 tokens at 2 (12 USD) then 2 tokens at 4 (8 USD).
	if q.Tokens != 8 || len(q.Fills) != 2 || q.Fills[0].Tokens != 6 || q.Fills[1].Tokens != 2 {
		t.Errorf("quote: %+v", q)
	}
	if q.FromStage != 1 || q.ToStage != 2 {
		t.Errorf("stages: %d -> %d", q.FromStage, q.ToStage)
	}
}

func TestComputeQuote_Overflow(t *testing.T) {
	s := saleWith(math.MaxUint64, 1, 19, []domain.Stage{{PriceUSD: 1, Capacity: math.MaxUint64}})
	if _, err := ComputeQuote(s, math.MaxUint64); !errors.Is(err, ErrMathOverflow) {
		t.Errorf("Expected ErrMathOverflow, got %v", err)
	}
}

func TestApplyQuote_RejectsStaleQuote(t *testing.T) {
	s := saleWith(1, 1, 0, []domain.Stage{{PriceUSD: 1, Capacity: 10}, {PriceUSD: 1, Capacity: 10}})
	q, err := ComputeQuote(s, 8)
	if err != nil {
		t.Fatalf("ComputeQuote failed: %v", err)
	}
	s.Stages[0].Sold = 5
	if err := applyQuote(s, q); !errors.Is(err, ErrLedgerInvariant) {
		t.Errorf("Expected ErrLedgerInvariant, got %v", err)
	}
}

func TestMulDiv_Rounding(t *testing.T) {
	tests := []struct {
		a, b, d uint64
		mode    rounding
		want    uint64
	}{
		{7, 3, 2, roundDown, 10},
		{7, 3, 2, roundUp, 11},
		{6, 3, 2, roundUp, 9},
		{math.MaxUint64, 2, 2, roundDown, math.MaxUint64},
	}
	for _, tt := range tests {
		got, err := mulDiv(tt.a, tt.b, tt.d, tt.mode)
		if err != nil {
			t.Fatalf("mulDiv(%d, %d, %d): %v", tt.a, tt.b, tt.d, err)
		}
		if got != tt.want {
			t.Errorf("mulDiv(%d, %d, %d, %d): got %d, want %d", tt.a, tt.b, tt.d, tt.mode, got, tt.want)
		}
	}
	if _, err := mulDiv(1, 1, 0, roundDown); !errors.Is(err, ErrMathOverflow) {
		t.Errorf("Expected ErrMathOverflow on zero divisor, got %v", err)
	}
}

func TestComputeQuote_FractionalStageBoundary(t *testing.T) {
	tests := []struct {
		name       string
		usdPerCoin uint64
		baseUnits  uint64
		stages     []domain.Stage
		payment    uint64
		wantTokens uint64
		wantCharge uint64
		wantFills  []StageFill
	}{
		{
			// One raw unit (0.01 token) left in stage 0; one cent buys a whole token.
			name:       "same price",
			usdPerCoin: 1, baseUnits: 1,
			stages:     []domain.Stage{{PriceUSD: 1, Capacity: 100, Sold: 99}, {PriceUSD: 1, Capacity: 100_000}},
			payment:    1,
			wantTokens: 100,
			wantCharge: 1,
			wantFills:  []StageFill{{Stage: 0, Tokens: 1}, {Stage: 1, Tokens: 99}},
		},
		{
			name:       "pricier next stage",
			usdPerCoin: 1, baseUnits: 1,
			stages:     []domain.Stage{{PriceUSD: 1, Capacity: 100, Sold: 99}, {PriceUSD: 3, Capacity: 100_000}},
			payment:    1,
			wantTokens: 34,
			wantCharge: 1,
			wantFills:  []StageFill{{Stage: 0, Tokens: 1}, {Stage: 1, Tokens: 33}},
		},
		{
			// A base unit is worth 0.01 cent: exactly the value of the last raw unit.
			name:       "sub-cent payment",
			usdPerCoin: 1, baseUnits: 100,
			stages:     []domain.Stage{{PriceUSD: 1, Capacity: 100, Sold: 99}},
			payment:    1,
			wantTokens: 1,
			wantCharge: 1,
			wantFills:  []StageFill{{Stage: 0, Tokens: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := saleWith(tt.usdPerCoin, tt.baseUnits, 2, tt.stages)
			q, err := ComputeQuote(s, tt.payment)
			if err != nil {
				t.Fatalf("ComputeQuote failed: %v", err)
			}
			if q.Tokens != tt.wantTokens || q.Charge != tt.wantCharge || q.Refund != tt.payment-tt.wantCharge {
				t.Errorf("tokens=%d charge=%d refund=%d, want tokens=%d charge=%d",
					q.Tokens, q.Charge, q.Refund, tt.wantTokens, tt.wantCharge)
			}
			if len(q.Fills) != len(tt.wantFills) {
				t.Fatalf("fills: got %+v", q.Fills)
			}
			for i, f := range tt.wantFills {
				if q.Fills[i].Stage != f.Stage || q.Fills[i].Tokens != f.Tokens {
					t.Errorf("fill %d: got %+v, want stage %d tokens %d", i, q.Fills[i], f.Stage, f.Tokens)
				}
			}
		})
	}
}

func TestComputeQuote_ChargeMatchesTokenValue(t *testing.T) {
	// 2-decimal token at 1 cent, 1 cent per base unit: every raw unit costs
	// 1/100 base unit, so the charge is ceil(tokens/100) and never more.
	for sold := uint64(0); sold < 100; sold += 7 {
		for payment := uint64(1); payment <= 5; payment++ {
			s := saleWith(1, 1, 2, []domain.Stage{
				{PriceUSD: 1, Capacity: 100, Sold: sold},
				{PriceUSD: 1, Capacity: 1_000_000},
			})
			q, err := ComputeQuote(s, payment)
			if err != nil {
				t.Fatalf("sold %d payment %d: %v", sold, payment, err)
			}
			if q.Tokens != payment*100 {
				t.Errorf("sold %d payment %d: tokens %d, want %d", sold, payment, q.Tokens, payment*100)
			}
			if want := (q.Tokens + 99) / 100; q.Charge != want {
				t.Errorf("sold %d payment %d: charge %d, want %d", sold, payment, q.Charge, want)
			}
		}
	}
}
