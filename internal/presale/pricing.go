package presale

import (
	"fmt"

	"github.com/holiman/uint256"

	"token-presale/internal/domain"
)

type rounding int

const (
	roundDown rounding = iota
	roundUp
)

// mulDiv256 computes a*b/d in 256 bits. d must be non-zero.
func mulDiv256(a, b, d *uint256.Int, mode rounding) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrMathOverflow)
	}
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrMathOverflow, a, b)
	}
	q, r := new(uint256.Int).DivMod(prod, d, new(uint256.Int))
	if mode == roundUp && !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// mulDiv computes a*b/d and fails if the result does not fit in uint64.
func mulDiv(a, b, d uint64, mode rounding) (uint64, error) {
	q, err := mulDiv256(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d), mode)
	if err != nil {
		return 0, err
	}
	return toUint64(q)
}

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s exceeds uint64", ErrMathOverflow, v)
	}
	return v.Uint64(), nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrMathOverflow, a, b)
	}
	return sum, nil
}

// StageFill is the part of a purchase served by one stage.
type StageFill struct {
	Stage    int    `json:"stage"`
	Tokens   uint64 `json:"tokens"`    // raw tokens taken from the stage
	USDSpent uint64 `json:"usd_spent"` // USD price units consumed, rounded down
}

// Quote is the fully computed effect of a payment against the current ladder.
// It is pure: computing a quote never mutates sale state.
type Quote struct {
	Payment   uint64      `json:"payment"`    // base units offered
	USDValue  uint64      `json:"usd_value"`  // floor(payment * usdPerCoin / baseUnitsPerCoin)
	USDSpent  uint64      `json:"usd_spent"`  // exact spend in USD price units, rounded down
	Charge    uint64      `json:"charge"`     // base units taken into custody
	Refund    uint64      `json:"refund"`     // base units left with the buyer
	Tokens    uint64      `json:"tokens"`     // raw tokens credited
	Fills     []StageFill `json:"fills"`      // stages touched, in order
	FromStage int         `json:"from_stage"` // current stage before the buy
	ToStage   int         `json:"to_stage"`   // current stage after the buy
}

// ComputeQuote prices a payment against the ladder starting at the current stage.
//
// Rounding: the budget is carried in price units scaled by the token base, so
// every stage consumes exactly take*price and nothing is rounded per stage.
// Tokens round down; the charge is rounded up once, to the smallest base-unit
// amount covering the exact spend. Whatever is left is refunded, never
// collected. The purchase is all-or-nothing: when every stage is full and the
// remainder could still buy a raw unit, it fails with ErrSaleExhausted instead
// of partially filling.
func ComputeQuote(s *domain.SaleState, payment uint64) (*Quote, error) {
	if payment == 0 {
		return nil, ErrZeroPurchase
	}
	if s.USDPerCoin == 0 || s.BaseUnitsPerCoin == 0 {
		return nil, ErrInvalidRate
	}
	n := len(s.Stages)
	if s.CurrentStage < 0 || s.CurrentStage >= n {
		return nil, fmt.Errorf("%w: current stage %d", ErrInvalidStage, s.CurrentStage)
	}
	if s.SoldOut() {
		return nil, ErrSaleExhausted
	}
	base, err := TokenBase(s.TokenDecimals)
	if err != nil {
		return nil, err
	}
	tokenBase := uint256.NewInt(base)
	perCoin := uint256.NewInt(s.BaseUnitsPerCoin)
	paymentUSD := new(uint256.Int).Mul(uint256.NewInt(payment), uint256.NewInt(s.USDPerCoin))

	usd, err := mulDiv256(paymentUSD, uint256.NewInt(1), perCoin, roundDown)
	if err != nil {
		return nil, err
	}
	usdValue, err := toUint64(usd)
	if err != nil {
		return nil, err
	}
	// budget = floor(payment * usdPerCoin * tokenBase / baseUnitsPerCoin)
	budget, err := mulDiv256(paymentUSD, tokenBase, perCoin, roundDown)
	if err != nil {
		return nil, err
	}

	q := &Quote{Payment: payment, USDValue: usdValue, FromStage: s.CurrentStage}
	spent := new(uint256.Int) // scaled by tokenBase
	tokens := new(uint256.Int)
	stage := s.CurrentStage
	exhausted := false

	for !budget.IsZero() {
		remaining, err := RemainingCapacity(s, stage)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			if stage == n-1 {
				exhausted = true
				break
			}
			stage++
			continue
		}

		price := uint256.NewInt(s.Stages[stage].PriceUSD)
		affordable := new(uint256.Int).Div(budget, price)
		if affordable.IsZero() {
			break // residue below one raw unit at this price
		}

		take := uint256.NewInt(remaining)
		filled := true
		if affordable.Lt(take) {
			take = affordable
			filled = false
		}
		cost := new(uint256.Int).Mul(take, price)
		if cost.Gt(budget) {
			return nil, fmt.Errorf("%w: stage %d cost %s above budget %s", ErrLedgerInvariant, stage, cost, budget)
		}

		budget.Sub(budget, cost)
		spent.Add(spent, cost)
		tokens.Add(tokens, take)
		q.Fills = append(q.Fills, StageFill{
			Stage:    stage,
			Tokens:   take.Uint64(),
			USDSpent: new(uint256.Int).Div(cost, tokenBase).Uint64(),
		})

		if !filled {
			break
		}
		if stage == n-1 {
			exhausted = true
			break
		}
		stage++
	}

	if exhausted && !budget.IsZero() {
		lastPrice := uint256.NewInt(s.Stages[n-1].PriceUSD)
		if leftover := new(uint256.Int).Div(budget, lastPrice); !leftover.IsZero() {
			return nil, fmt.Errorf("%w: %s scaled USD units could not be absorbed", ErrSaleExhausted, budget)
		}
	}
	if tokens.IsZero() {
		return nil, ErrZeroTokens
	}

	if q.Tokens, err = toUint64(tokens); err != nil {
		return nil, err
	}
	if q.USDSpent, err = toUint64(new(uint256.Int).Div(spent, tokenBase)); err != nil {
		return nil, err
	}
	// charge = ceil(spent * baseUnitsPerCoin / (tokenBase * usdPerCoin))
	charge, err := mulDiv256(spent, perCoin, new(uint256.Int).Mul(tokenBase, uint256.NewInt(s.USDPerCoin)), roundUp)
	if err != nil {
		return nil, err
	}
	if !charge.IsUint64() || charge.Uint64() > payment {
		return nil, fmt.Errorf("%w: charge %s above payment %d", ErrLedgerInvariant, charge, payment)
	}
	q.Charge = charge.Uint64()
	q.Refund = payment - q.Charge
	q.ToStage = stage
	return q, nil
}

// applyQuote writes a quote's fills into sale state. The quote must have been
// computed against the same state.
func applyQuote(s *domain.SaleState, q *Quote) error {
	if q.FromStage != s.CurrentStage {
		return fmt.Errorf("%w: quote computed at stage %d, state at %d", ErrLedgerInvariant, q.FromStage, s.CurrentStage)
	}
	if q.ToStage < s.CurrentStage {
		return fmt.Errorf("%w: stage would move back from %d to %d", ErrLedgerInvariant, s.CurrentStage, q.ToStage)
	}
	for _, f := range q.Fills {
		remaining, err := RemainingCapacity(s, f.Stage)
		if err != nil {
			return err
		}
		if f.Tokens > remaining {
			return fmt.Errorf("%w: stage %d fill %d above remaining %d", ErrLedgerInvariant, f.Stage, f.Tokens, remaining)
		}
		s.Stages[f.Stage].Sold += f.Tokens
	}
	s.CurrentStage = q.ToStage
	return nil
}
