package presale

import (
	"fmt"

	"token-presale/internal/domain"
)

// Default ladder of the original sale: prices in USD cents per token and
// capacities in whole tokens.
var (
	DefaultStagePrices   = []uint64{1, 2, 3, 4, 5}
	DefaultStageTokens   = []uint64{150_000_000, 200_000_000, 200_000_000, 225_000_000, 225_000_000}
	DefaultTokenDecimals = uint8(9)
)

// maxTokenDecimals keeps 10^decimals inside uint64.
const maxTokenDecimals = 19

// TokenBase returns 10^decimals.
func TokenBase(decimals uint8) (uint64, error) {
	if decimals > maxTokenDecimals {
		return 0, fmt.Errorf("%w: token decimals %d", ErrInvalidParams, decimals)
	}
	base := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		base *= 10
	}
	return base, nil
}

// BuildStages converts whole-token capacities into a raw-unit stage table.
func BuildStages(prices, wholeTokens []uint64, decimals uint8) ([]domain.Stage, error) {
	if len(prices) != len(wholeTokens) {
		return nil, fmt.Errorf("%w: %d prices for %d capacities", ErrInvalidStage, len(prices), len(wholeTokens))
	}
	base, err := TokenBase(decimals)
	if err != nil {
		return nil, err
	}

	stages := make([]domain.Stage, len(prices))
	for i := range prices {
		capRaw, err := mulDiv(wholeTokens[i], base, 1, roundDown)
		if err != nil {
			return nil, fmt.Errorf("stage %d capacity: %w", i, err)
		}
		stages[i] = domain.Stage{PriceUSD: prices[i], Capacity: capRaw}
	}
	return stages, nil
}

// DefaultStages returns the five-tier ladder at the given decimals.
func DefaultStages(decimals uint8) ([]domain.Stage, error) {
	return BuildStages(DefaultStagePrices, DefaultStageTokens, decimals)
}

// validateStages checks a stage table before initialization.
func validateStages(stages []domain.Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w: empty ladder", ErrInvalidStage)
	}
	var total uint64
	for i, st := range stages {
		if st.PriceUSD == 0 {
			return fmt.Errorf("%w: stage %d has zero price", ErrInvalidStage, i)
		}
		if st.Capacity == 0 {
			return fmt.Errorf("%w: stage %d has zero capacity", ErrInvalidStage, i)
		}
		if st.Sold != 0 {
			return fmt.Errorf("%w: stage %d starts with sold tokens", ErrInvalidStage, i)
		}
		if st.Capacity > ^uint64(0)-total {
			return fmt.Errorf("%w: total capacity", ErrMathOverflow)
		}
		total += st.Capacity
	}
	return nil
}

// RemainingCapacity returns capacity minus sold for a stage.
func RemainingCapacity(s *domain.SaleState, stage int) (uint64, error) {
	if stage < 0 || stage >= len(s.Stages) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStage, stage)
	}
	st := s.Stages[stage]
	if st.Sold > st.Capacity {
		return 0, fmt.Errorf("%w: stage %d sold %d over capacity %d", ErrLedgerInvariant, stage, st.Sold, st.Capacity)
	}
	return st.Capacity - st.Sold, nil
}

// PriceForStage returns the fixed USD price of a stage.
func PriceForStage(s *domain.SaleState, stage int) (uint64, error) {
	if stage < 0 || stage >= len(s.Stages) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStage, stage)
	}
	return s.Stages[stage].PriceUSD, nil
}
