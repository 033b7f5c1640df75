// Package config loads sale definitions from TOML files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"token-presale/internal/address"
	"token-presale/internal/domain"
	"token-presale/internal/presale"
	"token-presale/internal/units"
)

// ErrInvalidConfig is returned for sale files that cannot describe a sale.
var ErrInvalidConfig = errors.New("invalid sale config")

// DefaultUSDDecimals expresses USD prices in cents.
const DefaultUSDDecimals = 2

// Stage is one tier as written in the sale file.
type Stage struct {
	PriceUSD string `toml:"price_usd"` // decimal USD per whole token, e.g. "0.01"
	Tokens   string `toml:"tokens"`    // whole tokens, e.g. "150000000"
}

// Sale is the TOML sale definition.
type Sale struct {
	ProgramID        string             `toml:"program_id"`
	Owner            string             `toml:"owner"`
	Mint             string             `toml:"mint"`
	TokenDecimals    *uint8             `toml:"token_decimals"`
	USDDecimals      *uint8             `toml:"usd_decimals"`
	USDPerCoin       string             `toml:"usd_per_coin"` // decimal USD per whole base coin
	BaseUnitsPerCoin uint64             `toml:"base_units_per_coin"`
	StartTime        time.Time          `toml:"start_time"`
	EndTime          time.Time          `toml:"end_time"`
	ClaimPolicy      domain.ClaimPolicy `toml:"claim_policy"`
	Stages           []Stage            `toml:"stages"`
}

// Load reads a sale definition. Unknown keys are rejected.
func Load(path string) (*Sale, error) {
	sale := &Sale{}
	meta, err := toml.DecodeFile(path, sale)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := checkUndecoded(meta, path); err != nil {
		return nil, err
	}
	return sale, nil
}

// Decode parses a sale definition from TOML text. Unknown keys are rejected.
func Decode(data string) (*Sale, error) {
	sale := &Sale{}
	meta, err := toml.Decode(data, sale)
	if err != nil {
		return nil, fmt.Errorf("decode sale config: %w", err)
	}
	if err := checkUndecoded(meta, "sale config"); err != nil {
		return nil, err
	}
	return sale, nil
}

func checkUndecoded(meta toml.MetaData, source string) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, source, strings.Join(keys, ", "))
}

func (s *Sale) tokenDecimals() uint8 {
	if s.TokenDecimals == nil {
		return presale.DefaultTokenDecimals
	}
	return *s.TokenDecimals
}

func (s *Sale) usdDecimals() uint8 {
	if s.USDDecimals == nil {
		return DefaultUSDDecimals
	}
	return *s.USDDecimals
}

// Params converts the definition into engine parameters. A file without
// stages gets the default five-tier ladder.
func (s *Sale) Params() (presale.Params, error) {
	var p presale.Params

	if !address.Valid(s.ProgramID) {
		return p, fmt.Errorf("%w: program_id %q", ErrInvalidConfig, s.ProgramID)
	}
	if s.BaseUnitsPerCoin == 0 {
		return p, fmt.Errorf("%w: base_units_per_coin must be positive", ErrInvalidConfig)
	}
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return p, fmt.Errorf("%w: start_time and end_time are required", ErrInvalidConfig)
	}

	usdDecimals := s.usdDecimals()
	usdPerCoin, err := units.Parse(s.USDPerCoin, usdDecimals)
	if err != nil {
		return p, fmt.Errorf("%w: usd_per_coin: %v", ErrInvalidConfig, err)
	}

	decimals := s.tokenDecimals()
	var stages []domain.Stage
	if len(s.Stages) == 0 {
		if usdDecimals != DefaultUSDDecimals {
			return p, fmt.Errorf("%w: default ladder is priced in cents, usd_decimals must be %d", ErrInvalidConfig, DefaultUSDDecimals)
		}
		stages, err = presale.DefaultStages(decimals)
	} else {
		stages, err = s.buildStages(usdDecimals, decimals)
	}
	if err != nil {
		return p, fmt.Errorf("%w: stages: %v", ErrInvalidConfig, err)
	}

	return presale.Params{
		Owner:            s.Owner,
		Mint:             s.Mint,
		USDPerCoin:       usdPerCoin,
		BaseUnitsPerCoin: s.BaseUnitsPerCoin,
		TokenDecimals:    decimals,
		StartTime:        s.StartTime.Unix(),
		EndTime:          s.EndTime.Unix(),
		Stages:           stages,
		ClaimPolicy:      s.ClaimPolicy,
	}, nil
}

func (s *Sale) buildStages(usdDecimals, tokenDecimals uint8) ([]domain.Stage, error) {
	stages := make([]domain.Stage, len(s.Stages))
	for i, st := range s.Stages {
		price, err := units.Parse(st.PriceUSD, usdDecimals)
		if err != nil {
			return nil, fmt.Errorf("stage %d price: %w", i, err)
		}
		capacity, err := units.Parse(st.Tokens, tokenDecimals)
		if err != nil {
			return nil, fmt.Errorf("stage %d tokens: %w", i, err)
		}
		stages[i] = domain.Stage{PriceUSD: price, Capacity: capacity}
	}
	return stages, nil
}
