package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"token-presale/internal/domain"
	"token-presale/internal/presale"
)

const saleTOML = `
program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
owner = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
mint = "So11111111111111111111111111111111111111112"
token_decimals = 6
usd_per_coin = "150.25"
base_units_per_coin = 1000000000
start_time = 2026-01-01T00:00:00Z
end_time = 2026-03-01T00:00:00Z
claim_policy = "anytime"

[[stages]]
price_usd = "0.01"
tokens = "1000"

[[stages]]
price_usd = "0.025"
tokens = "500.5"
`

func writeSale(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sale.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write sale file: %v", err)
	}
	return path
}

func TestLoad_ParsesSale(t *testing.T) {
	sale, err := Load(writeSale(t, "usd_decimals = 3\n"+saleTOML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p, err := sale.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.USDPerCoin != 150_250 {
		t.Errorf("usd per coin: got %d, want 150250", p.USDPerCoin)
	}
	if p.TokenDecimals != 6 || p.ClaimPolicy != domain.ClaimAnytime {
		t.Errorf("decimals=%d policy=%s", p.TokenDecimals, p.ClaimPolicy)
	}
	if p.EndTime-p.StartTime != 59*24*3600 {
		t.Errorf("window length: got %d", p.EndTime-p.StartTime)
	}
	want := []domain.Stage{
		{PriceUSD: 10, Capacity: 1_000_000_000},
		{PriceUSD: 25, Capacity: 500_500_000},
	}
	if len(p.Stages) != len(want) {
		t.Fatalf("stages: got %d, want %d", len(p.Stages), len(want))
	}
	for i := range want {
		if p.Stages[i] != want[i] {
			t.Errorf("stage %d: got %+v, want %+v", i, p.Stages[i], want[i])
		}
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeSale(t, saleTOML+"surprise = true\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	if _, err := Decode(saleTOML); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	_, err := Decode("usd_per_coin_typo = \"150\"\n" + saleTOML)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "usd_per_coin_typo") {
		t.Errorf("error does not name the key: %v", err)
	}
}

func TestParams_DefaultLadder(t *testing.T) {
	sale, err := Decode(`
program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
usd_per_coin = "150"
base_units_per_coin = 1000000000
start_time = 2026-01-01T00:00:00Z
end_time = 2026-02-01T00:00:00Z
`)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p, err := sale.Params()
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if p.TokenDecimals != presale.DefaultTokenDecimals || len(p.Stages) != 5 {
		t.Errorf("default ladder not applied: decimals=%d stages=%d", p.TokenDecimals, len(p.Stages))
	}
	if p.USDPerCoin != 15_000 || p.Stages[0].PriceUSD != 1 {
		t.Errorf("cents: usd_per_coin=%d price0=%d", p.USDPerCoin, p.Stages[0].PriceUSD)
	}
}

func TestParams_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad program": `program_id = "x"
usd_per_coin = "1"
base_units_per_coin = 1
start_time = 2026-01-01T00:00:00Z
end_time = 2026-02-01T00:00:00Z`,
		"sub-cent price": `program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
usd_per_coin = "1"
base_units_per_coin = 1
start_time = 2026-01-01T00:00:00Z
end_time = 2026-02-01T00:00:00Z
[[stages]]
price_usd = "0.001"
tokens = "1"`,
		"missing window": `program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
usd_per_coin = "1"
base_units_per_coin = 1`,
		"zero base units": `program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
usd_per_coin = "1"
start_time = 2026-01-01T00:00:00Z
end_time = 2026-02-01T00:00:00Z`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			sale, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if _, err := sale.Params(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
