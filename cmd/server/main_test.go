package main

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"token-presale/internal/api"
	"token-presale/internal/config"
	"token-presale/internal/presale"
	"token-presale/internal/storage/memory"
)

const (
	testOwner = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testBuyer = "Vote111111111111111111111111111111111111111"
)

// Window spans the test run so purchases are accepted on the wall clock.
const restartSaleTOML = `
program_id = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"
owner = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
mint = "So11111111111111111111111111111111111111112"
token_decimals = 0
usd_per_coin = "10"
base_units_per_coin = 1
start_time = 2020-01-01T00:00:00Z
end_time = 2100-01-01T00:00:00Z

[[stages]]
price_usd = "0.01"
tokens = "1000000"
`

func newTestServer(stores *saleStores) *Server {
	quiet := log.New(io.Discard, "", 0)
	return &Server{
		stores: stores,
		hub:    api.NewHub(quiet),
		logger: quiet,
	}
}

func TestSetupEngine_RestoresCustodyAfterRestart(t *testing.T) {
	ctx := context.Background()
	sale, err := config.Decode(restartSaleTOML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	stores := &saleStores{
		sales:   memory.NewSaleStore(),
		archive: memory.NewSaleEventStore(),
	}

	first := newTestServer(stores)
	defer first.hub.Close()
	if err := first.setupEngine(ctx, sale.ProgramID, sale); err != nil {
		t.Fatalf("setupEngine failed: %v", err)
	}
	if err := first.bank.Fund(testBuyer, 15); err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	res, err := first.engine.Buy(ctx, testBuyer, 15)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if res.PaymentCharged != 15 {
		t.Fatalf("charge: got %d, want 15", res.PaymentCharged)
	}

	// Same store, new process.
	second := newTestServer(stores)
	defer second.hub.Close()
	if err := second.setupEngine(ctx, sale.ProgramID, sale); err != nil {
		t.Fatalf("setupEngine after restart failed: %v", err)
	}
	if second.bank.Custody() != 15 {
		t.Fatalf("restored custody: got %d, want 15", second.bank.Custody())
	}

	if err := second.engine.WithdrawFunds(ctx, testOwner, 16); !errors.Is(err, presale.ErrInsufficientCustody) {
		t.Errorf("Expected ErrInsufficientCustody, got %v", err)
	}
	if err := second.engine.WithdrawFunds(ctx, testOwner, 15); err != nil {
		t.Fatalf("WithdrawFunds after restart failed: %v", err)
	}
	if second.bank.Balance(testOwner) != 15 || second.bank.Custody() != 0 {
		t.Errorf("owner=%d custody=%d, want 15/0", second.bank.Balance(testOwner), second.bank.Custody())
	}
	if err := second.engine.CheckInvariants(ctx); err != nil {
		t.Errorf("invariants broken: %v", err)
	}
}

func TestSetupEngine_RequiresConfigForNewSale(t *testing.T) {
	stores := &saleStores{
		sales:   memory.NewSaleStore(),
		archive: memory.NewSaleEventStore(),
	}
	s := newTestServer(stores)
	defer s.hub.Close()

	err := s.setupEngine(context.Background(), "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc", nil)
	if err == nil {
		t.Fatal("Expected error for an uninitialized sale without a definition")
	}
}
