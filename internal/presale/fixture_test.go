package presale

import (
	"context"
	"crypto/sha256"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"token-presale/internal/custody"
	"token-presale/internal/domain"
	"token-presale/internal/storage/memory"
)

const testProgramID = "DjWmjS3imyiNpBVzv7LFFVZWztcYjAAXpXE2RM61oAGc"

// Sale window used by every fixture.
const (
	testStart = int64(1_700_000_000)
	testEnd   = int64(1_700_086_400)
)

// testKey returns a deterministic base58 identity for name.
func testKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return base58.Encode(sum[:])
}

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *testClock) Set(unix int64) {
	c.mu.Lock()
	c.now = unix
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	store  *memory.SaleStore
	bank   *custody.Bank
	clock  *testClock
	owner  string
	mint   string
}

// ladder returns five tiers at prices 1..5 with the given capacity each.
func ladder(capacity uint64) []domain.Stage {
	stages := make([]domain.Stage, 5)
	for i := range stages {
		stages[i] = domain.Stage{PriceUSD: uint64(i + 1), Capacity: capacity}
	}
	return stages
}

// newFixture initializes a sale with raw-unit tokens (0 decimals) and the
// clock inside the window.
func newFixture(t *testing.T, usdPerCoin, baseUnitsPerCoin uint64, stages []domain.Stage, policy domain.ClaimPolicy) *fixture {
	t.Helper()

	var supply uint64
	for _, st := range stages {
		supply += st.Capacity
	}
	f := &fixture{
		store: memory.NewSaleStore(),
		bank:  custody.NewBank(supply),
		clock: &testClock{now: testStart + 60},
		owner: testKey("owner"),
		mint:  testKey("mint"),
	}

	engine, err := NewEngine(Options{
		ProgramID: testProgramID,
		Store:     f.store,
		Treasury:  f.bank,
		Minter:    f.bank,
		Logger:    log.New(io.Discard, "", 0),
		Now:       f.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	f.engine = engine

	_, err = engine.Initialize(context.Background(), Params{
		Owner:            f.owner,
		Mint:             f.mint,
		USDPerCoin:       usdPerCoin,
		BaseUnitsPerCoin: baseUnitsPerCoin,
		TokenDecimals:    0,
		StartTime:        testStart,
		EndTime:          testEnd,
		Stages:           stages,
		ClaimPolicy:      policy,
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return f
}

// fund gives a buyer base units and returns its identity.
func (f *fixture) fund(t *testing.T, name string, amount uint64) string {
	t.Helper()
	buyer := testKey(name)
	if err := f.bank.Fund(buyer, amount); err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	return buyer
}

func (f *fixture) state(t *testing.T) *domain.SaleState {
	t.Helper()
	s, err := f.engine.GetSaleState(context.Background())
	if err != nil {
		t.Fatalf("GetSaleState failed: %v", err)
	}
	return s
}

func (f *fixture) mustHoldInvariants(t *testing.T) {
	t.Helper()
	if err := f.engine.CheckInvariants(context.Background()); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
}
