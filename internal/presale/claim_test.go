package presale

import (
	"context"
	"errors"
	"testing"

	"token-presale/internal/domain"
)

func TestClaim_BeforeAnyBuy(t *testing.T) {
	f := newFixture(t, 10, 1, ladder(100), domain.ClaimAnytime)

	_, err := f.engine.Claim(context.Background(), testKey("alice"))
	if !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("Expected ErrNothingToClaim, got %v", err)
	}
}

func TestClaim_AfterEndReleasesOnce(t *testing.T) {
	f := newFixture(t, 10, 1, ladder(100), domain.ClaimAfterEnd)
	buyer := f.fund(t, "alice", 15)
	if _, err := f.engine.Buy(context.Background(), buyer, 15); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if _, err := f.engine.Claim(context.Background(), buyer); !errors.Is(err, ErrClaimNotOpen) {
		t.Fatalf("Expected ErrClaimNotOpen inside window, got %v", err)
	}

	f.clock.Set(testEnd + 1)
	res, err := f.engine.Claim(context.Background(), buyer)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if res.TokensReleased != 125 {
		t.Errorf("released: got %d, want 125", res.TokensReleased)
	}
	if f.bank.TokenBalance(buyer) != 125 {
		t.Errorf("token balance: got %d, want 125", f.bank.TokenBalance(buyer))
	}

	before := f.state(t)
	if _, err := f.engine.Claim(context.Background(), buyer); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("Expected ErrNothingToClaim on second claim, got %v", err)
	}
	after := f.state(t)
	if after.TotalClaimed != before.TotalClaimed || f.bank.Minted() != 125 {
		t.Errorf("second claim changed state: claimed=%d minted=%d", after.TotalClaimed, f.bank.Minted())
	}
	f.mustHoldInvariants(t)
}

func TestClaim_OpensOnSellOut(t *testing.T) {
	f := newFixture(t, 1, 1, []domain.Stage{{PriceUSD: 1, Capacity: 10}}, domain.ClaimAfterEnd)
	buyer := f.fund(t, "alice", 10)
	if _, err := f.engine.Buy(context.Background(), buyer, 10); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	res, err := f.engine.Claim(context.Background(), buyer)
	if err != nil {
		t.Fatalf("Claim after sell-out failed: %v", err)
	}
	if res.TokensReleased != 10 {
		t.Errorf("released: got %d, want 10", res.TokensReleased)
	}
}

func TestClaim_AnytimeAccumulates(t *testing.T) {
	f := newFixture(t, 10, 1, ladder(100), domain.ClaimAnytime)
	buyer := f.fund(t, "alice", 20)
	ctx := context.Background()

	if _, err := f.engine.Buy(ctx, buyer, 5); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if res, err := f.engine.Claim(ctx, buyer); err != nil || res.TokensReleased != 50 {
		t.Fatalf("first claim: res=%+v err=%v", res, err)
	}
	if _, err := f.engine.Buy(ctx, buyer, 5); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	res, err := f.engine.Claim(ctx, buyer)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	// 50 more tokens at price 1 fill stage 0 exactly.
	if res.TokensReleased != 50 || res.Claimed != 100 || res.Purchased != 100 {
		t.Errorf("second claim: %+v", res)
	}
	f.mustHoldInvariants(t)
}

func TestClaim_Paused(t *testing.T) {
	f := newFixture(t, 10, 1, ladder(100), domain.ClaimAnytime)
	buyer := f.fund(t, "alice", 1)
	if _, err := f.engine.Buy(context.Background(), buyer, 1); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if err := f.engine.Pause(context.Background(), f.owner); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	if _, err := f.engine.Claim(context.Background(), buyer); !errors.Is(err, ErrSalePaused) {
		t.Errorf("Expected ErrSalePaused, got %v", err)
	}
	if f.bank.TokenBalance(buyer) != 0 {
		t.Error("paused claim must not mint")
	}
}
