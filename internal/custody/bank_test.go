package custody

import (
	"context"
	"errors"
	"testing"
)

func TestBank_CollectAndPay(t *testing.T) {
	ctx := context.Background()
	bank := NewBank(0)

	if err := bank.Fund("alice", 100); err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	if err := bank.Collect(ctx, "alice", 60); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if bank.Balance("alice") != 40 {
		t.Errorf("alice balance: got %d, want 40", bank.Balance("alice"))
	}
	if bank.Custody() != 60 {
		t.Errorf("custody: got %d, want 60", bank.Custody())
	}

	if err := bank.Pay(ctx, "owner", 25); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if bank.Balance("owner") != 25 || bank.Custody() != 35 {
		t.Errorf("after pay: owner=%d custody=%d", bank.Balance("owner"), bank.Custody())
	}
}

func TestBank_CollectInsufficient(t *testing.T) {
	bank := NewBank(0)
	_ = bank.Fund("bob", 5)

	err := bank.Collect(context.Background(), "bob", 6)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if bank.Balance("bob") != 5 || bank.Custody() != 0 {
		t.Error("failed collect must not move funds")
	}
}

func TestBank_PayMoreThanCustody(t *testing.T) {
	err := NewBank(0).Pay(context.Background(), "owner", 1)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBank_MintCap(t *testing.T) {
	ctx := context.Background()
	bank := NewBank(100)

	if err := bank.MintTo(ctx, "alice", 70); err != nil {
		t.Fatalf("MintTo failed: %v", err)
	}
	if err := bank.MintTo(ctx, "bob", 31); !errors.Is(err, ErrSupplyExceeded) {
		t.Errorf("Expected ErrSupplyExceeded, got %v", err)
	}
	if err := bank.MintTo(ctx, "bob", 30); err != nil {
		t.Fatalf("MintTo at cap failed: %v", err)
	}
	if bank.Minted() != 100 || bank.TokenBalance("alice") != 70 || bank.TokenBalance("bob") != 30 {
		t.Errorf("unexpected balances: minted=%d alice=%d bob=%d",
			bank.Minted(), bank.TokenBalance("alice"), bank.TokenBalance("bob"))
	}
}

func TestBank_ZeroAmount(t *testing.T) {
	ctx := context.Background()
	bank := NewBank(0)

	if err := bank.Collect(ctx, "a", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Collect(0): expected ErrInvalidAmount, got %v", err)
	}
	if err := bank.MintTo(ctx, "a", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("MintTo(0): expected ErrInvalidAmount, got %v", err)
	}
}

func TestRestoreBank(t *testing.T) {
	ctx := context.Background()
	bank, err := RestoreBank(100, 15, 40)
	if err != nil {
		t.Fatalf("RestoreBank failed: %v", err)
	}
	if bank.Custody() != 15 || bank.Minted() != 40 {
		t.Fatalf("custody=%d minted=%d, want 15/40", bank.Custody(), bank.Minted())
	}

	if err := bank.Pay(ctx, "owner", 15); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	if bank.Balance("owner") != 15 || bank.Custody() != 0 {
		t.Errorf("after pay: owner=%d custody=%d", bank.Balance("owner"), bank.Custody())
	}

	// The cap counts tokens minted before the restore.
	if err := bank.MintTo(ctx, "alice", 61); !errors.Is(err, ErrSupplyExceeded) {
		t.Errorf("Expected ErrSupplyExceeded, got %v", err)
	}
	if err := bank.MintTo(ctx, "alice", 60); err != nil {
		t.Errorf("MintTo failed: %v", err)
	}

	if _, err := RestoreBank(10, 0, 11); !errors.Is(err, ErrSupplyExceeded) {
		t.Errorf("Expected ErrSupplyExceeded for minted above cap, got %v", err)
	}
}
