package custody

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Bank is an in-memory ledger of base-currency and token balances. It plays
// both Treasury and Minter for local runs and tests.
type Bank struct {
	mu        sync.Mutex
	native    map[string]uint64 // base units per account
	tokens    map[string]uint64 // raw tokens per account
	custody   uint64
	minted    uint64
	supplyCap uint64 // 0 means unlimited
}

// NewBank creates an empty bank. supplyCap of 0 disables the mint cap.
func NewBank(supplyCap uint64) *Bank {
	return &Bank{
		native:    make(map[string]uint64),
		tokens:    make(map[string]uint64),
		supplyCap: supplyCap,
	}
}

// RestoreBank creates a bank that already holds custody base units and has
// minted raw tokens, matching a sale ledger loaded from durable storage.
// Per-account balances are not recovered.
func RestoreBank(supplyCap, custody, minted uint64) (*Bank, error) {
	if supplyCap > 0 && minted > supplyCap {
		return nil, fmt.Errorf("%w: minted %d > %d", ErrSupplyExceeded, minted, supplyCap)
	}
	b := NewBank(supplyCap)
	b.custody = custody
	b.minted = minted
	return b, nil
}

// Fund credits base units to an account (airdrop).
func (b *Bank) Fund(account string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.native[account]
	if amount > math.MaxUint64-bal {
		return ErrInvalidAmount
	}
	b.native[account] = bal + amount
	return nil
}

// Collect moves amount base units from payer into custody.
func (b *Bank) Collect(ctx context.Context, payer string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.native[payer]
	if bal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, payer, bal, amount)
	}
	if amount > math.MaxUint64-b.custody {
		return ErrInvalidAmount
	}
	b.native[payer] = bal - amount
	b.custody += amount
	return nil
}

// Pay moves amount base units out of custody to recipient.
func (b *Bank) Pay(ctx context.Context, recipient string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.custody < amount {
		return fmt.Errorf("%w: custody has %d, needs %d", ErrInsufficientBalance, b.custody, amount)
	}
	bal := b.native[recipient]
	if amount > math.MaxUint64-bal {
		return ErrInvalidAmount
	}
	b.custody -= amount
	b.native[recipient] = bal + amount
	return nil
}

// MintTo creates amount raw tokens for recipient.
func (b *Bank) MintTo(ctx context.Context, recipient string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > math.MaxUint64-b.minted {
		return ErrInvalidAmount
	}
	if b.supplyCap > 0 && b.minted+amount > b.supplyCap {
		return fmt.Errorf("%w: minted %d + %d > %d", ErrSupplyExceeded, b.minted, amount, b.supplyCap)
	}
	b.minted += amount
	b.tokens[recipient] += amount
	return nil
}

// Balance returns the base-unit balance of an account.
func (b *Bank) Balance(account string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.native[account]
}

// TokenBalance returns the raw token balance of an account.
func (b *Bank) TokenBalance(account string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[account]
}

// Custody returns the base units currently held for the sale.
func (b *Bank) Custody() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// Minted returns the total raw tokens minted so far.
func (b *Bank) Minted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minted
}

var (
	_ Treasury = (*Bank)(nil)
	_ Minter   = (*Bank)(nil)
)
