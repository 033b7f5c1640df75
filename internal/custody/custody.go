// Package custody defines the value-moving collaborators of a sale: the
// payment treasury and the token mint authority.
package custody

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientBalance is returned when a payer cannot cover a transfer.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	// ErrSupplyExceeded is returned when a mint would pass the supply cap.
	ErrSupplyExceeded = errors.New("custody: mint exceeds supply cap")
	// ErrInvalidAmount is returned for zero or overflowing amounts.
	ErrInvalidAmount = errors.New("custody: invalid amount")
)

// Treasury holds base-currency payments on behalf of the sale.
type Treasury interface {
	// Collect moves amount base units from payer into custody.
	Collect(ctx context.Context, payer string, amount uint64) error
	// Pay moves amount base units out of custody to recipient.
	Pay(ctx context.Context, recipient string, amount uint64) error
}

// Minter holds the mint authority of the sold token.
type Minter interface {
	// MintTo creates amount raw tokens in the recipient's token account.
	MintTo(ctx context.Context, recipient string, amount uint64) error
}
