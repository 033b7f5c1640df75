// Package address handles base58 public keys and program-derived addresses.
package address

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of an ed25519 public key.
const PubkeyLength = 32

// ErrInvalidPubkey is returned when a string is not a base58 32-byte key.
var ErrInvalidPubkey = errors.New("invalid public key")

// Pubkey is a 32-byte account identity.
type Pubkey [PubkeyLength]byte

// ParsePubkey decodes a base58 string into a Pubkey.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	if s == "" {
		return pk, fmt.Errorf("%w: empty", ErrInvalidPubkey)
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	if len(decoded) != PubkeyLength {
		return pk, fmt.Errorf("%w: length %d", ErrInvalidPubkey, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for constants; it panics on bad input.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether every byte is zero.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Valid reports whether s parses as a Pubkey.
func Valid(s string) bool {
	_, err := ParsePubkey(s)
	return err == nil
}
