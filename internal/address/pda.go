package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Seeds used by the presale program.
var (
	SeedSaleState  = []byte("presale_state")
	SeedTreasury   = []byte("treasury")
	SeedMintAuth   = []byte("mint_auth")
	SeedAllocation = []byte("user_alloc")
)

const (
	maxSeedLength = 32
	maxSeeds      = 16
	pdaMarker     = "ProgramDerivedAddress"
)

var (
	// ErrNoViableBump is returned when no bump yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")
	// ErrSeedTooLong is returned when a seed exceeds 32 bytes.
	ErrSeedTooLong = errors.New("seed exceeds max length")
)

// CreateProgramAddress hashes seeds with programID and rejects on-curve results.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > maxSeeds {
		return Pubkey{}, fmt.Errorf("too many seeds: %d", len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return Pubkey{}, ErrSeedTooLong
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out Pubkey
	copy(out[:], h.Sum(nil))
	if isOnCurve(out[:]) {
		return Pubkey{}, errors.New("derived address is on the ed25519 curve")
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		withBump := make([][]byte, 0, len(seeds)+1)
		withBump = append(withBump, seeds...)
		withBump = append(withBump, []byte{byte(bump)})

		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if errors.Is(err, ErrSeedTooLong) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// SaleAddresses are the program accounts owned by one sale.
type SaleAddresses struct {
	Sale          Pubkey
	Treasury      Pubkey
	MintAuthority Pubkey
}

// DeriveSaleAddresses derives the sale, treasury and mint-authority PDAs.
func DeriveSaleAddresses(programID Pubkey) (SaleAddresses, error) {
	var out SaleAddresses
	var err error
	if out.Sale, _, err = FindProgramAddress([][]byte{SeedSaleState}, programID); err != nil {
		return out, fmt.Errorf("derive sale address: %w", err)
	}
	if out.Treasury, _, err = FindProgramAddress([][]byte{SeedTreasury}, programID); err != nil {
		return out, fmt.Errorf("derive treasury address: %w", err)
	}
	if out.MintAuthority, _, err = FindProgramAddress([][]byte{SeedMintAuth}, programID); err != nil {
		return out, fmt.Errorf("derive mint authority address: %w", err)
	}
	return out, nil
}

// AllocationAddress derives the allocation record address for a buyer.
// Seeds: ["user_alloc", sale, buyer]
func AllocationAddress(sale, buyer, programID Pubkey) (Pubkey, error) {
	pk, _, err := FindProgramAddress([][]byte{SeedAllocation, sale[:], buyer[:]}, programID)
	if err != nil {
		return Pubkey{}, fmt.Errorf("derive allocation address: %w", err)
	}
	return pk, nil
}
