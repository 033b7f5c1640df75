package presale

import "errors"

// Engine errors. Every operation fails with one of these (possibly wrapped)
// and leaves no partial state behind.
var (
	ErrUnauthorized        = errors.New("presale: unauthorized")
	ErrInvalidWindow       = errors.New("presale: invalid sale window")
	ErrInvalidStage        = errors.New("presale: invalid stage")
	ErrSalePaused          = errors.New("presale: sale is paused")
	ErrSaleNotStarted      = errors.New("presale: sale not started")
	ErrSaleEnded           = errors.New("presale: sale ended")
	ErrSaleExhausted       = errors.New("presale: sale exhausted")
	ErrNothingToClaim      = errors.New("presale: nothing to claim")
	ErrInsufficientCustody = errors.New("presale: insufficient custody balance")
	ErrAlreadyInitialized  = errors.New("presale: already initialized")
	ErrLedgerInvariant     = errors.New("presale: ledger invariant violation")

	ErrNotInitialized     = errors.New("presale: not initialized")
	ErrAllocationNotFound = errors.New("presale: allocation not found")
	ErrInvalidIdentity    = errors.New("presale: invalid identity")
	ErrInvalidRate        = errors.New("presale: invalid exchange rate")
	ErrMathOverflow       = errors.New("presale: math overflow")
	ErrZeroPurchase       = errors.New("presale: zero purchase amount")
	ErrZeroTokens         = errors.New("presale: payment buys zero tokens")
	ErrZeroAmount         = errors.New("presale: zero amount")
	ErrClaimNotOpen       = errors.New("presale: claims not open yet")
	ErrSaleNotConcluded   = errors.New("presale: sale not concluded")
	ErrInsufficientUnsold = errors.New("presale: insufficient unsold tokens")
	ErrStageLocked        = errors.New("presale: stage override not allowed after first sale")
	ErrInvalidParams      = errors.New("presale: invalid parameters")
)
