package domain

// Stage is one price tier of the sale ladder.
// Corresponds to sale_stages table in PostgreSQL.
type Stage struct {
	PriceUSD uint64 // USD price units per whole token
	Capacity uint64 // raw token units available in this tier
	Sold     uint64 // raw token units already allocated, never above Capacity
}

// Remaining returns the unsold raw capacity of the stage.
func (s Stage) Remaining() uint64 {
	if s.Sold >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Sold
}

// ClaimPolicy controls when buyers may claim their entitlement.
type ClaimPolicy string

const (
	// ClaimAfterEnd allows claims once the window has closed or the ladder is sold out.
	ClaimAfterEnd ClaimPolicy = "after_end"
	// ClaimAnytime allows claims right after a purchase.
	ClaimAnytime ClaimPolicy = "anytime"
)

// IsValid checks if the policy is a known value.
func (p ClaimPolicy) IsValid() bool {
	return p == ClaimAfterEnd || p == ClaimAnytime
}

// SaleState is the singleton record of a presale.
// Corresponds to sales table in PostgreSQL.
type SaleState struct {
	SaleID           string      // program-derived sale address (base58)
	Owner            string      // admin identity (base58)
	Mint             string      // token being sold (base58)
	Treasury         string      // payment custody address (base58)
	MintAuthority    string      // mint authority address (base58)
	USDPerCoin       uint64      // USD price units per whole base coin
	BaseUnitsPerCoin uint64      // base units in one coin (1e9 for SOL)
	TokenDecimals    uint8       // raw units per token = 10^TokenDecimals
	StartTime        int64       // inclusive, unix seconds
	EndTime          int64       // inclusive, unix seconds
	Paused           bool        // buy and claim rejected while set
	ClaimPolicy      ClaimPolicy // claim eligibility
	CurrentStage     int         // lowest not-yet-exhausted stage, never decreases
	Stages           []Stage     // fixed at initialization, only Sold mutates
	CustodyBalance   uint64      // base units received and not withdrawn
	TotalPaid        uint64      // cumulative base units received
	TotalWithdrawn   uint64      // cumulative base units withdrawn by owner
	UnsoldWithdrawn  uint64      // raw tokens released to owner from unsold supply
	TotalPurchased   uint64      // sum of all allocations' purchased tokens
	TotalClaimed     uint64      // sum of all allocations' claimed tokens
	CreatedAt        int64       // unix seconds
	UpdatedAt        int64       // unix seconds
}

// Clone returns a deep copy so callers can mutate freely.
func (s *SaleState) Clone() *SaleState {
	if s == nil {
		return nil
	}
	c := *s
	c.Stages = append([]Stage(nil), s.Stages...)
	return &c
}

// TotalCapacity returns the sum of all stage capacities (the mintable supply).
func (s *SaleState) TotalCapacity() uint64 {
	var total uint64
	for _, st := range s.Stages {
		total += st.Capacity
	}
	return total
}

// TotalSold returns the sum of sold counters across stages.
func (s *SaleState) TotalSold() uint64 {
	var total uint64
	for _, st := range s.Stages {
		total += st.Sold
	}
	return total
}

// SoldOut reports whether the last stage has no capacity left.
func (s *SaleState) SoldOut() bool {
	if len(s.Stages) == 0 {
		return true
	}
	return s.Stages[len(s.Stages)-1].Remaining() == 0
}
