package domain

// Allocation is a participant's running entitlement in one sale.
// Corresponds to allocations table in PostgreSQL.
type Allocation struct {
	Address   string // program-derived record address (base58)
	SaleID    string // owning sale
	Owner     string // participant identity (base58)
	Purchased uint64 // raw tokens earned across all buys
	Claimed   uint64 // raw tokens already released, never above Purchased
	CreatedAt int64  // unix seconds
	UpdatedAt int64  // unix seconds
}

// Claimable returns the raw tokens still owed to the participant.
func (a *Allocation) Claimable() uint64 {
	if a == nil || a.Claimed >= a.Purchased {
		return 0
	}
	return a.Purchased - a.Claimed
}
