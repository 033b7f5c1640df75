package domain

// SaleEventType identifies a committed sale transition.
type SaleEventType string

const (
	EventInitialized     SaleEventType = "initialized"
	EventTokensAllocated SaleEventType = "tokens_allocated"
	EventTokensClaimed   SaleEventType = "tokens_claimed"
	EventFundsWithdrawn  SaleEventType = "funds_withdrawn"
	EventUnsoldWithdrawn SaleEventType = "unsold_withdrawn"
	EventWindowUpdated   SaleEventType = "window_updated"
	EventSalePaused      SaleEventType = "sale_paused"
	EventSaleResumed     SaleEventType = "sale_resumed"
	EventStageAdvanced   SaleEventType = "stage_advanced"
)

// String returns the string representation of SaleEventType.
func (t SaleEventType) String() string {
	return string(t)
}

// SaleEvent is an append-only record of one committed transition.
// Corresponds to sale_events table in PostgreSQL and ClickHouse.
type SaleEvent struct {
	EventID   string        // uuid
	SaleID    string        // owning sale
	Seq       int64         // per-sale sequence, assigned by the store
	Type      SaleEventType // transition kind
	Actor     string        // caller identity
	Tokens    uint64        // raw tokens moved (allocated, claimed, withdrawn)
	Amount    uint64        // base units moved (charged, withdrawn)
	Stage     int           // current stage after the transition
	StartTime int64         // window, for window_updated/initialized
	EndTime   int64         // window, for window_updated/initialized
	Timestamp int64         // unix seconds
}
