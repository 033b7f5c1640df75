package reporting

import "time"

// Report is a point-in-time status report of one sale.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	SaleID      string
	Phase       string

	Summary SaleSummary

	// Stages in ladder order
	Stages []StageRow

	// Allocations sorted by purchased DESC, owner ASC
	Allocations []AllocationRow

	// Event counts sorted by type
	EventCounts []EventCountRow

	Integrity IntegritySection
}

// SaleSummary contains the headline figures, already formatted for display.
type SaleSummary struct {
	Owner          string
	Mint           string
	Treasury       string
	ClaimPolicy    string
	Paused         bool
	WindowStart    time.Time
	WindowEnd      time.Time
	USDPerCoin     string
	CurrentStage   int
	TotalCapacity  string // whole tokens
	TotalSold      string // whole tokens
	SoldPct        string
	TotalClaimed   string // whole tokens
	UnsoldLeft     string // whole tokens the owner may still withdraw
	USDRaised      string
	TotalPaid      string // coins
	CustodyBalance string // coins
	TotalWithdrawn string // coins
	Participants   int
}

// StageRow represents one tier of the ladder.
type StageRow struct {
	Index     int
	PriceUSD  string
	Capacity  string
	Sold      string
	Remaining string
	SoldPct   string
	Current   bool
}

// AllocationRow represents one participant.
type AllocationRow struct {
	Owner     string
	Purchased uint64 // raw units
	Claimed   uint64 // raw units
	Claimable uint64 // raw units
}

// EventCountRow counts committed events of one type.
type EventCountRow struct {
	Type  string
	Count int
}

// IntegritySection carries ledger and archive consistency findings.
type IntegritySection struct {
	LedgerError   string // empty when the ledger balances
	LogEvents     int
	ArchiveEvents int  // -1 when no archive is configured
	ArchiveLag    bool // archive holds fewer events than the log
}
