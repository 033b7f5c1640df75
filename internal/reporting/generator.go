package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"token-presale/internal/domain"
	"token-presale/internal/presale"
	"token-presale/internal/storage"
	"token-presale/internal/units"
)

// Generator produces sale reports from stored data.
type Generator struct {
	saleStore   storage.SaleStore
	archive     storage.SaleEventStore // optional
	saleID      string
	usdDecimals uint8
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(saleStore storage.SaleStore, saleID string) *Generator {
	return &Generator{
		saleStore:   saleStore,
		saleID:      saleID,
		usdDecimals: 2,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithArchive compares the event log against an analytics archive.
func (g *Generator) WithArchive(archive storage.SaleEventStore) *Generator {
	g.archive = archive
	return g
}

// WithUSDDecimals sets how many decimals USD price units carry.
func (g *Generator) WithUSDDecimals(decimals uint8) *Generator {
	g.usdDecimals = decimals
	return g
}

// Generate produces a complete sale report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	sale, err := g.saleStore.GetSale(ctx, g.saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	allocs, err := g.saleStore.ListAllocations(ctx, g.saleID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	events, err := g.saleStore.GetEvents(ctx, g.saleID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}

	now := g.now()
	report := &Report{
		GeneratedAt: now,
		SaleID:      sale.SaleID,
		Phase:       string(presale.PhaseOf(sale, now.Unix())),
		Summary:     g.generateSummary(sale, allocs, events),
		Stages:      g.generateStages(sale),
		Allocations: generateAllocations(allocs),
		EventCounts: generateEventCounts(events),
	}

	report.Integrity, err = g.checkIntegrity(ctx, sale, allocs, events)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (g *Generator) generateSummary(s *domain.SaleState, allocs []*domain.Allocation, events []*domain.SaleEvent) SaleSummary {
	var usdRaised uint64
	for _, e := range events {
		if e.Type == domain.EventTokensAllocated {
			usdRaised += e.Amount
		}
	}

	return SaleSummary{
		Owner:          s.Owner,
		Mint:           s.Mint,
		Treasury:       s.Treasury,
		ClaimPolicy:    string(s.ClaimPolicy),
		Paused:         s.Paused,
		WindowStart:    time.Unix(s.StartTime, 0).UTC(),
		WindowEnd:      time.Unix(s.EndTime, 0).UTC(),
		USDPerCoin:     units.Format(s.USDPerCoin, g.usdDecimals),
		CurrentStage:   s.CurrentStage,
		TotalCapacity:  units.FormatTrimmed(s.TotalCapacity(), s.TokenDecimals),
		TotalSold:      units.FormatTrimmed(s.TotalSold(), s.TokenDecimals),
		SoldPct:        units.Percent(s.TotalSold(), s.TotalCapacity(), 2).StringFixed(2),
		TotalClaimed:   units.FormatTrimmed(s.TotalClaimed, s.TokenDecimals),
		UnsoldLeft:     units.FormatTrimmed(presale.UnsoldAvailable(s), s.TokenDecimals),
		USDRaised:      units.Format(usdRaised, g.usdDecimals),
		TotalPaid:      coins(s.TotalPaid, s.BaseUnitsPerCoin),
		CustodyBalance: coins(s.CustodyBalance, s.BaseUnitsPerCoin),
		TotalWithdrawn: coins(s.TotalWithdrawn, s.BaseUnitsPerCoin),
		Participants:   len(allocs),
	}
}

func (g *Generator) generateStages(s *domain.SaleState) []StageRow {
	rows := make([]StageRow, len(s.Stages))
	for i, st := range s.Stages {
		rows[i] = StageRow{
			Index:     i,
			PriceUSD:  units.Format(st.PriceUSD, g.usdDecimals),
			Capacity:  units.FormatTrimmed(st.Capacity, s.TokenDecimals),
			Sold:      units.FormatTrimmed(st.Sold, s.TokenDecimals),
			Remaining: units.FormatTrimmed(st.Remaining(), s.TokenDecimals),
			SoldPct:   units.Percent(st.Sold, st.Capacity, 2).StringFixed(2),
			Current:   i == s.CurrentStage,
		}
	}
	return rows
}

func generateAllocations(allocs []*domain.Allocation) []AllocationRow {
	rows := make([]AllocationRow, len(allocs))
	for i, a := range allocs {
		rows[i] = AllocationRow{
			Owner:     a.Owner,
			Purchased: a.Purchased,
			Claimed:   a.Claimed,
			Claimable: a.Claimable(),
		}
	}
	sortAllocations(rows)
	return rows
}

func generateEventCounts(events []*domain.SaleEvent) []EventCountRow {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Type.String()]++
	}
	rows := make([]EventCountRow, 0, len(counts))
	for typ, n := range counts {
		rows = append(rows, EventCountRow{Type: typ, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Type < rows[j].Type })
	return rows
}

func (g *Generator) checkIntegrity(ctx context.Context, s *domain.SaleState, allocs []*domain.Allocation, events []*domain.SaleEvent) (IntegritySection, error) {
	section := IntegritySection{
		LogEvents:     len(events),
		ArchiveEvents: -1,
	}
	if err := presale.VerifyLedger(s, allocs); err != nil {
		section.LedgerError = err.Error()
	}
	if g.archive != nil {
		archived, err := g.archive.GetBySale(ctx, g.saleID)
		if err != nil {
			return section, fmt.Errorf("read archive: %w", err)
		}
		section.ArchiveEvents = len(archived)
		section.ArchiveLag = len(archived) < len(events)
	}
	return section, nil
}

// sortAllocations sorts by purchased DESC, owner ASC.
func sortAllocations(rows []AllocationRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Purchased != rows[j].Purchased {
			return rows[i].Purchased > rows[j].Purchased
		}
		return rows[i].Owner < rows[j].Owner
	})
}

// coins formats base units as whole coins.
func coins(baseUnits, perCoin uint64) string {
	return units.Ratio(baseUnits, perCoin, 9).String()
}
