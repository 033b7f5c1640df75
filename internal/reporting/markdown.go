package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sale Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Sale: %s | Phase: %s\n\n", r.SaleID, r.Phase))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Owner | %s |\n", s.Owner))
	sb.WriteString(fmt.Sprintf("| Mint | %s |\n", s.Mint))
	sb.WriteString(fmt.Sprintf("| Treasury | %s |\n", s.Treasury))
	sb.WriteString(fmt.Sprintf("| Window | %s to %s |\n", s.WindowStart.Format(time.RFC3339), s.WindowEnd.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Paused | %t |\n", s.Paused))
	sb.WriteString(fmt.Sprintf("| Claim Policy | %s |\n", s.ClaimPolicy))
	sb.WriteString(fmt.Sprintf("| USD per Coin | %s |\n", s.USDPerCoin))
	sb.WriteString(fmt.Sprintf("| Current Stage | %d |\n", s.CurrentStage))
	sb.WriteString(fmt.Sprintf("| Tokens Sold | %s / %s (%s%%) |\n", s.TotalSold, s.TotalCapacity, s.SoldPct))
	sb.WriteString(fmt.Sprintf("| Tokens Claimed | %s |\n", s.TotalClaimed))
	sb.WriteString(fmt.Sprintf("| Unsold Withdrawable | %s |\n", s.UnsoldLeft))
	sb.WriteString(fmt.Sprintf("| USD Raised | %s |\n", s.USDRaised))
	sb.WriteString(fmt.Sprintf("| Coins Received | %s |\n", s.TotalPaid))
	sb.WriteString(fmt.Sprintf("| Coins in Custody | %s |\n", s.CustodyBalance))
	sb.WriteString(fmt.Sprintf("| Coins Withdrawn | %s |\n", s.TotalWithdrawn))
	sb.WriteString(fmt.Sprintf("| Participants | %d |\n", s.Participants))
	sb.WriteString("\n")

	// Stages
	sb.WriteString("## Stages\n\n")
	sb.WriteString("| Stage | Price USD | Capacity | Sold | Remaining | Sold% |\n")
	sb.WriteString("|-------|-----------|----------|------|-----------|-------|\n")
	for _, st := range r.Stages {
		marker := ""
		if st.Current {
			marker = " *"
		}
		sb.WriteString(fmt.Sprintf("| %d%s | %s | %s | %s | %s | %s |\n",
			st.Index, marker, st.PriceUSD, st.Capacity, st.Sold, st.Remaining, st.SoldPct))
	}
	sb.WriteString("\n")

	// Events
	sb.WriteString("## Events\n\n")
	if len(r.EventCounts) > 0 {
		sb.WriteString("| Type | Count |\n")
		sb.WriteString("|------|-------|\n")
		for _, c := range r.EventCounts {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", c.Type, c.Count))
		}
	} else {
		sb.WriteString("No events recorded.\n")
	}
	sb.WriteString("\n")

	// Integrity
	sb.WriteString("## Integrity\n\n")
	if r.Integrity.LedgerError == "" {
		sb.WriteString("Ledger balances.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("**Ledger check failed:** %s\n\n", r.Integrity.LedgerError))
	}
	if r.Integrity.ArchiveEvents >= 0 {
		sb.WriteString(fmt.Sprintf("Archive: %d of %d events", r.Integrity.ArchiveEvents, r.Integrity.LogEvents))
		if r.Integrity.ArchiveLag {
			sb.WriteString(" (lagging)")
		}
		sb.WriteString("\n\n")
	}

	return sb.String()
}
