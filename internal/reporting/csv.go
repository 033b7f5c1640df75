package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders allocations as CSV string. Amounts are raw units.
func RenderCSV(rows []AllocationRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("owner,purchased,claimed,claimable\n")

	// Rows
	for _, a := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d\n",
			a.Owner,
			a.Purchased,
			a.Claimed,
			a.Claimable,
		))
	}

	return sb.String()
}

// RenderStagesCSV renders the stage table as CSV string.
func RenderStagesCSV(rows []StageRow) string {
	var sb strings.Builder

	sb.WriteString("stage,price_usd,capacity,sold,remaining,sold_pct,current\n")
	for _, st := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s,%t\n",
			st.Index, st.PriceUSD, st.Capacity, st.Sold, st.Remaining, st.SoldPct, st.Current))
	}

	return sb.String()
}
