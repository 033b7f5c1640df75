package api

import (
	"token-presale/internal/domain"
	"token-presale/internal/presale"
	"token-presale/internal/units"
)

type stageView struct {
	Index     int    `json:"index"`
	PriceUSD  uint64 `json:"price_usd"`
	Capacity  uint64 `json:"capacity"`
	Sold      uint64 `json:"sold"`
	Remaining uint64 `json:"remaining"`
	Current   bool   `json:"current"`
}

type saleView struct {
	SaleID           string             `json:"sale_id"`
	Owner            string             `json:"owner"`
	Mint             string             `json:"mint"`
	Treasury         string             `json:"treasury"`
	MintAuthority    string             `json:"mint_authority"`
	Phase            presale.Phase      `json:"phase"`
	USDPerCoin       uint64             `json:"usd_per_coin"`
	BaseUnitsPerCoin uint64             `json:"base_units_per_coin"`
	TokenDecimals    uint8              `json:"token_decimals"`
	StartTime        int64              `json:"start_time"`
	EndTime          int64              `json:"end_time"`
	Paused           bool               `json:"paused"`
	ClaimPolicy      domain.ClaimPolicy `json:"claim_policy"`
	CurrentStage     int                `json:"current_stage"`
	Stages           []stageView        `json:"stages"`
	CustodyBalance   uint64             `json:"custody_balance"`
	TotalPaid        uint64             `json:"total_paid"`
	TotalWithdrawn   uint64             `json:"total_withdrawn"`
	TotalPurchased   uint64             `json:"total_purchased"`
	TotalClaimed     uint64             `json:"total_claimed"`
	UnsoldWithdrawn  uint64             `json:"unsold_withdrawn"`
	SoldPercent      string             `json:"sold_percent"`
}

func newSaleView(s *domain.SaleState, phase presale.Phase) saleView {
	v := saleView{
		SaleID:           s.SaleID,
		Owner:            s.Owner,
		Mint:             s.Mint,
		Treasury:         s.Treasury,
		MintAuthority:    s.MintAuthority,
		Phase:            phase,
		USDPerCoin:       s.USDPerCoin,
		BaseUnitsPerCoin: s.BaseUnitsPerCoin,
		TokenDecimals:    s.TokenDecimals,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Paused:           s.Paused,
		ClaimPolicy:      s.ClaimPolicy,
		CurrentStage:     s.CurrentStage,
		Stages:           make([]stageView, len(s.Stages)),
		CustodyBalance:   s.CustodyBalance,
		TotalPaid:        s.TotalPaid,
		TotalWithdrawn:   s.TotalWithdrawn,
		TotalPurchased:   s.TotalPurchased,
		TotalClaimed:     s.TotalClaimed,
		UnsoldWithdrawn:  s.UnsoldWithdrawn,
		SoldPercent:      units.Percent(s.TotalSold(), s.TotalCapacity(), 2).StringFixed(2),
	}
	for i, st := range s.Stages {
		v.Stages[i] = stageView{
			Index:     i,
			PriceUSD:  st.PriceUSD,
			Capacity:  st.Capacity,
			Sold:      st.Sold,
			Remaining: st.Remaining(),
			Current:   i == s.CurrentStage,
		}
	}
	return v
}

type allocationView struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	Purchased uint64 `json:"purchased"`
	Claimed   uint64 `json:"claimed"`
	Claimable uint64 `json:"claimable"`
}

func newAllocationView(a *domain.Allocation) allocationView {
	return allocationView{
		Address:   a.Address,
		Owner:     a.Owner,
		Purchased: a.Purchased,
		Claimed:   a.Claimed,
		Claimable: a.Claimable(),
	}
}

// EventView is the wire form of a sale event, shared by the history
// endpoint and the websocket stream.
type EventView struct {
	EventID   string               `json:"event_id"`
	SaleID    string               `json:"sale_id"`
	Seq       int64                `json:"seq"`
	Type      domain.SaleEventType `json:"type"`
	Actor     string               `json:"actor"`
	Tokens    uint64               `json:"tokens,omitempty"`
	Amount    uint64               `json:"amount,omitempty"`
	Stage     int                  `json:"stage"`
	StartTime int64                `json:"start_time,omitempty"`
	EndTime   int64                `json:"end_time,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// NewEventView converts a committed event to its wire form.
func NewEventView(e *domain.SaleEvent) EventView {
	return EventView{
		EventID:   e.EventID,
		SaleID:    e.SaleID,
		Seq:       e.Seq,
		Type:      e.Type,
		Actor:     e.Actor,
		Tokens:    e.Tokens,
		Amount:    e.Amount,
		Stage:     e.Stage,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Timestamp: e.Timestamp,
	}
}
