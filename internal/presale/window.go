package presale

import "token-presale/internal/domain"

// checkBuyWindow gates purchases: not paused and startTime <= now <= endTime.
func checkBuyWindow(s *domain.SaleState, now int64) error {
	switch {
	case s.Paused:
		return ErrSalePaused
	case now < s.StartTime:
		return ErrSaleNotStarted
	case now > s.EndTime:
		return ErrSaleEnded
	}
	return nil
}

// concluded reports whether the ladder can no longer change: the window
// has closed or the last stage is sold out.
func concluded(s *domain.SaleState, now int64) bool {
	return now > s.EndTime || s.SoldOut()
}

// claimOpen applies the sale's claim policy.
func claimOpen(s *domain.SaleState, now int64) bool {
	if s.ClaimPolicy == domain.ClaimAnytime {
		return true
	}
	return concluded(s, now)
}

// Phase is a coarse lifecycle label for observability.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhasePending       Phase = "pending"
	PhaseActive        Phase = "active"
	PhasePaused        Phase = "paused"
	PhaseConcluded     Phase = "concluded"
)

// PhaseOf reports the lifecycle phase of a sale at time now.
func PhaseOf(s *domain.SaleState, now int64) Phase {
	switch {
	case s == nil:
		return PhaseUninitialized
	case concluded(s, now):
		return PhaseConcluded
	case s.Paused:
		return PhasePaused
	case now < s.StartTime:
		return PhasePending
	}
	return PhaseActive
}
