package feed

import "math"

// PremiumSizer sizes positions from a fixed exposure fraction of
// equity. One contract controls 100 shares of premium.
type PremiumSizer struct {
	ExposurePct float64 // fraction of equity risked per entry
	MaxContract int     // hard per-trade cap, 0 = uncapped
}

func (s *PremiumSizer) Size(equity, optionPrice float64) int {
	if equity <= 0 || optionPrice <= 0 {
		return 0
	}
	budget := equity * s.ExposurePct
	qty := int(math.Floor(budget / (optionPrice * 100)))
	if qty < 0 {
		qty = 0
	}
	if s.MaxContract > 0 && qty > s.MaxContract {
		qty = s.MaxContract
	}
	return qty
}
