package services

import (
	"time"
)

// DefaultPenaltyPerMinute is 2 rupees expressed in paise
const DefaultPenaltyPerMinute int64 = 200

// PenaltyCalculator prices lateness per started minute
type PenaltyCalculator struct {
	ratePerMinute int64
}

// NewPenaltyCalculator creates a calculator; a non-positive rate falls back
// to DefaultPenaltyPerMinute
func NewPenaltyCalculator(ratePerMinute int64) *PenaltyCalculator {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultPenaltyPerMinute
	}
	return &PenaltyCalculator{ratePerMinute: ratePerMinute}
}

// Rate returns the per-minute charge in minor units
func (p *PenaltyCalculator) Rate() int64 { return p.ratePerMinute }

// Compute returns ceil((actual-expected)/1m) * rate, or 0 when the ride
// ended on time.
func (p *PenaltyCalculator) Compute(actual, expected time.Time) int64 {
	late := actual.Sub(expected)
	if late <= 0 {
		return 0
	}
	minutes := int64(late / time.Minute)
	if late%time.Minute != 0 {
		minutes++
	}
	return minutes * p.ratePerMinute
}

// Assess builds the return details for a ride ending at actual
func (p *PenaltyCalculator) Assess(actual, expected time.Time) (applied bool, amount int64) {
	amount = p.Compute(actual, expected)
	return amount > 0, amount
}
