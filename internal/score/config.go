// Package score implements the confidence scorer that gates automatic
// posting of booking suggestions.
package score

import "github.com/shopspring/decimal"

// Config holds the factor weights and thresholds for scoring. Weights are
// tunable configuration, not constants; the defaults sum to 100 but callers
// may rebalance them freely.
type Config struct {
	Tolerance decimal.Decimal

	// Maximum points per factor.
	FamiliarityWeight    int
	HistoryWeight        int
	ConsistencyWeight    int
	PatternWeight        int
	ReasonablenessWeight int

	// FamiliarityCap is the booking count at which familiarity maxes out.
	FamiliarityCap int

	// MinSamples is the history size below which amount reasonableness
	// cannot award points.
	MinSamples int

	// BandStdDevs is the z-score at which reasonableness reaches zero.
	BandStdDevs float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		FamiliarityWeight:    25,
		HistoryWeight:        30,
		ConsistencyWeight:    20,
		PatternWeight:        15,
		ReasonablenessWeight: 10,
		FamiliarityCap:       10,
		MinSamples:           3,
		BandStdDevs:          3.0,
		Tolerance:            decimal.NewFromFloat(0.01),
	}
}

// MaxScore returns the highest score the configured weights can produce.
func (c Config) MaxScore() int {
	return c.FamiliarityWeight + c.HistoryWeight + c.ConsistencyWeight +
		c.PatternWeight + c.ReasonablenessWeight
}
