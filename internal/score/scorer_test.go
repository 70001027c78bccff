package score

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
)

// stubPatterns is an in-memory PatternStore for scorer tests.
type stubPatterns struct {
	pattern *model.Pattern
	profile *model.VendorProfile
}

func (s *stubPatterns) LookupPattern(_ context.Context, _, _, _ string) (*model.Pattern, error) {
	if s.pattern == nil {
		return nil, common.ErrNotFound
	}
	return s.pattern, nil
}

func (s *stubPatterns) GetVendorProfile(_ context.Context, _, _ string) (*model.VendorProfile, error) {
	if s.profile == nil {
		return nil, common.ErrNotFound
	}
	return s.profile, nil
}

func (s *stubPatterns) RecordOutcome(_ context.Context, _, _, _, _ string, _ model.PatternOutcome, _ decimal.Decimal) error {
	return nil
}

func testCandidate() *model.InvoiceCandidate {
	return &model.InvoiceCandidate{
		ID:               "cand-1",
		ClientID:         "client-1",
		VendorID:         "vendor-acme",
		VendorName:       "ACME Supplies Ltd",
		InvoiceNumber:    "INV-2024-001",
		InvoiceDate:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Currency:         "EUR",
		AmountExclTax:    decimal.RequireFromString("10000"),
		TaxAmount:        decimal.RequireFromString("2500"),
		Total:            decimal.RequireFromString("12500"),
		SuggestedAccount: "6100",
		SuggestedTaxCode: "VAT25",
		ContraAccount:    "2440",
		Direction:        model.DirectionPayable,
	}
}

func TestScoreRequiredFields(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*model.InvoiceCandidate)
		escalation string
	}{
		{
			name:       "missing vendor",
			mutate:     func(c *model.InvoiceCandidate) { c.VendorID = "" },
			escalation: model.EscalationMissingVendor,
		},
		{
			name:       "missing suggested account",
			mutate:     func(c *model.InvoiceCandidate) { c.SuggestedAccount = "" },
			escalation: model.EscalationMissingAccount,
		},
		{
			name: "negative total",
			mutate: func(c *model.InvoiceCandidate) {
				c.Total = decimal.RequireFromString("-12500")
			},
			escalation: model.EscalationNegativeAmount,
		},
		{
			name: "negative tax",
			mutate: func(c *model.InvoiceCandidate) {
				c.TaxAmount = decimal.RequireFromString("-1")
			},
			escalation: model.EscalationNegativeAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewScorer(&stubPatterns{}, DefaultConfig())
			candidate := testCandidate()
			tt.mutate(candidate)

			result := scorer.Score(context.Background(), candidate)

			assert.Equal(t, 0, result.Score)
			assert.True(t, result.HasEscalation(tt.escalation))
			assert.True(t, result.Escalated())
		})
	}
}

func TestScoreUnknownVendor(t *testing.T) {
	scorer := NewScorer(&stubPatterns{}, DefaultConfig())

	result := scorer.Score(context.Background(), testCandidate())

	// No history: only amount consistency can award points.
	assert.Equal(t, DefaultConfig().ConsistencyWeight, result.Score)
	assert.Equal(t, 0, result.Factors[model.FactorFamiliarity])
	assert.Equal(t, 0, result.Factors[model.FactorHistory])
	assert.Equal(t, 0, result.Factors[model.FactorPatternMatch])
	assert.True(t, result.HasEscalation(model.EscalationUnknownVendor))
}

func TestScoreEstablishedVendor(t *testing.T) {
	patterns := &stubPatterns{
		pattern: &model.Pattern{
			ClientID:     "client-1",
			VendorID:     "vendor-acme",
			Account:      "6100",
			TaxCode:      "VAT25",
			UseCount:     20,
			SuccessCount: 20,
		},
		profile: &model.VendorProfile{
			DominantAccount: "6100",
			TotalBookings:   20,
			DominantShare:   1.0,
			AmountMean:      12500,
			AmountStdDev:    500,
		},
	}
	scorer := NewScorer(patterns, DefaultConfig())

	result := scorer.Score(context.Background(), testCandidate())

	require.False(t, result.Escalated())
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, DefaultConfig().FamiliarityWeight, result.Factors[model.FactorFamiliarity])
	assert.Equal(t, DefaultConfig().HistoryWeight, result.Factors[model.FactorHistory])
	assert.Equal(t, DefaultConfig().ConsistencyWeight, result.Factors[model.FactorAmountConsistency])
	assert.Equal(t, DefaultConfig().PatternWeight, result.Factors[model.FactorPatternMatch])
	assert.Equal(t, DefaultConfig().ReasonablenessWeight, result.Factors[model.FactorReasonableness])
}

func TestScoreAmountConsistency(t *testing.T) {
	tests := []struct {
		name       string
		exclTax    string
		tax        string
		total      string
		wantPoints bool
	}{
		{"exact triple", "10000", "2500", "12500", true},
		{"within tolerance", "10000", "2500", "12500.01", true},
		{"mismatched total", "10000", "2500", "13000", false},
		{"zero tax", "5000", "0", "5000", true},
		{"total equals tax only", "10000", "2500", "2500", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := NewScorer(&stubPatterns{}, DefaultConfig())
			candidate := testCandidate()
			candidate.AmountExclTax = decimal.RequireFromString(tt.exclTax)
			candidate.TaxAmount = decimal.RequireFromString(tt.tax)
			candidate.Total = decimal.RequireFromString(tt.total)

			result := scorer.Score(context.Background(), candidate)

			if tt.wantPoints {
				assert.Equal(t, DefaultConfig().ConsistencyWeight, result.Factors[model.FactorAmountConsistency])
				assert.False(t, result.HasEscalation(model.EscalationAmountMismatch))
			} else {
				assert.Equal(t, 0, result.Factors[model.FactorAmountConsistency])
				assert.True(t, result.HasEscalation(model.EscalationAmountMismatch))
			}
		})
	}
}

func TestScoreHistoricalSimilarity(t *testing.T) {
	tests := []struct {
		name       string
		dominant   string
		share      float64
		wantPoints int
	}{
		{"full agreement", "6100", 1.0, 30},
		{"partial dominance", "6100", 0.8, 24},
		{"different account dominates", "6200", 0.9, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patterns := &stubPatterns{
				profile: &model.VendorProfile{
					DominantAccount: tt.dominant,
					TotalBookings:   10,
					DominantShare:   tt.share,
					AmountMean:      12500,
					AmountStdDev:    500,
				},
			}
			scorer := NewScorer(patterns, DefaultConfig())

			result := scorer.Score(context.Background(), testCandidate())

			assert.Equal(t, tt.wantPoints, result.Factors[model.FactorHistory])
		})
	}
}

func TestScorePatternSuccessRate(t *testing.T) {
	patterns := &stubPatterns{
		pattern: &model.Pattern{
			Account:      "6100",
			UseCount:     10,
			SuccessCount: 5,
		},
	}
	scorer := NewScorer(patterns, DefaultConfig())

	result := scorer.Score(context.Background(), testCandidate())

	// 15 point weight at 50% success rate rounds to 8.
	assert.Equal(t, 8, result.Factors[model.FactorPatternMatch])
}

func TestScorePatternTaxCodeDisagreement(t *testing.T) {
	patterns := &stubPatterns{
		pattern: &model.Pattern{
			Account:      "6100",
			TaxCode:      "VAT12",
			UseCount:     10,
			SuccessCount: 10,
		},
	}
	scorer := NewScorer(patterns, DefaultConfig())

	result := scorer.Score(context.Background(), testCandidate())

	assert.Equal(t, 0, result.Factors[model.FactorPatternMatch])
}

func TestScoreAmountReasonableness(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name       string
		total      string
		wantPoints int
		escalated  bool
	}{
		{"at the mean", "12500", cfg.ReasonablenessWeight, false},
		{"one std dev out", "13000", cfg.ReasonablenessWeight, false},
		{"two std devs out", "13500", 5, false},
		{"far outside the band", "50000", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patterns := &stubPatterns{
				profile: &model.VendorProfile{
					DominantAccount: "6100",
					TotalBookings:   10,
					DominantShare:   1.0,
					AmountMean:      12500,
					AmountStdDev:    500,
				},
			}
			scorer := NewScorer(patterns, cfg)
			candidate := testCandidate()
			candidate.Total = decimal.RequireFromString(tt.total)
			candidate.AmountExclTax = candidate.Total.Sub(candidate.TaxAmount)

			result := scorer.Score(context.Background(), candidate)

			assert.Equal(t, tt.wantPoints, result.Factors[model.FactorReasonableness])
			assert.Equal(t, tt.escalated, result.HasEscalation(model.EscalationUnusualAmount))
		})
	}
}

func TestScoreFamiliarityCap(t *testing.T) {
	tests := []struct {
		name       string
		bookings   int
		wantPoints int
	}{
		{"no bookings", 0, 0},
		{"half the cap", 5, 12},
		{"at the cap", 10, 25},
		{"beyond the cap", 100, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var patterns stubPatterns
			if tt.bookings > 0 {
				patterns.profile = &model.VendorProfile{
					DominantAccount: "6100",
					TotalBookings:   tt.bookings,
					DominantShare:   1.0,
					AmountMean:      12500,
					AmountStdDev:    500,
				}
			}
			scorer := NewScorer(&patterns, DefaultConfig())

			result := scorer.Score(context.Background(), testCandidate())

			assert.Equal(t, tt.wantPoints, result.Factors[model.FactorFamiliarity])
		})
	}
}
