package score

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/model"
	"github.com/ledgerline/ledgerline/internal/service"
)

// Scorer computes confidence scores for booking suggestions. It is a pure
// function of the candidate plus pattern store lookups; it has no side
// effects and never fails hard. Bad input yields a zero score with
// escalation flags, not an error.
type Scorer struct {
	patterns service.PatternStore
	config   Config
}

// NewScorer creates a scorer over the given pattern store.
func NewScorer(patterns service.PatternStore, config Config) *Scorer {
	return &Scorer{
		patterns: patterns,
		config:   config,
	}
}

// Score evaluates a candidate and returns an integer score in [0, 100] with
// the full factor breakdown.
func (s *Scorer) Score(ctx context.Context, candidate *model.InvoiceCandidate) *model.ConfidenceResult {
	result := &model.ConfidenceResult{
		Factors: make(map[string]int),
	}

	// Required-field checks force a zero score with an escalation flag.
	// The record still reaches the review queue, never an unhandled crash.
	if !s.checkRequiredFields(candidate, result) {
		return result
	}

	profile := s.vendorProfile(ctx, candidate)

	result.Factors[model.FactorFamiliarity] = s.familiarity(profile)
	result.Factors[model.FactorHistory] = s.historicalSimilarity(candidate, profile)
	result.Factors[model.FactorAmountConsistency] = s.amountConsistency(candidate, result)
	result.Factors[model.FactorPatternMatch] = s.patternMatch(ctx, candidate)
	result.Factors[model.FactorReasonableness] = s.amountReasonableness(candidate, profile, result)

	total := 0
	for _, points := range result.Factors {
		total += points
	}
	result.Score = clampScore(total)

	return result
}

// checkRequiredFields validates the fields the pipeline cannot proceed
// without. Returns false if the candidate must be escalated at score zero.
func (s *Scorer) checkRequiredFields(candidate *model.InvoiceCandidate, result *model.ConfidenceResult) bool {
	ok := true
	if candidate.VendorID == "" {
		result.Escalations = append(result.Escalations, model.EscalationMissingVendor)
		ok = false
	}
	if candidate.SuggestedAccount == "" {
		result.Escalations = append(result.Escalations, model.EscalationMissingAccount)
		ok = false
	}
	if candidate.AmountExclTax.IsNegative() || candidate.TaxAmount.IsNegative() || candidate.Total.IsNegative() {
		result.Escalations = append(result.Escalations, model.EscalationNegativeAmount)
		ok = false
	}
	return ok
}

// familiarity scales with the number of prior resolved bookings for this
// vendor, capping at FamiliarityCap.
func (s *Scorer) familiarity(profile *model.VendorProfile) int {
	if profile == nil || profile.TotalBookings == 0 {
		return 0
	}
	count := profile.TotalBookings
	if count > s.config.FamiliarityCap {
		count = s.config.FamiliarityCap
	}
	return count * s.config.FamiliarityWeight / s.config.FamiliarityCap
}

// historicalSimilarity awards points when the suggested account agrees with
// the vendor's historically dominant account, scaled by how dominant it is.
func (s *Scorer) historicalSimilarity(candidate *model.InvoiceCandidate, profile *model.VendorProfile) int {
	if profile == nil || profile.DominantAccount == "" {
		return 0
	}
	if profile.DominantAccount != candidate.SuggestedAccount {
		return 0
	}
	return int(math.Round(float64(s.config.HistoryWeight) * profile.DominantShare))
}

// amountConsistency verifies excl_tax + tax == total within tolerance.
// The comparison is over the full triple; comparing total against tax alone
// silently zeroes this factor for valid invoices.
func (s *Scorer) amountConsistency(candidate *model.InvoiceCandidate, result *model.ConfidenceResult) int {
	computed := candidate.AmountExclTax.Add(candidate.TaxAmount)
	diff := computed.Sub(candidate.Total).Abs()
	if diff.GreaterThan(s.config.Tolerance) {
		result.Escalations = append(result.Escalations, model.EscalationAmountMismatch)
		return 0
	}
	return s.config.ConsistencyWeight
}

// patternMatch awards the bonus when the suggestion matches a stored pattern
// exactly, scaled by the pattern's success rate.
func (s *Scorer) patternMatch(ctx context.Context, candidate *model.InvoiceCandidate) int {
	pattern, err := s.patterns.LookupPattern(ctx, candidate.ClientID, candidate.VendorID, candidate.SuggestedAccount)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			slog.Debug("pattern lookup failed, treating as no history",
				"client", candidate.ClientID,
				"vendor", candidate.VendorID,
				"error", err)
		}
		return 0
	}
	if pattern.UseCount == 0 {
		return 0
	}
	if candidate.SuggestedTaxCode != "" && pattern.TaxCode != "" && pattern.TaxCode != candidate.SuggestedTaxCode {
		return 0
	}
	return int(math.Round(float64(s.config.PatternWeight) * pattern.SuccessRate()))
}

// amountReasonableness checks the suggested total against the statistical
// band of the vendor's historical amounts. Unusually large or small amounts
// reduce this factor and flag the candidate.
func (s *Scorer) amountReasonableness(candidate *model.InvoiceCandidate, profile *model.VendorProfile, result *model.ConfidenceResult) int {
	if profile == nil || profile.TotalBookings < s.config.MinSamples {
		if profile == nil || profile.TotalBookings == 0 {
			result.Escalations = append(result.Escalations, model.EscalationUnknownVendor)
		}
		return 0
	}

	total, _ := candidate.Total.Float64()
	if profile.AmountStdDev == 0 {
		// Degenerate history: all prior amounts identical.
		if total == profile.AmountMean {
			return s.config.ReasonablenessWeight
		}
		result.Escalations = append(result.Escalations, model.EscalationUnusualAmount)
		return 0
	}

	z := math.Abs(total-profile.AmountMean) / profile.AmountStdDev
	if z <= 1 {
		return s.config.ReasonablenessWeight
	}
	if z >= s.config.BandStdDevs {
		result.Escalations = append(result.Escalations, model.EscalationUnusualAmount)
		return 0
	}

	// Linear falloff between one standard deviation and the band edge.
	fraction := (s.config.BandStdDevs - z) / (s.config.BandStdDevs - 1)
	return int(math.Round(float64(s.config.ReasonablenessWeight) * fraction))
}

func (s *Scorer) vendorProfile(ctx context.Context, candidate *model.InvoiceCandidate) *model.VendorProfile {
	profile, err := s.patterns.GetVendorProfile(ctx, candidate.ClientID, candidate.VendorID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			slog.Debug("vendor profile lookup failed, treating as no history",
				"client", candidate.ClientID,
				"vendor", candidate.VendorID,
				"error", err)
		}
		return nil
	}
	return profile
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
