package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ledgerline/ledgerline/internal/api"
	"github.com/ledgerline/ledgerline/internal/common"
	"github.com/ledgerline/ledgerline/internal/match"
	"github.com/ledgerline/ledgerline/internal/review"
	"github.com/ledgerline/ledgerline/internal/score"
	"github.com/ledgerline/ledgerline/internal/voucher"
)

// LoadScoreConfig loads confidence scoring weights from Viper, falling back
// to the defaults for anything unset.
func LoadScoreConfig() (score.Config, error) {
	cfg := score.DefaultConfig()

	setInt(&cfg.FamiliarityWeight, "score.familiarity_weight")
	setInt(&cfg.HistoryWeight, "score.history_weight")
	setInt(&cfg.ConsistencyWeight, "score.consistency_weight")
	setInt(&cfg.PatternWeight, "score.pattern_weight")
	setInt(&cfg.ReasonablenessWeight, "score.reasonableness_weight")
	setInt(&cfg.FamiliarityCap, "score.familiarity_cap")
	setInt(&cfg.MinSamples, "score.min_samples")
	if viper.IsSet("score.band_std_devs") {
		cfg.BandStdDevs = viper.GetFloat64("score.band_std_devs")
	}
	if v := viper.GetString("score.tolerance"); v != "" {
		tolerance, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, common.NewUserError("invalid score.tolerance", err)
		}
		cfg.Tolerance = tolerance
	}

	if cfg.FamiliarityCap <= 0 {
		return cfg, common.NewUserError("score.familiarity_cap must be positive", nil)
	}
	if max := cfg.MaxScore(); max <= 0 || max > 100 {
		return cfg, common.NewUserError(
			fmt.Sprintf("score weights must sum to a value between 1 and 100, got %d", max), nil)
	}

	return cfg, nil
}

// LoadVoucherConfig loads voucher generation settings from Viper.
func LoadVoucherConfig() (voucher.Config, error) {
	cfg := voucher.DefaultConfig()

	if v := viper.GetString("voucher.tolerance"); v != "" {
		tolerance, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, common.NewUserError("invalid voucher.tolerance", err)
		}
		cfg.Tolerance = tolerance
	}
	if v := viper.GetString("voucher.default_series"); v != "" {
		cfg.DefaultSeries = v
	}

	return cfg, nil
}

// LoadReviewConfig loads review queue settings from Viper.
func LoadReviewConfig() review.Config {
	cfg := review.DefaultConfig()
	setInt(&cfg.AutoPostThreshold, "review.auto_post_threshold")
	return cfg
}

// LoadMatchConfig loads bank reconciliation settings from Viper.
func LoadMatchConfig() (match.Config, error) {
	cfg := match.DefaultConfig()

	setInt(&cfg.AutoMatchThreshold, "match.auto_match_threshold")
	setInt(&cfg.DateWindowDays, "match.date_window_days")
	setInt(&cfg.TopCandidates, "match.top_candidates")
	if viper.IsSet("match.amount_tolerance_percent") {
		cfg.AmountTolerancePercent = viper.GetFloat64("match.amount_tolerance_percent")
	}
	if viper.IsSet("match.min_similarity") {
		cfg.MinSimilarity = viper.GetFloat64("match.min_similarity")
	}
	if v := viper.GetString("match.amount_tolerance"); v != "" {
		tolerance, err := decimal.NewFromString(v)
		if err != nil {
			return cfg, common.NewUserError("invalid match.amount_tolerance", err)
		}
		cfg.AmountTolerance = tolerance
	}

	if cfg.DateWindowDays <= 0 {
		return cfg, common.NewUserError("match.date_window_days must be positive", nil)
	}
	if cfg.MinSimilarity < 0 || cfg.MinSimilarity >= 1 {
		return cfg, common.NewUserError("match.min_similarity must be in [0, 1)", nil)
	}

	return cfg, nil
}

// LoadAPIConfig loads HTTP server settings from Viper.
func LoadAPIConfig() api.Config {
	cfg := api.DefaultConfig()
	setInt(&cfg.Port, "api.port")
	return cfg
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}
