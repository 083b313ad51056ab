package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"parlay/internal/models"
)

// Judgment is the raw output of the correlation oracle. The oracle is a
// probabilistic external service (an LLM behind an HTTP endpoint), so
// nothing here is trusted: the engine only ever consumes these numbers
// after Validate has clamped them.
type Judgment struct {
	CorrelationFactor    float64 `json:"correlation_factor"`
	AdjustedProbability  float64 `json:"adjusted_probability"`
	RecommendedPayoutPct float64 `json:"recommended_payout_percentage"`

	CorrelationAnalysis string `json:"correlation_analysis"`
	Reasoning           string `json:"reasoning"`
	RiskAssessment      string `json:"risk_assessment"`
	ConfidenceLevel     string `json:"confidence_level"`
}

// ValidatedJudgment carries the numbers after house-favorable clamping.
// It is only produced by Validate; no other code path may construct one
// from raw oracle output.
type ValidatedJudgment struct {
	CorrelationFactor    float64
	AdjustedProbability  float64
	RecommendedPayoutPct float64

	CorrelationAnalysis string
	Reasoning           string
	RiskAssessment      string
	ConfidenceLevel     string
}

// Validate clamps a raw judgment so the oracle can never price against the
// house: the adjusted probability never drops below the naive product, the
// correlation factor never drops below 1, and the payout fraction stays in
// (0,100]. A non-positive payout recommendation is nonsense and collapses
// to 100, which still caps the payout at the naive figure downstream.
func Validate(raw Judgment, naiveProbability float64) ValidatedJudgment {
	out := ValidatedJudgment{
		CorrelationFactor:    raw.CorrelationFactor,
		AdjustedProbability:  raw.AdjustedProbability,
		RecommendedPayoutPct: raw.RecommendedPayoutPct,
		CorrelationAnalysis:  raw.CorrelationAnalysis,
		Reasoning:            raw.Reasoning,
		RiskAssessment:       raw.RiskAssessment,
		ConfidenceLevel:      raw.ConfidenceLevel,
	}
	if out.AdjustedProbability < naiveProbability {
		out.AdjustedProbability = naiveProbability
	}
	if out.AdjustedProbability > 1 {
		out.AdjustedProbability = 1
	}
	if out.CorrelationFactor < 1 {
		out.CorrelationFactor = 1
	}
	if out.RecommendedPayoutPct <= 0 || out.RecommendedPayoutPct > 100 {
		out.RecommendedPayoutPct = 100
	}
	return out
}

// JudgeRequest is the context handed to the oracle: the legs being priced
// plus the naive figures it is asked to adjust.
type JudgeRequest struct {
	Legs             []models.Leg
	Stake            decimal.Decimal
	NaiveProbability float64
	NaivePayout      decimal.Decimal
}

// CorrelationOracle is the consumed interface for the external judgment
// service. Implementations live under internal/client/oracle.
type CorrelationOracle interface {
	Judge(ctx context.Context, req JudgeRequest) (Judgment, error)
}
