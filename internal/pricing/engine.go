package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parlay/internal/config"
	"parlay/internal/models"
)

var (
	// ErrInvalidInput is a caller error: empty legs, non-positive stake, or
	// more legs than the configured cap.
	ErrInvalidInput = errors.New("invalid pricing input")

	// ErrDegenerateProbability rejects legs at 0% or 100%, where the naive
	// payout is undefined.
	ErrDegenerateProbability = errors.New("degenerate leg probability")

	// ErrOracleUnavailable wraps a failed or timed-out oracle call. The
	// request is retryable at the caller level; the engine never fabricates
	// an analysis in its place.
	ErrOracleUnavailable = errors.New("correlation oracle unavailable")
)

// Quote is the read-only result of pricing a parlay. Naive figures assume
// independent legs; adjusted figures fold in the clamped oracle judgment and
// are always at-or-worse for the bettor (AdjustedPayout <= NaivePayout).
type Quote struct {
	ID string `json:"id"`

	NaiveProbability float64         `json:"naive_probability"`
	NaivePayout      decimal.Decimal `json:"naive_payout"`

	CorrelationFactor   float64         `json:"correlation_factor"`
	AdjustedProbability float64         `json:"adjusted_probability"`
	AdjustedPayout      decimal.Decimal `json:"adjusted_payout"`
	PayoutPercentage    float64         `json:"payout_percentage"`

	CorrelationAnalysis string `json:"correlation_analysis"`
	Reasoning           string `json:"reasoning"`
	RiskAssessment      string `json:"risk_assessment"`
	ConfidenceLevel     string `json:"confidence_level"`

	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the quote's validity window has passed; a stale
// quote must be re-priced before purchase.
func (q Quote) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

type Engine struct {
	Oracle CorrelationOracle
	Config config.PricingConfig
	Logger *zap.Logger
}

// PriceParlay computes the naive independent price, asks the oracle for a
// correlation judgment, clamps it, and returns a quote. Pure apart from the
// single oracle call; nothing is persisted here.
func (e *Engine) PriceParlay(ctx context.Context, legs []models.Leg, stake decimal.Decimal) (*Quote, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: at least one leg required", ErrInvalidInput)
	}
	if stake.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: stake must be positive", ErrInvalidInput)
	}
	if e.Config.MaxLegs > 0 && len(legs) > e.Config.MaxLegs {
		return nil, fmt.Errorf("%w: %d legs exceeds limit of %d", ErrInvalidInput, len(legs), e.Config.MaxLegs)
	}

	naiveProb := 1.0
	for i, leg := range legs {
		if err := leg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if leg.Degenerate() {
			return nil, fmt.Errorf("%w: leg %d (%s) at %.2f%%", ErrDegenerateProbability, i+1, leg.Ticker, leg.ProbabilityPercent)
		}
		naiveProb *= leg.WinProbability()
	}
	if naiveProb <= 0 {
		return nil, fmt.Errorf("%w: naive probability underflow across %d legs", ErrDegenerateProbability, len(legs))
	}
	naivePayout := stake.Div(decimal.NewFromFloat(naiveProb))

	oracleCtx := ctx
	if e.Config.OracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, e.Config.OracleTimeout)
		defer cancel()
	}
	raw, err := e.Oracle.Judge(oracleCtx, JudgeRequest{
		Legs:             legs,
		Stake:            stake,
		NaiveProbability: naiveProb,
		NaivePayout:      naivePayout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	judged := Validate(raw, naiveProb)
	if e.Logger != nil && (judged.AdjustedProbability != raw.AdjustedProbability ||
		judged.CorrelationFactor != raw.CorrelationFactor ||
		judged.RecommendedPayoutPct != raw.RecommendedPayoutPct) {
		e.Logger.Warn("oracle judgment clamped",
			zap.Float64("raw_adjusted_probability", raw.AdjustedProbability),
			zap.Float64("raw_correlation_factor", raw.CorrelationFactor),
			zap.Float64("raw_payout_pct", raw.RecommendedPayoutPct),
			zap.Float64("naive_probability", naiveProb),
		)
	}

	adjustedPayout := naivePayout.Mul(decimal.NewFromFloat(judged.RecommendedPayoutPct)).Div(decimal.NewFromInt(100))
	if adjustedPayout.GreaterThan(naivePayout) {
		adjustedPayout = naivePayout
	}

	now := time.Now().UTC()
	ttl := e.Config.QuoteTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Quote{
		ID:                  uuid.NewString(),
		NaiveProbability:    naiveProb,
		NaivePayout:         naivePayout,
		CorrelationFactor:   judged.CorrelationFactor,
		AdjustedProbability: judged.AdjustedProbability,
		AdjustedPayout:      adjustedPayout,
		PayoutPercentage:    judged.RecommendedPayoutPct,
		CorrelationAnalysis: judged.CorrelationAnalysis,
		Reasoning:           judged.Reasoning,
		RiskAssessment:      judged.RiskAssessment,
		ConfidenceLevel:     judged.ConfidenceLevel,
		Timestamp:           now,
		ExpiresAt:           now.Add(ttl),
	}, nil
}
