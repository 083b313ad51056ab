package hedging

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parlay/internal/config"
	"parlay/internal/models"
)

var (
	ErrInvalidInput = errors.New("invalid hedging input")

	// ErrTooManyLegs guards the 2^n scenario enumeration; the cap comes
	// from config rather than letting cost grow unbounded.
	ErrTooManyLegs = errors.New("leg count exceeds enumeration limit")
)

// Decision is the hedge sizing for a single leg. The hedge is assumed
// filled at the market's quoted probability as price, so a hedge of amount
// A on a leg at p% returns A*100/p when the leg wins.
type Decision struct {
	LegIndex      int             `json:"leg_index"` // 1-based
	Ticker        string          `json:"ticker"`
	HedgeFraction float64         `json:"hedge_fraction"`
	HedgeAmount   decimal.Decimal `json:"hedge_amount"`
	PotentialWin  decimal.Decimal `json:"potential_win"`
	Rationale     string          `json:"rationale"`
}

// Scenario is one win/loss combination across all legs, weighted by the
// naive per-leg probabilities. Correlation affects pricing, not the
// combinatorics: the scenario tree must still sum to 1 over a well-defined
// independent probability space.
type Scenario struct {
	LegOutcomes []bool          `json:"leg_outcomes"`
	Probability float64         `json:"probability"`
	NetCashFlow decimal.Decimal `json:"net_cash_flow"`
	Description string          `json:"description"`
	CashFlows   []string        `json:"cash_flows"`
}

// PositionStats summarizes house EV and dispersion for a position, from the
// house's perspective (positive EV favors the house).
type PositionStats struct {
	EV          float64 `json:"ev"`
	EdgePercent float64 `json:"edge_percent"`
	StdDev      float64 `json:"std_dev"`
}

type Impact struct {
	VarianceReductionPercent float64 `json:"variance_reduction_percent"`
	EVChangePercent          float64 `json:"ev_change_percent"`
}

// Strategy is the aggregate hedging result attached to a purchase.
type Strategy struct {
	NeedsHedging   bool            `json:"needs_hedging"`
	Decisions      []Decision      `json:"decisions"`
	TopScenarios   []Scenario      `json:"top_scenarios"`
	TotalHedgeCost decimal.Decimal `json:"total_hedge_cost"`
	Unhedged       PositionStats   `json:"unhedged"`
	Hedged         PositionStats   `json:"hedged"`
	Impact         Impact          `json:"impact"`
}

type Engine struct {
	Config config.HedgingConfig
	Logger *zap.Logger
}

// BuildStrategy sizes per-leg hedges by probability tier, enumerates every
// win/loss combination under the hedged book, and compares EV and variance
// against the unhedged position. Pure computation; order emission is the
// executor's job.
func (e *Engine) BuildStrategy(legs []models.Leg, stake, adjustedPayout decimal.Decimal, adjustedProbability float64) (*Strategy, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: at least one leg required", ErrInvalidInput)
	}
	if stake.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: stake must be positive", ErrInvalidInput)
	}
	if adjustedProbability <= 0 || adjustedProbability > 1 {
		return nil, fmt.Errorf("%w: adjusted probability %.6f out of range", ErrInvalidInput, adjustedProbability)
	}
	maxLegs := e.Config.MaxLegs
	if maxLegs <= 0 {
		maxLegs = 12
	}
	if len(legs) > maxLegs {
		return nil, fmt.Errorf("%w: %d legs, limit %d", ErrTooManyLegs, len(legs), maxLegs)
	}

	unhedged := unhedgedStats(stake, adjustedPayout, adjustedProbability)

	decisions := e.sizeHedges(legs, stake)
	if len(decisions) == 0 {
		return &Strategy{
			NeedsHedging:   false,
			TotalHedgeCost: decimal.Zero,
			Unhedged:       unhedged,
		}, nil
	}

	scenarios := enumerateScenarios(legs, stake, adjustedPayout, decisions)
	hedged := aggregateStats(scenarios, stake)

	totalCost := decimal.Zero
	for _, d := range decisions {
		totalCost = totalCost.Add(d.HedgeAmount)
	}

	impact := Impact{}
	if unhedged.StdDev > 0 {
		impact.VarianceReductionPercent = (unhedged.StdDev - hedged.StdDev) / unhedged.StdDev * 100
	}
	if unhedged.EV != 0 {
		impact.EVChangePercent = (hedged.EV - unhedged.EV) / math.Abs(unhedged.EV) * 100
	}

	if e.Logger != nil {
		e.Logger.Debug("hedging strategy built",
			zap.Int("legs", len(legs)),
			zap.Int("hedged_legs", len(decisions)),
			zap.Int("scenarios", len(scenarios)),
			zap.String("total_hedge_cost", totalCost.StringFixed(2)),
			zap.Float64("variance_reduction_pct", impact.VarianceReductionPercent),
		)
	}

	return &Strategy{
		NeedsHedging:   true,
		Decisions:      decisions,
		TopScenarios:   topByProbability(scenarios, e.topK()),
		TotalHedgeCost: totalCost,
		Unhedged:       unhedged,
		Hedged:         hedged,
		Impact:         impact,
	}, nil
}

func (e *Engine) topK() int {
	if e.Config.TopScenarios > 0 {
		return e.Config.TopScenarios
	}
	return 5
}

// sizeHedges applies the tier table to each leg. Legs below every tier
// floor are left unhedged.
func (e *Engine) sizeHedges(legs []models.Leg, stake decimal.Decimal) []Decision {
	tiers := make([]config.HedgeTier, len(e.Config.Tiers))
	copy(tiers, e.Config.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinProbabilityPercent > tiers[j].MinProbabilityPercent
	})

	var out []Decision
	for i, leg := range legs {
		fraction := 0.0
		for _, tier := range tiers {
			if leg.ProbabilityPercent >= tier.MinProbabilityPercent {
				fraction = tier.Fraction
				break
			}
		}
		if fraction <= 0 {
			continue
		}
		amount := stake.Mul(decimal.NewFromFloat(fraction))
		potential := amount.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromFloat(leg.ProbabilityPercent))
		out = append(out, Decision{
			LegIndex:      i + 1,
			Ticker:        leg.Ticker,
			HedgeFraction: fraction,
			HedgeAmount:   amount,
			PotentialWin:  potential,
			Rationale: fmt.Sprintf("leg %d at %.1f%% meets %.0f%% tier: hedge %.0f%% of stake",
				i+1, leg.ProbabilityPercent, tierFloor(tiers, fraction), fraction*100),
		})
	}
	return out
}

func tierFloor(tiers []config.HedgeTier, fraction float64) float64 {
	for _, t := range tiers {
		if t.Fraction == fraction {
			return t.MinProbabilityPercent
		}
	}
	return 0
}

// unhedgedStats is the binary baseline: the house keeps the stake unless
// every leg hits, in which case it pays the adjusted payout out of the
// collected stake.
func unhedgedStats(stake, adjustedPayout decimal.Decimal, p float64) PositionStats {
	stakeF := stake.InexactFloat64()
	winNet := stake.Sub(adjustedPayout).InexactFloat64()
	ev := winNet*p + stakeF*(1-p)
	variance := (winNet-ev)*(winNet-ev)*p + (stakeF-ev)*(stakeF-ev)*(1-p)
	return PositionStats{
		EV:          ev,
		EdgePercent: ev / stakeF * 100,
		StdDev:      math.Sqrt(variance),
	}
}

func aggregateStats(scenarios []Scenario, stake decimal.Decimal) PositionStats {
	ev := 0.0
	for _, s := range scenarios {
		ev += s.NetCashFlow.InexactFloat64() * s.Probability
	}
	variance := 0.0
	for _, s := range scenarios {
		d := s.NetCashFlow.InexactFloat64() - ev
		variance += d * d * s.Probability
	}
	return PositionStats{
		EV:          ev,
		EdgePercent: ev / stake.InexactFloat64() * 100,
		StdDev:      math.Sqrt(variance),
	}
}

func topByProbability(scenarios []Scenario, k int) []Scenario {
	sorted := make([]Scenario, len(scenarios))
	copy(sorted, scenarios)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Probability > sorted[j].Probability
	})
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}
