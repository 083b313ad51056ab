package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"parlay/internal/config"
	"parlay/internal/models"
)

type stubOracle struct {
	judgment Judgment
	err      error
	calls    int
}

func (s *stubOracle) Judge(ctx context.Context, req JudgeRequest) (Judgment, error) {
	s.calls++
	return s.judgment, s.err
}

func mkLegs(probs ...float64) []models.Leg {
	out := make([]models.Leg, 0, len(probs))
	for i, p := range probs {
		out = append(out, models.Leg{
			MarketID:           fmt.Sprintf("mkt-%d", i+1),
			Ticker:             fmt.Sprintf("TICK-%d", i+1),
			ProbabilityPercent: p,
			Side:               "yes",
		})
	}
	return out
}

func TestPriceParlay_TwoLegs(t *testing.T) {
	oracle := &stubOracle{judgment: Judgment{
		CorrelationFactor:    1.0,
		AdjustedProbability:  0.42,
		RecommendedPayoutPct: 90,
	}}
	e := &Engine{Oracle: oracle, Config: config.PricingConfig{QuoteTTL: 5 * time.Minute}}

	q, err := e.PriceParlay(context.Background(), mkLegs(60, 70), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if math.Abs(q.NaiveProbability-0.42) > 1e-9 {
		t.Fatalf("naiveProbability=%v want 0.42", q.NaiveProbability)
	}
	if got := q.NaivePayout.StringFixed(2); got != "238.10" {
		t.Fatalf("naivePayout=%s want 238.10", got)
	}
	if got := q.AdjustedPayout.StringFixed(2); got != "214.29" {
		t.Fatalf("adjustedPayout=%s want 214.29", got)
	}
	if q.ID == "" {
		t.Fatalf("quote id empty")
	}
	if !q.ExpiresAt.After(q.Timestamp) {
		t.Fatalf("expiry %v not after timestamp %v", q.ExpiresAt, q.Timestamp)
	}
	if oracle.calls != 1 {
		t.Fatalf("oracle calls=%d want 1", oracle.calls)
	}
}

func TestPriceParlay_ClampsAdversarialOracle(t *testing.T) {
	// An oracle trying to price against the house: probability below the
	// naive product, correlation below 1, payout above 100%.
	oracle := &stubOracle{judgment: Judgment{
		CorrelationFactor:    0.5,
		AdjustedProbability:  0.01,
		RecommendedPayoutPct: 150,
	}}
	e := &Engine{Oracle: oracle, Config: config.PricingConfig{}}

	q, err := e.PriceParlay(context.Background(), mkLegs(60, 70), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if math.Abs(q.AdjustedProbability-q.NaiveProbability) > 1e-9 {
		t.Fatalf("adjustedProbability=%v want clamped to naive %v", q.AdjustedProbability, q.NaiveProbability)
	}
	if q.CorrelationFactor != 1 {
		t.Fatalf("correlationFactor=%v want 1", q.CorrelationFactor)
	}
	if q.PayoutPercentage != 100 {
		t.Fatalf("payoutPercentage=%v want 100", q.PayoutPercentage)
	}
	if !q.AdjustedPayout.Equal(q.NaivePayout) {
		t.Fatalf("adjustedPayout=%s want naive %s", q.AdjustedPayout, q.NaivePayout)
	}
}

func TestPriceParlay_NegativePayoutPctCollapsesTo100(t *testing.T) {
	oracle := &stubOracle{judgment: Judgment{
		CorrelationFactor:    1.2,
		AdjustedProbability:  0.6,
		RecommendedPayoutPct: -5,
	}}
	e := &Engine{Oracle: oracle}

	q, err := e.PriceParlay(context.Background(), mkLegs(60), decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if q.PayoutPercentage != 100 {
		t.Fatalf("payoutPercentage=%v want 100", q.PayoutPercentage)
	}
}

func TestPriceParlay_DegenerateLeg(t *testing.T) {
	e := &Engine{Oracle: &stubOracle{}}
	_, err := e.PriceParlay(context.Background(), mkLegs(60, 100), decimal.NewFromInt(100))
	if !errors.Is(err, ErrDegenerateProbability) {
		t.Fatalf("err=%v want ErrDegenerateProbability", err)
	}
	_, err = e.PriceParlay(context.Background(), mkLegs(0), decimal.NewFromInt(100))
	if !errors.Is(err, ErrDegenerateProbability) {
		t.Fatalf("err=%v want ErrDegenerateProbability", err)
	}
}

func TestPriceParlay_OracleUnavailable(t *testing.T) {
	e := &Engine{Oracle: &stubOracle{err: errors.New("connection refused")}}
	_, err := e.PriceParlay(context.Background(), mkLegs(60), decimal.NewFromInt(100))
	if !errors.Is(err, ErrOracleUnavailable) {
		t.Fatalf("err=%v want ErrOracleUnavailable", err)
	}
}

func TestPriceParlay_InvalidInput(t *testing.T) {
	e := &Engine{Oracle: &stubOracle{}, Config: config.PricingConfig{MaxLegs: 2}}

	if _, err := e.PriceParlay(context.Background(), nil, decimal.NewFromInt(100)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty legs err=%v want ErrInvalidInput", err)
	}
	if _, err := e.PriceParlay(context.Background(), mkLegs(60), decimal.Zero); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero stake err=%v want ErrInvalidInput", err)
	}
	if _, err := e.PriceParlay(context.Background(), mkLegs(60, 70, 80), decimal.NewFromInt(100)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("leg cap err=%v want ErrInvalidInput", err)
	}
	legs := mkLegs(60)
	legs[0].Side = "maybe"
	if _, err := e.PriceParlay(context.Background(), legs, decimal.NewFromInt(100)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad side err=%v want ErrInvalidInput", err)
	}
}

func TestQuoteExpired(t *testing.T) {
	now := time.Now().UTC()
	q := Quote{Timestamp: now, ExpiresAt: now.Add(5 * time.Minute)}
	if q.Expired(now.Add(4 * time.Minute)) {
		t.Fatalf("quote expired inside TTL")
	}
	if !q.Expired(now.Add(6 * time.Minute)) {
		t.Fatalf("quote not expired past TTL")
	}
}
