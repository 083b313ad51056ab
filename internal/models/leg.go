package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Leg is one binary-outcome bet inside a parlay. Legs are built from the
// exchange market snapshot at quote time and are immutable once priced;
// they travel inside Purchase.Legs as jsonb.
type Leg struct {
	MarketID           string  `json:"market_id"`
	Ticker             string  `json:"ticker"`
	OptionLabel        string  `json:"option_label"`
	ProbabilityPercent float64 `json:"probability_percent"`
	Side               string  `json:"side"` // yes|no
}

// WinProbability returns the market's independent win probability as a
// fraction in (0,1).
func (l Leg) WinProbability() float64 {
	return l.ProbabilityPercent / 100
}

// Degenerate reports whether the leg sits on a probability boundary where
// parlay pricing is undefined (division by zero on the naive payout).
func (l Leg) Degenerate() bool {
	return l.ProbabilityPercent <= 0 || l.ProbabilityPercent >= 100
}

func (l Leg) Validate() error {
	if strings.TrimSpace(l.MarketID) == "" {
		return fmt.Errorf("leg %s: market_id is required", l.Ticker)
	}
	if l.ProbabilityPercent < 0 || l.ProbabilityPercent > 100 {
		return fmt.Errorf("leg %s: probability_percent %.2f out of range", l.Ticker, l.ProbabilityPercent)
	}
	side := strings.ToLower(strings.TrimSpace(l.Side))
	if side != "yes" && side != "no" {
		return fmt.Errorf("leg %s: side must be yes or no", l.Ticker)
	}
	return nil
}

func MarshalLegs(legs []Leg) (datatypes.JSON, error) {
	raw, err := json.Marshal(legs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func ParseLegs(raw datatypes.JSON) ([]Leg, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var legs []Leg
	if err := json.Unmarshal(raw, &legs); err != nil {
		return nil, err
	}
	return legs, nil
}
