package hedging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"parlay/internal/models"
)

// enumerateScenarios walks every n-bit win/loss pattern (bit i set means
// leg i wins). An explicit integer loop keeps memory bounded and the 2^n
// cost visible; the engine caps n before calling this.
func enumerateScenarios(legs []models.Leg, stake, adjustedPayout decimal.Decimal, decisions []Decision) []Scenario {
	n := len(legs)
	total := 1 << n
	out := make([]Scenario, 0, total)

	for mask := 0; mask < total; mask++ {
		outcomes := make([]bool, n)
		prob := 1.0
		for i, leg := range legs {
			win := mask&(1<<i) != 0
			outcomes[i] = win
			if win {
				prob *= leg.WinProbability()
			} else {
				prob *= 1 - leg.WinProbability()
			}
		}
		parlayWins := mask == total-1

		net := stake
		lines := []string{fmt.Sprintf("+%s stake collected", stake.StringFixed(2))}
		if parlayWins {
			net = net.Sub(adjustedPayout)
			lines = append(lines, fmt.Sprintf("-%s parlay payout", adjustedPayout.StringFixed(2)))
		}
		for _, d := range decisions {
			if outcomes[d.LegIndex-1] {
				net = net.Add(d.PotentialWin)
				lines = append(lines, fmt.Sprintf("+%s hedge win on leg %d", d.PotentialWin.StringFixed(2), d.LegIndex))
			} else {
				net = net.Sub(d.HedgeAmount)
				lines = append(lines, fmt.Sprintf("-%s hedge lost on leg %d", d.HedgeAmount.StringFixed(2), d.LegIndex))
			}
		}

		out = append(out, Scenario{
			LegOutcomes: outcomes,
			Probability: prob,
			NetCashFlow: net,
			Description: describeOutcomes(outcomes),
			CashFlows:   lines,
		})
	}
	return out
}

func describeOutcomes(outcomes []bool) string {
	var wins, losses []string
	for i, w := range outcomes {
		if w {
			wins = append(wins, strconv.Itoa(i+1))
		} else {
			losses = append(losses, strconv.Itoa(i+1))
		}
	}
	switch {
	case len(losses) == 0:
		return "all legs win"
	case len(wins) == 0:
		return "all legs lose"
	default:
		return fmt.Sprintf("legs %s win, legs %s lose",
			strings.Join(wins, ","), strings.Join(losses, ","))
	}
}
