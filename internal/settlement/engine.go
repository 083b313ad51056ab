package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parlay/internal/config"
	"parlay/internal/models"
	"parlay/internal/repository"
)

var (
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrNotClaimable covers claims against pending or lost purchases.
	ErrNotClaimable = errors.New("purchase not claimable")

	// ErrClaimConflict means the conditional claim write matched no row: a
	// concurrent claim got there first.
	ErrClaimConflict = errors.New("purchase already claimed")
)

// Settlement is one market's state as reported by the exchange. Result is
// the exchange's side label for markets that report "yes"/"no" instead of a
// numeric settlement price.
type Settlement struct {
	Status          string
	SettlementPrice *decimal.Decimal
	Result          string
}

// MarketDataClient is the consumed settlement lookup; the HTTP
// implementation lives under internal/client/exchange.
type MarketDataClient interface {
	GetSettlement(ctx context.Context, ticker string) (Settlement, error)
}

type Engine struct {
	Repo   repository.Repository
	Market MarketDataClient
	Logger *zap.Logger
	Config config.SettlementConfig
}

// CheckResult is the outcome of a single settlement pass over a purchase.
type CheckResult struct {
	PurchaseID      uint64              `json:"purchase_id"`
	Status          string              `json:"status"`
	SettledLegs     int                 `json:"settled_legs"`
	TotalLegs       int                 `json:"total_legs"`
	ClaimableAmount decimal.Decimal     `json:"claimable_amount"`
	Legs            []models.LegOutcome `json:"legs"`
}

// CheckParlayStatus re-derives a purchase's status from per-leg settlement
// state. Already-settled legs are reused from storage; open legs are looked
// up against the exchange. The derived status is persisted unconditionally,
// so repeated checks converge on the same row.
func (e *Engine) CheckParlayStatus(ctx context.Context, purchaseID uint64) (*CheckResult, error) {
	purchase, err := e.Repo.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, fmt.Errorf("%w: id %d", ErrPurchaseNotFound, purchaseID)
	}

	legs, err := models.ParseLegs(purchase.Legs)
	if err != nil {
		return nil, fmt.Errorf("parse purchase legs: %w", err)
	}

	existing, err := e.Repo.ListLegOutcomesByPurchaseID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	byLeg := make(map[int]models.LegOutcome, len(existing))
	for _, o := range existing {
		byLeg[o.LegNumber] = o
	}

	outcomes := make([]models.LegOutcome, 0, len(legs))
	for i, leg := range legs {
		num := i + 1
		if prev, ok := byLeg[num]; ok && prev.Settled() {
			outcomes = append(outcomes, prev)
			continue
		}
		outcome := e.checkLeg(ctx, purchaseID, num, leg)
		if err := e.Repo.UpsertLegOutcome(ctx, &outcome); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	status, settled := deriveStatus(outcomes)
	claimable := decimal.Zero
	if status == models.PurchaseStatusWon {
		claimable = purchase.Payout
	}
	if err := e.Repo.UpdatePurchaseSettlement(ctx, purchaseID, status, claimable); err != nil {
		return nil, err
	}

	if e.Logger != nil && status != purchase.Status {
		e.Logger.Info("purchase status changed",
			zap.Uint64("purchase_id", purchaseID),
			zap.String("from", purchase.Status),
			zap.String("to", status),
			zap.Int("settled_legs", settled),
			zap.Int("total_legs", len(legs)),
		)
	}

	return &CheckResult{
		PurchaseID:      purchaseID,
		Status:          status,
		SettledLegs:     settled,
		TotalLegs:       len(legs),
		ClaimableAmount: claimable,
		Legs:            outcomes,
	}, nil
}

// checkLeg resolves one leg against the exchange. It never returns an error:
// data-quality faults pin the leg as pending with a CheckError, and transient
// lookup failures leave it pending without one so the next sweep retries.
func (e *Engine) checkLeg(ctx context.Context, purchaseID uint64, num int, leg models.Leg) models.LegOutcome {
	out := models.LegOutcome{
		PurchaseID:   purchaseID,
		LegNumber:    num,
		Ticker:       leg.Ticker,
		MarketStatus: models.MarketStatusOpen,
		Outcome:      models.LegOutcomePending,
	}
	if strings.TrimSpace(leg.Ticker) == "" {
		out.CheckError = "leg has no ticker; cannot resolve settlement"
		return out
	}

	st, err := e.Market.GetSettlement(ctx, leg.Ticker)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn("settlement lookup failed",
				zap.Uint64("purchase_id", purchaseID),
				zap.Int("leg", num),
				zap.String("ticker", leg.Ticker),
				zap.Error(err),
			)
		}
		return out
	}
	if st.Status != models.MarketStatusSettled {
		return out
	}

	price := st.SettlementPrice
	if price == nil {
		// Some markets only report a side label.
		switch strings.ToLower(st.Result) {
		case "yes":
			v := decimal.NewFromInt(100)
			price = &v
		case "no":
			v := decimal.Zero
			price = &v
		default:
			return out
		}
	}

	out.MarketStatus = models.MarketStatusSettled
	out.SettlementPrice = price
	if price.GreaterThan(decimal.Zero) {
		out.Outcome = models.LegOutcomeWin
	} else {
		out.Outcome = models.LegOutcomeLoss
	}
	return out
}

// deriveStatus aggregates leg outcomes into the parlay status. A terminal
// status requires every leg to have settled; a lost leg with siblings still
// open leaves the parlay pending until the remaining markets resolve.
func deriveStatus(outcomes []models.LegOutcome) (string, int) {
	settled := 0
	wins := 0
	for _, o := range outcomes {
		switch o.Outcome {
		case models.LegOutcomeWin:
			wins++
			settled++
		case models.LegOutcomeLoss:
			settled++
		}
	}
	if len(outcomes) > 0 && settled == len(outcomes) {
		if wins == len(outcomes) {
			return models.PurchaseStatusWon, settled
		}
		return models.PurchaseStatusLost, settled
	}
	return models.PurchaseStatusPending, settled
}

// ClaimResult reports a successful claim.
type ClaimResult struct {
	PurchaseID uint64          `json:"purchase_id"`
	Amount     decimal.Decimal `json:"amount"`
	ClaimedAt  time.Time       `json:"claimed_at"`
}

// ClaimWinnings credits a won purchase to the user's wallet exactly once.
// The claim itself is a conditional update (won and not yet claimed), so two
// concurrent claims race at the database and only one row write succeeds.
func (e *Engine) ClaimWinnings(ctx context.Context, purchaseID uint64) (*ClaimResult, error) {
	purchase, err := e.Repo.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, fmt.Errorf("%w: id %d", ErrPurchaseNotFound, purchaseID)
	}
	if purchase.Status != models.PurchaseStatusWon {
		return nil, fmt.Errorf("%w: status is %s", ErrNotClaimable, purchase.Status)
	}
	if purchase.ClaimedAt != nil {
		return nil, fmt.Errorf("%w: claimed at %s", ErrClaimConflict, purchase.ClaimedAt.UTC().Format(time.RFC3339))
	}

	now := time.Now().UTC()
	ok, err := e.Repo.ClaimPurchase(ctx, purchaseID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrClaimConflict, purchaseID)
	}

	entry := &models.WalletEntry{
		UserID:     purchase.UserID,
		PurchaseID: purchaseID,
		Kind:       "claim",
		Amount:     purchase.ClaimableAmount,
	}
	if err := e.Repo.InsertWalletEntry(ctx, entry); err != nil {
		// The claim already landed; the ledger row is recoverable from the
		// purchase itself, so report the fault rather than invent a rollback.
		if e.Logger != nil {
			e.Logger.Error("wallet credit failed after claim",
				zap.Uint64("purchase_id", purchaseID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("winnings claimed",
			zap.Uint64("purchase_id", purchaseID),
			zap.String("user_id", purchase.UserID),
			zap.String("amount", purchase.ClaimableAmount.StringFixed(2)),
		)
	}
	return &ClaimResult{
		PurchaseID: purchaseID,
		Amount:     purchase.ClaimableAmount,
		ClaimedAt:  now,
	}, nil
}

// SweepResult summarizes a batch settlement pass.
type SweepResult struct {
	Checked int `json:"checked"`
	Failed  int `json:"failed"`
}

// CheckAllActive sweeps every non-terminal purchase through
// CheckParlayStatus with bounded concurrency. One purchase failing never
// stops the sweep; won purchases are included so their claimable amounts
// stay current.
func (e *Engine) CheckAllActive(ctx context.Context) (*SweepResult, error) {
	limit := e.Config.BatchLimit
	if limit <= 0 {
		limit = 500
	}
	purchases, err := e.Repo.ListPurchasesByStatuses(ctx,
		[]string{models.PurchaseStatusPending, models.PurchaseStatusWon}, limit)
	if err != nil {
		return nil, err
	}

	workers := e.Config.Concurrency
	if workers <= 0 {
		workers = 4
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	sem := make(chan struct{}, workers)
	for _, p := range purchases {
		wg.Add(1)
		sem <- struct{}{}
		go func(id uint64) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := e.CheckParlayStatus(ctx, id); err != nil {
				if e.Logger != nil {
					e.Logger.Warn("settlement check failed",
						zap.Uint64("purchase_id", id),
						zap.Error(err),
					)
				}
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(p.ID)
	}
	wg.Wait()

	if e.Logger != nil {
		e.Logger.Info("settlement sweep finished",
			zap.Int("checked", len(purchases)),
			zap.Int("failed", failed),
		)
	}
	return &SweepResult{Checked: len(purchases), Failed: failed}, nil
}
