package hedging

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parlay/internal/models"
	"parlay/internal/repository"
)

// OrderRequest is one hedge order handed to the exchange: contracts pay out
// 100 cents each, priced at the leg's quoted probability in cents.
type OrderRequest struct {
	Ticker          string
	Side            string
	Contracts       int64
	LimitPriceCents int64
	ClientOrderID   string
}

type OrderResult struct {
	OrderID string
	Status  string
}

// TradingClient is the consumed exchange trading interface; the HTTP
// implementation lives under internal/client/exchange.
type TradingClient interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
}

// ExecResult reports the order fan-out outcome. A failed order does not
// roll back its siblings.
type ExecResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

type Executor struct {
	Repo   repository.Repository
	Client TradingClient
	Logger *zap.Logger
}

// ExecuteStrategy places one exchange order per non-zero hedge decision,
// sequentially, persisting each order row as it goes. Partial failure is
// tolerated and reflected in the result.
func (x *Executor) ExecuteStrategy(ctx context.Context, purchase *models.Purchase, legs []models.Leg, strat *Strategy) (*ExecResult, error) {
	if purchase == nil || strat == nil {
		return nil, fmt.Errorf("%w: purchase and strategy required", ErrInvalidInput)
	}
	res := &ExecResult{Total: len(strat.Decisions)}
	if !strat.NeedsHedging {
		return res, nil
	}

	for _, d := range strat.Decisions {
		if d.LegIndex < 1 || d.LegIndex > len(legs) {
			continue
		}
		leg := legs[d.LegIndex-1]

		// The hedge backs the same side the user bet on: the house loses
		// exactly when every leg hits, so each hedge pays off when its leg
		// does.
		contracts := int64(math.Round(d.PotentialWin.InexactFloat64()))
		if contracts < 1 {
			contracts = 1
		}
		priceCents := int64(math.Round(leg.ProbabilityPercent))

		order := &models.HedgeOrder{
			PurchaseID:      purchase.ID,
			LegNumber:       d.LegIndex,
			Ticker:          leg.Ticker,
			Side:            strings.ToLower(strings.TrimSpace(leg.Side)),
			Contracts:       contracts,
			LimitPriceCents: priceCents,
			CostBasis:       d.HedgeAmount,
			Status:          "pending",
			ClientOrderID:   uuid.NewString(),
		}
		if x.Repo != nil {
			if err := x.Repo.InsertHedgeOrder(ctx, order); err != nil {
				return res, err
			}
		}

		placed, err := x.Client.PlaceOrder(ctx, OrderRequest{
			Ticker:          order.Ticker,
			Side:            order.Side,
			Contracts:       contracts,
			LimitPriceCents: priceCents,
			ClientOrderID:   order.ClientOrderID,
		})
		if err != nil {
			if x.Logger != nil {
				x.Logger.Warn("hedge order failed",
					zap.Uint64("purchase_id", purchase.ID),
					zap.Int("leg", d.LegIndex),
					zap.String("ticker", order.Ticker),
					zap.Error(err),
				)
			}
			if x.Repo != nil {
				_ = x.Repo.UpdateHedgeOrderStatus(ctx, order.ID, "failed", map[string]any{
					"failure_reason": err.Error(),
				})
			}
			continue
		}

		if x.Repo != nil {
			_ = x.Repo.UpdateHedgeOrderStatus(ctx, order.ID, "placed", map[string]any{
				"external_id": placed.OrderID,
			})
		}
		res.Successful++
	}

	if x.Logger != nil {
		x.Logger.Info("hedge orders executed",
			zap.Uint64("purchase_id", purchase.ID),
			zap.Int("successful", res.Successful),
			zap.Int("total", res.Total),
		)
	}
	return res, nil
}
