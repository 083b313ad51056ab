package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"parlay/internal/hedging"
	"parlay/internal/models"
	"parlay/internal/repository"
	"parlay/internal/settlement"
)

type PurchaseHandler struct {
	Repo       repository.Repository
	Quotes     *QuoteCache
	Executor   *hedging.Executor
	Settlement *settlement.Engine
	Logger     *zap.Logger
}

func (h *PurchaseHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/purchases")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/check", h.check)
	g.POST("/:id/claim", h.claim)
}

type purchaseRequest struct {
	QuoteID     string `json:"quote_id" binding:"required"`
	UserID      string `json:"user_id" binding:"required"`
	Environment string `json:"environment"`
}

func (h *PurchaseHandler) create(c *gin.Context) {
	if h.Repo == nil || h.Quotes == nil {
		Error(c, http.StatusServiceUnavailable, "purchases unavailable", nil)
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	env := strings.ToLower(strings.TrimSpace(req.Environment))
	if env == "" {
		env = "live"
	}
	if env != "live" && env != "test" {
		Error(c, http.StatusBadRequest, "environment must be live or test", nil)
		return
	}

	issued := h.Quotes.Take(req.QuoteID)
	if issued == nil {
		Error(c, http.StatusConflict, "quote not found or already used; request a new quote", nil)
		return
	}
	if issued.Quote.Expired(time.Now().UTC()) {
		Error(c, http.StatusConflict, "quote expired; request a new quote", nil)
		return
	}

	legsJSON, err := models.MarshalLegs(issued.Legs)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	var strategyJSON datatypes.JSON
	if issued.Strategy != nil {
		raw, err := json.Marshal(issued.Strategy)
		if err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		strategyJSON = datatypes.JSON(raw)
	}

	purchase := &models.Purchase{
		QuoteID:       issued.Quote.ID,
		UserID:        req.UserID,
		Environment:   env,
		Stake:         issued.Stake,
		Payout:        issued.Quote.AdjustedPayout,
		Status:        models.PurchaseStatusPending,
		Legs:          legsJSON,
		HedgeStrategy: strategyJSON,
	}
	if err := h.Repo.InsertPurchase(c.Request.Context(), purchase); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	var execMeta map[string]any
	if h.Executor != nil && issued.Strategy != nil && issued.Strategy.NeedsHedging {
		res, err := h.Executor.ExecuteStrategy(c.Request.Context(), purchase, issued.Legs, issued.Strategy)
		if err != nil {
			// The purchase stands; hedge placement is reported, not rolled back.
			if h.Logger != nil {
				h.Logger.Warn("hedge execution failed",
					zap.Uint64("purchase_id", purchase.ID),
					zap.Error(err),
				)
			}
		}
		if res != nil {
			execMeta = map[string]any{
				"hedge_orders_total":      res.Total,
				"hedge_orders_successful": res.Successful,
			}
		}
	}
	Ok(c, purchase, execMeta)
}

func (h *PurchaseHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListPurchasesParams{
		Limit:   intQuery(c, "limit", 50),
		Offset:  intQuery(c, "offset", 0),
		UserID:  strQueryPtr(c, "user_id"),
		Status:  strQueryPtr(c, "status"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	if v := strQueryPtr(c, "environment"); v != nil {
		params.Environment = v
	}
	items, err := h.Repo.ListPurchases(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

func (h *PurchaseHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetPurchaseByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "purchase not found", nil)
		return
	}
	outcomes, err := h.Repo.ListLegOutcomesByPurchaseID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	orders, err := h.Repo.ListHedgeOrdersByPurchaseID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"purchase":     item,
		"leg_outcomes": outcomes,
		"hedge_orders": orders,
	}, nil)
}

func (h *PurchaseHandler) check(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusServiceUnavailable, "settlement unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	result, err := h.Settlement.CheckParlayStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, settlement.ErrPurchaseNotFound) {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *PurchaseHandler) claim(c *gin.Context) {
	if h.Settlement == nil {
		Error(c, http.StatusServiceUnavailable, "settlement unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	result, err := h.Settlement.ClaimWinnings(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrPurchaseNotFound):
			Error(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, settlement.ErrNotClaimable):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, settlement.ErrClaimConflict):
			Error(c, http.StatusConflict, err.Error(), nil)
		default:
			Error(c, http.StatusBadGateway, err.Error(), nil)
		}
		return
	}
	Ok(c, result, nil)
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }

func uint64Param(c *gin.Context, key string) uint64 {
	val := strings.TrimSpace(c.Param(key))
	if val == "" {
		return 0
	}
	var out uint64
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch < '0' || ch > '9' {
			return 0
		}
		out = out*10 + uint64(ch-'0')
	}
	return out
}
