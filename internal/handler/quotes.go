package handler

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"parlay/internal/hedging"
	"parlay/internal/models"
	"parlay/internal/pricing"
)

// IssuedQuote is a priced parlay held server-side until it is purchased or
// expires. The purchase flow re-reads the stored copy rather than trusting
// client-echoed figures.
type IssuedQuote struct {
	Quote    *pricing.Quote
	Legs     []models.Leg
	Stake    decimal.Decimal
	Strategy *hedging.Strategy
}

// QuoteCache holds issued quotes in memory keyed by quote ID. Quotes are
// short-lived and re-priceable on demand, so losing them on restart only
// forces a re-quote.
type QuoteCache struct {
	mu    sync.Mutex
	items map[string]*IssuedQuote
}

func NewQuoteCache() *QuoteCache {
	return &QuoteCache{items: make(map[string]*IssuedQuote)}
}

func (qc *QuoteCache) Put(q *IssuedQuote) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	now := time.Now().UTC()
	for id, it := range qc.items {
		if it.Quote.Expired(now) {
			delete(qc.items, id)
		}
	}
	qc.items[q.Quote.ID] = q
}

// Take removes and returns the quote so a quote ID cannot be purchased twice.
func (qc *QuoteCache) Take(id string) *IssuedQuote {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	q, ok := qc.items[id]
	if !ok {
		return nil
	}
	delete(qc.items, id)
	return q
}

type QuoteHandler struct {
	Pricing *pricing.Engine
	Hedging *hedging.Engine
	Quotes  *QuoteCache
	Logger  *zap.Logger
}

func (h *QuoteHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/quotes")
	g.POST("", h.create)
}

type quoteRequest struct {
	Legs  []models.Leg    `json:"legs" binding:"required"`
	Stake decimal.Decimal `json:"stake"`
}

type quoteResponse struct {
	Quote    *pricing.Quote    `json:"quote"`
	Strategy *hedging.Strategy `json:"hedge_strategy"`
}

func (h *QuoteHandler) create(c *gin.Context) {
	if h.Pricing == nil || h.Hedging == nil {
		Error(c, http.StatusServiceUnavailable, "pricing unavailable", nil)
		return
	}
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	quote, err := h.Pricing.PriceParlay(c.Request.Context(), req.Legs, req.Stake)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrInvalidInput), errors.Is(err, pricing.ErrDegenerateProbability):
			Error(c, http.StatusBadRequest, err.Error(), nil)
		case errors.Is(err, pricing.ErrOracleUnavailable):
			Error(c, http.StatusBadGateway, err.Error(), nil)
		default:
			Error(c, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}

	strategy, err := h.Hedging.BuildStrategy(req.Legs, req.Stake, quote.AdjustedPayout, quote.AdjustedProbability)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if h.Quotes != nil {
		h.Quotes.Put(&IssuedQuote{
			Quote:    quote,
			Legs:     req.Legs,
			Stake:    req.Stake,
			Strategy: strategy,
		})
	}
	Ok(c, quoteResponse{Quote: quote, Strategy: strategy}, nil)
}
