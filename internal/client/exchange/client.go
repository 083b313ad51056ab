package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"parlay/internal/config"
	"parlay/internal/hedging"
	"parlay/internal/settlement"
)

// Client is the HTTP client for the binary options exchange. It serves both
// consumed interfaces: settlement lookups for the settlement engine and
// order placement for the hedging executor.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error (%d): %s", e.Status, e.Body)
}

func New(httpClient *http.Client, cfg config.ExchangeConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		host:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// GetSettlement fetches one market's lifecycle state. Exchanges disagree on
// field names, so the response is parsed tolerantly; a settled market must
// yield either a numeric settlement price or a yes/no result label.
func (c *Client) GetSettlement(ctx context.Context, ticker string) (settlement.Settlement, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return settlement.Settlement{}, fmt.Errorf("ticker is required")
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil)
	if err != nil {
		return settlement.Settlement{}, err
	}
	return parseSettlement(body)
}

// PlaceOrder submits a limit order for hedge contracts.
func (c *Client) PlaceOrder(ctx context.Context, req hedging.OrderRequest) (*hedging.OrderResult, error) {
	if strings.TrimSpace(req.Ticker) == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	payload := map[string]any{
		"ticker":          req.Ticker,
		"side":            req.Side,
		"count":           req.Contracts,
		"type":            "limit",
		"yes_price":       req.LimitPriceCents,
		"client_order_id": req.ClientOrderID,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/portfolio/orders", payload)
	if err != nil {
		return nil, err
	}
	return parseOrderResult(body)
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("exchange client is nil")
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func parseSettlement(raw []byte) (settlement.Settlement, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return settlement.Settlement{}, err
	}
	if data, ok := root["market"].(map[string]any); ok {
		root = data
	} else if data, ok := root["data"].(map[string]any); ok {
		root = data
	}

	out := settlement.Settlement{
		Status: strings.ToLower(firstString(root, "status", "state")),
		Result: strings.ToLower(firstString(root, "result", "settlement_result")),
	}
	// "finalized" and "closed" both mean the market has resolved.
	switch out.Status {
	case "settled", "finalized", "resolved":
		out.Status = "settled"
	default:
		out.Status = "open"
	}
	if v, ok := firstNumber(root, "settlement_price", "settled_price", "settlement_value"); ok {
		d := decimal.NewFromFloat(v)
		out.SettlementPrice = &d
	}
	return out, nil
}

func parseOrderResult(raw []byte) (*hedging.OrderResult, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty order response")
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	if data, ok := root["order"].(map[string]any); ok {
		root = data
	} else if data, ok := root["data"].(map[string]any); ok {
		root = data
	}
	out := &hedging.OrderResult{
		OrderID: firstString(root, "order_id", "id"),
		Status:  strings.ToLower(firstString(root, "status", "state")),
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("order id missing in response")
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			s := strings.TrimSpace(fmt.Sprintf("%v", v))
			if s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || s == "<nil>" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
