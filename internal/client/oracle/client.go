package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"parlay/internal/config"
	"parlay/internal/models"
	"parlay/internal/pricing"
)

// Client talks to the correlation judgment service over HTTP. The service
// wraps an LLM, so responses are treated as untrusted input end to end; the
// pricing engine clamps whatever comes back.
type Client struct {
	host       string
	apiKey     string
	model      string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oracle API error (%d): %s", e.Status, e.Body)
}

func New(httpClient *http.Client, cfg config.OracleConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		host:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
	}
}

type judgeLeg struct {
	MarketID           string  `json:"market_id"`
	Ticker             string  `json:"ticker,omitempty"`
	OptionLabel        string  `json:"option_label,omitempty"`
	ProbabilityPercent float64 `json:"probability_percent"`
	Side               string  `json:"side"`
}

type judgePayload struct {
	Model            string     `json:"model,omitempty"`
	Legs             []judgeLeg `json:"legs"`
	Stake            string     `json:"stake"`
	NaiveProbability float64    `json:"naive_probability"`
	NaivePayout      string     `json:"naive_payout"`
}

// Judge posts the parlay context and returns the raw judgment unmodified.
func (c *Client) Judge(ctx context.Context, req pricing.JudgeRequest) (pricing.Judgment, error) {
	if c == nil || c.httpClient == nil {
		return pricing.Judgment{}, fmt.Errorf("oracle client is nil")
	}
	payload := judgePayload{
		Model:            c.model,
		Legs:             toJudgeLegs(req.Legs),
		Stake:            req.Stake.String(),
		NaiveProbability: req.NaiveProbability,
		NaivePayout:      req.NaivePayout.String(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return pricing.Judgment{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/v1/judge", bytes.NewReader(raw))
	if err != nil {
		return pricing.Judgment{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pricing.Judgment{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pricing.Judgment{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pricing.Judgment{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var out pricing.Judgment
	if err := json.Unmarshal(body, &out); err != nil {
		return pricing.Judgment{}, fmt.Errorf("failed to decode judgment: %w", err)
	}
	return out, nil
}

func toJudgeLegs(legs []models.Leg) []judgeLeg {
	out := make([]judgeLeg, 0, len(legs))
	for _, leg := range legs {
		out = append(out, judgeLeg{
			MarketID:           leg.MarketID,
			Ticker:             leg.Ticker,
			OptionLabel:        leg.OptionLabel,
			ProbabilityPercent: leg.ProbabilityPercent,
			Side:               leg.Side,
		})
	}
	return out
}
