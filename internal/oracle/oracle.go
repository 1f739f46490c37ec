package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProjectAttributes is the valuation input derived from a project record.
type ProjectAttributes struct {
	ProjectType            string     `json:"project_type"`
	Area                   float64    `json:"area"`
	Location               string     `json:"location"`
	EstimatedCarbonCapture float64    `json:"estimated_carbon_capture"`
	ActualCarbonCapture    *float64   `json:"actual_carbon_capture,omitempty"`
	StartDate              *time.Time `json:"start_date,omitempty"`
	EndDate                *time.Time `json:"end_date,omitempty"`
}

// Recommendation is the oracle's output. Confidence below the configured
// threshold means the caller-supplied amount and price take precedence.
type Recommendation struct {
	Amount     float64 `json:"recommended_amount"`
	Price      float64 `json:"recommended_price"`
	Confidence float64 `json:"confidence"`
}

// Oracle recommends a unit amount and price for a project.
type Oracle interface {
	Recommend(ctx context.Context, attrs ProjectAttributes) (*Recommendation, error)
}

// Client calls the valuation service (POST /api/predict). Nil-safe fields:
// an empty BaseURL disables the oracle and Recommend returns an error the
// caller treats as "no recommendation".
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Recommend(ctx context.Context, attrs ProjectAttributes) (*Recommendation, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("valuation service not configured")
	}
	body, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("valuation service returned %d", resp.StatusCode)
	}
	var rec Recommendation
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
