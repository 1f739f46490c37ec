package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to the ledger gateway service over HTTP. Env:
// LEDGER_GATEWAY_URL, LEDGER_API_KEY, LEDGER_TIMEOUT_SECONDS.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient builds a Client with the configured request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// txResponse is the common gateway response shape.
type txResponse struct {
	TransactionID string `json:"transaction_id"`
	ExternalID    string `json:"external_id"`
}

func (c *Client) CreateUnitType(ctx context.Context, req CreateUnitTypeRequest) (*CreateUnitTypeResult, error) {
	var resp txResponse
	if err := c.post(ctx, "/v1/unit-types", req.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}
	if resp.ExternalID == "" {
		return nil, fmt.Errorf("ledger gateway returned no external id")
	}
	return &CreateUnitTypeResult{ExternalID: resp.ExternalID, ExternalTxID: resp.TransactionID}, nil
}

func (c *Client) Mint(ctx context.Context, req MintRequest) (string, error) {
	var resp txResponse
	path := fmt.Sprintf("/v1/unit-types/%s/mint", req.ExternalID)
	if err := c.post(ctx, path, req.IdempotencyKey, req, &resp); err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

func (c *Client) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	var resp txResponse
	if err := c.post(ctx, "/v1/transfers", req.IdempotencyKey, req, &resp); err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

func (c *Client) RecordAuditEvent(ctx context.Context, topicID string, message interface{}) (string, error) {
	var resp txResponse
	path := fmt.Sprintf("/v1/topics/%s/messages", topicID)
	if err := c.post(ctx, path, "", map[string]interface{}{"message": message}, &resp); err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("ledger gateway request failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Error().Int("status", resp.StatusCode).Str("path", path).Bytes("body", b).Msg("ledger gateway rejected request")
		return fmt.Errorf("ledger gateway: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
