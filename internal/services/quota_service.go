package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// QuotaClient talks to the subscription service that owns per-tier message
// quotas. This subsystem only asks; it never adjusts limits itself.
type QuotaClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewQuotaClient(baseURL string) *QuotaClient {
	return &QuotaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
}

func (c *QuotaClient) CheckAndConsume(
	ctx context.Context,
	userID string,
	action string,
) (QuotaDecision, error) {
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"action":  action,
	})
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("encode quota request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/quota/consume",
		bytes.NewReader(payload),
	)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("build quota request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return QuotaDecision{}, fmt.Errorf("quota request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decision QuotaDecision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return QuotaDecision{}, fmt.Errorf("decode quota response: %w", err)
	}

	return decision, nil
}
