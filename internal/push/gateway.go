package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Gateway posts native (iOS and Android) tokens to an HTTP push gateway.
//
// Request:  {"tokens": [...], "notification": {"title", "body"}, "data": {...}}
// Response: {"success_count": n, "failure_count": n, "results": [{"token", "error"}]}
//
// A result error of "unregistered" or "expired" marks the token expired.
type Gateway struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

type GatewayOption func(*Gateway)

func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

func NewGateway(url, apiKey string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		url:        url,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured returns true if the gateway URL is set.
func (g *Gateway) Configured() bool {
	return g.url != ""
}

type gatewayRequest struct {
	Tokens       []string          `json:"tokens"`
	Notification Message           `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type gatewayResponse struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	Results      []struct {
		Token string `json:"token"`
		Error string `json:"error"`
	} `json:"results"`
}

func (g *Gateway) SendToDevices(ctx context.Context, tokens []string, msg Message, data map[string]string) (SendResult, error) {
	if !g.Configured() {
		return SendResult{}, fmt.Errorf("push gateway not configured: missing url")
	}

	body, err := json.Marshal(gatewayRequest{Tokens: tokens, Notification: msg, Data: data})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("send to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("push gateway error: status %d", resp.StatusCode)
	}

	var gr gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return SendResult{}, fmt.Errorf("decode gateway response: %w", err)
	}

	result := SendResult{SuccessCount: gr.SuccessCount}
	for _, r := range gr.Results {
		switch r.Error {
		case "":
		case "unregistered", "expired":
			result.fail(r.Token, fmt.Errorf("gateway: %w", ErrExpired))
		default:
			result.fail(r.Token, fmt.Errorf("gateway: %s", r.Error))
		}
	}
	// Trust the reported count when per-token results are omitted.
	if result.FailureCount < gr.FailureCount {
		result.FailureCount = gr.FailureCount
	}
	return result, nil
}
