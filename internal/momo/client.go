// Package momo is the HTTP client for the external mobile-money
// gateway. The gateway is a black box: Collect and Disburse only ask
// it to start moving money, and the terminal outcome of every
// transaction arrives later on the webhook endpoint keyed by our
// reference. Calls are bounded by the configured timeout; a timeout
// never means the gateway rejected the request, only that our view of
// it is unresolved.
package momo

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"
)

// Webhook status values delivered by the gateway.
const (
    StatusCompleted  = "completed"
    StatusFailed     = "failed"
    StatusCancelled  = "cancelled"
    StatusExpired    = "expired"
    StatusProcessing = "processing"
)

// Client talks to the gateway's REST API.
type Client struct {
    baseURL string
    apiKey  string
    http    *http.Client
}

// NewClient builds a Client. The timeout bounds every call end to end.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
    return &Client{
        baseURL: strings.TrimRight(baseURL, "/"),
        apiKey:  apiKey,
        http:    &http.Client{Timeout: timeout},
    }
}

// CollectRequest asks the gateway to pull money from a subscriber.
type CollectRequest struct {
    Reference   string `json:"reference"`
    Amount      uint32 `json:"amount"`
    Contact     string `json:"contact"`
    CallbackURL string `json:"callback_url"`
}

// DisburseRequest asks the gateway to pay money out to a subscriber.
type DisburseRequest struct {
    Reference string `json:"reference"`
    Amount    uint32 `json:"amount"`
    Contact   string `json:"contact"`
}

// Result is the gateway's synchronous acknowledgment. Accepted=false
// with a Message is a definitive rejection; the terminal state of an
// accepted request still arrives by webhook.
type Result struct {
    Accepted      bool   `json:"accepted"`
    TransactionID string `json:"transaction_id"`
    Message       string `json:"message"`
}

// Collect starts a booking-fee collection. A returned error means the
// request may or may not have reached the gateway (timeout, transport
// failure) and the payment must stay in a recoverable state; a Result
// with Accepted=false means the gateway definitively refused.
func (c *Client) Collect(ctx context.Context, req CollectRequest) (Result, error) {
    return c.post(ctx, "/collect", req)
}

// Disburse starts a refund payout. Same error semantics as Collect.
func (c *Client) Disburse(ctx context.Context, req DisburseRequest) (Result, error) {
    return c.post(ctx, "/disburse", req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (Result, error) {
    body, err := json.Marshal(payload)
    if err != nil {
        return Result{}, fmt.Errorf("momo: marshal request: %w", err)
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
    if err != nil {
        return Result{}, fmt.Errorf("momo: build request: %w", err)
    }
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return Result{}, fmt.Errorf("momo: %s: %w", path, err)
    }
    defer func() { _ = resp.Body.Close() }()

    var out Result
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        // A 2xx with an unreadable body is indistinguishable from a lost
        // response; surface it as a transport error so the caller keeps
        // the payment recoverable.
        return Result{}, fmt.Errorf("momo: %s: decode response: %w", path, err)
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        out.Accepted = false
        if out.Message == "" {
            out.Message = fmt.Sprintf("gateway returned HTTP %d", resp.StatusCode)
        }
    }
    return out, nil
}
