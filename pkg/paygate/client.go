/**
 * @description
 * This package provides a client for the external payment gateway. It
 * encapsulates authenticated HTTP requests for the three money-moving
 * operations the settlement service performs: creating an escrow intent for
 * a job's budget, transferring escrowed funds to a tester, and refunding
 * part of an escrow intent to the developer.
 *
 * The ledger itself never moves money; these calls are the only place funds
 * actually change hands, and each returns the gateway's external reference
 * id which is written back onto the payment row.
 *
 * @notes
 * - Every money call carries a caller-supplied idempotency key so that
 *   at-least-once invocation (sweep retries, cancellation retries) cannot
 *   double-move funds.
 * - Real payment-gateway semantics (card networks, chargebacks) live behind
 *   this boundary and are out of scope here.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new payment gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// EscrowIntentRequest is the payload for escrowing a job's budget upfront.
type EscrowIntentRequest struct {
	Amount         int64  `json:"amount"` // in cents
	Currency       string `json:"currency"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
}

// TransferRequest is the payload for paying out escrowed funds to a tester.
type TransferRequest struct {
	EscrowIntentID string `json:"escrow_intent_id"`
	RecipientID    string `json:"recipient_id"`
	Amount         int64  `json:"amount"` // in cents
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RefundRequest is the payload for returning part of an escrow intent to
// the developer.
type RefundRequest struct {
	EscrowIntentID string `json:"escrow_intent_id"`
	Amount         int64  `json:"amount"` // in cents
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// OperationResponse is the gateway's reply to any money-moving call.
type OperationResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// ErrorResponse represents an error from the gateway API. The reason string
// is preserved verbatim for admin follow-up.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("paygate api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown paygate api error"
}

// CreateEscrowIntent asks the gateway to hold a job's full budget.
func (c *Client) CreateEscrowIntent(ctx context.Context, amount int64, reference, idempotencyKey string) (string, error) {
	payload := EscrowIntentRequest{
		Amount:         amount,
		Currency:       "USD",
		Reference:      reference,
		IdempotencyKey: idempotencyKey,
	}
	resp, err := c.do(ctx, "/api/v1/escrow-intents", "escrow_intent", payload)
	if err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// TransferToTester pays out escrowed funds to one tester and returns the
// gateway's transfer id.
func (c *Client) TransferToTester(ctx context.Context, escrowIntentID, recipientID string, amount int64, reason, idempotencyKey string) (string, error) {
	payload := TransferRequest{
		EscrowIntentID: escrowIntentID,
		RecipientID:    recipientID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
	}
	resp, err := c.do(ctx, "/api/v1/transfers", "transfer", payload)
	if err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// RefundEscrow returns part of an escrow intent to the developer and
// returns the gateway's refund id.
func (c *Client) RefundEscrow(ctx context.Context, escrowIntentID string, amount int64, reason, idempotencyKey string) (string, error) {
	payload := RefundRequest{
		EscrowIntentID: escrowIntentID,
		Amount:         amount,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
	}
	resp, err := c.do(ctx, "/api/v1/refunds", "refund", payload)
	if err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// do executes one gateway request and decodes either the success or error
// envelope.
func (c *Client) do(ctx context.Context, path, op string, payload interface{}) (*OperationResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-paygate-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=paygate_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=paygate_client op=%s status=%d title=%q detail=%q", op, resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return nil, &errResp
	}

	var successResp OperationResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode success response: %w", err)
	}

	return &successResp, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
