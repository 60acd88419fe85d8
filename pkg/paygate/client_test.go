package paygate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, NewClient(server.URL, "test-key")
}

func TestTransferToTester_SendsPayloadAndReturnsID(t *testing.T) {
	var gotPath, gotKey string
	var gotBody TransferRequest

	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-paygate-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"id": "tr_123", "status": "completed"},
		})
	})

	transferID, err := client.TransferToTester(context.Background(), "esc_1", "tester_1", 750, "testing payout", "settle-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transferID != "tr_123" {
		t.Fatalf("expected transfer id tr_123, got %q", transferID)
	}
	if gotPath != "/api/v1/transfers" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotBody.EscrowIntentID != "esc_1" || gotBody.Amount != 750 || gotBody.IdempotencyKey != "settle-abc" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestRefundEscrow_ReturnsGatewayError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{
				{"title": "insufficient_escrow", "detail": "escrow balance too low"},
			},
		})
	})

	_, err := client.RefundEscrow(context.Background(), "esc_1", 5000, "cancellation refund", "cancel-refund-1")
	if err == nil {
		t.Fatal("expected an error")
	}

	var gatewayErr *ErrorResponse
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *ErrorResponse, got %T: %v", err, err)
	}
	if gatewayErr.Errors[0].Title != "insufficient_escrow" {
		t.Fatalf("unexpected error envelope: %+v", gatewayErr)
	}
}

func TestCreateEscrowIntent_ReturnsID(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/escrow-intents" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"id": "esc_42", "status": "held"},
		})
	})

	id, err := client.CreateEscrowIntent(context.Background(), 20000, "job-42", "escrow-job-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "esc_42" {
		t.Fatalf("expected esc_42, got %q", id)
	}
}
